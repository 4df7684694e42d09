package videoengine

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/collabhub/realtime/internal/apperr"
	"github.com/collabhub/realtime/internal/domain"
)

// GetRoomHTTP implements GET /rooms/:roomId (spec §6: "GET /api/video/rooms/{roomId}
// → VideoRoom JSON or 404", gateway-exposed, mounted here after prefix
// stripping).
func (e *Engine) GetRoomHTTP(c *gin.Context) {
	ctx, cancel := withTimeout(c.Request.Context())
	defer cancel()

	room, err := e.store.GetVideoRoom(ctx, domain.RoomID(c.Param("roomId")))
	if err != nil {
		writeStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": toRoomView(room)})
}

// ListParticipantsHTTP implements GET /rooms/:roomId/participants (spec §6).
func (e *Engine) ListParticipantsHTTP(c *gin.Context) {
	ctx, cancel := withTimeout(c.Request.Context())
	defer cancel()

	roomID := domain.RoomID(c.Param("roomId"))
	room, err := e.store.GetVideoRoom(ctx, roomID)
	if err != nil {
		writeStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": e.snapshotParticipants(ctx, room)})
}

// ScreenSharingStatusHTTP implements
// GET /rooms/:roomId/participants/:userId/screen-sharing (spec §6):
// "{userId, screenSharing, videoEnabled, audioEnabled}".
func (e *Engine) ScreenSharingStatusHTTP(c *gin.Context) {
	ctx, cancel := withTimeout(c.Request.Context())
	defer cancel()

	roomID := domain.RoomID(c.Param("roomId"))
	userID := domain.UserID(c.Param("userId"))
	p, err := e.store.GetVideoParticipant(ctx, roomID, userID)
	if err != nil {
		writeStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{
		"userId":        string(userID),
		"screenSharing": p.ScreenSharing,
		"videoEnabled":  p.VideoEnabled,
		"audioEnabled":  p.AudioEnabled,
	}})
}

func writeStoreErr(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.New(apperr.CodeStoreUnavailable, err.Error())
	}
	status := http.StatusInternalServerError
	switch appErr.Code {
	case apperr.CodeRoomNotFound, apperr.CodeTargetUserNotFound:
		status = http.StatusNotFound
	case apperr.CodeValidation:
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"success": false, "error": appErr.Code})
}
