// Package store defines the persistence contract shared by the chat and
// video engines (component B, "Store" in the system overview) and its two
// implementations: a Firestore-backed production store and an in-memory
// fallback for local development and tests.
//
// Grounded on the teacher's dependency-injection idiom (internal/v1/bus:
// a capability constructed once in main.go and passed into engines) and on
// its gobreaker-wrapped retry/circuit pattern (internal/v1/bus/redis.go);
// the concrete document model (server timestamps, array-union/remove,
// array-contains and ordered queries) is Firestore's API surface, per
// cloud.google.com/go/firestore.
package store

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/collabhub/realtime/internal/apperr"
	"github.com/collabhub/realtime/internal/domain"
	"github.com/collabhub/realtime/internal/metrics"
)

// RoomQuery selects which ChatRooms ListRooms returns.
type RoomQuery struct {
	Visibility     domain.Visibility // required
	ParticipantID  domain.UserID     // if set, restrict to rooms containing this participant
	Limit          int
}

// MessageQuery pages through a room's messages, newest first.
type MessageQuery struct {
	RoomID domain.RoomID
	Limit  int
	Cursor string // opaque, from a prior page's NextCursor; empty = first page
}

// MessagePage is one page of ChatMessage results.
type MessagePage struct {
	Messages   []domain.ChatMessage
	NextCursor string // empty when no further page exists
}

// Store is the persistence contract every engine depends on. Every method
// takes a deadline-bound context; implementations must not block past it.
type Store interface {
	// Chat rooms.
	CreateRoom(ctx context.Context, room *domain.ChatRoom) error
	GetRoom(ctx context.Context, id domain.RoomID) (*domain.ChatRoom, error)
	GetRoomByCode(ctx context.Context, code string) (*domain.ChatRoom, error)
	ListRooms(ctx context.Context, q RoomQuery) ([]domain.ChatRoom, error)
	AddParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error
	RemoveParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error
	// TouchRoom bumps a room's updatedAt to now, used after a message insert
	// so room listings reflect recent activity without rewriting participants.
	TouchRoom(ctx context.Context, roomID domain.RoomID) error

	// Chat messages.
	AppendMessage(ctx context.Context, msg *domain.ChatMessage) error
	ListMessages(ctx context.Context, q MessageQuery) (MessagePage, error)

	// Video rooms.
	CreateVideoRoom(ctx context.Context, room *domain.VideoRoom) error
	GetVideoRoom(ctx context.Context, id domain.RoomID) (*domain.VideoRoom, error)
	GetVideoRoomByCode(ctx context.Context, code string) (*domain.VideoRoom, error)
	// AddVideoParticipant is a compare-and-set join: it fails with
	// apperr.CodeRoomFull if len(Participants) >= MaxParticipants at the
	// moment of the atomic update.
	AddVideoParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error
	RemoveVideoParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error
	DeleteVideoRoom(ctx context.Context, id domain.RoomID) error

	// Video participants (per-room per-user media state).
	PutVideoParticipant(ctx context.Context, p *domain.VideoParticipant) error
	GetVideoParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (*domain.VideoParticipant, error)
	DeleteVideoParticipantState(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error

	// Ping is used by the readiness probe only; it is a cheap reachability
	// check (the Firestore store reads at most one rooms document).
	Ping(ctx context.Context) error
}

// deadline is the suggested upper bound for a single Store operation,
// per the error handling design's retry policy.
const deadline = 5 * time.Second

// withDeadline returns ctx unchanged if it already carries an earlier
// deadline, otherwise bounds it to `deadline`.
func withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) <= deadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, deadline)
}

// retryBackoff is the fixed retry schedule from the error handling design:
// one retry at 50ms, a second at 200ms, then give up.
var retryBackoff = []time.Duration{50 * time.Millisecond, 200 * time.Millisecond}

// retryable reports whether err is worth a retry (transport/timeout class)
// rather than a permanent rejection (not-found, already-exists, and the
// like, which a retry can never fix).
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return false // already a classified application error, not a transport fault
	}
	return true
}

// withRetry executes op up to len(retryBackoff)+1 times, matching the
// error handling design's "retried internally once with exponential
// backoff (50ms, then 200ms) before surfacing as STORE_UNAVAILABLE".
func withRetry(ctx context.Context, opName string, fn func(ctx context.Context) error) error {
	var lastErr error
	attempts := append([]time.Duration{0}, retryBackoff...)
	for i, wait := range attempts {
		if i > 0 {
			metrics.StoreRetries.WithLabelValues(opName).Inc()
		}
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return apperr.New(apperr.CodeStoreTimeout, "store operation deadline exceeded during retry")
			}
		}
		if err := fn(ctx); err != nil {
			lastErr = err
			if i == len(attempts)-1 || !retryable(err) {
				break
			}
			continue
		}
		return nil
	}
	if lastErr == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(lastErr, &appErr) {
		return lastErr
	}
	if errors.Is(lastErr, context.DeadlineExceeded) {
		return apperr.New(apperr.CodeStoreTimeout, lastErr.Error())
	}
	return apperr.New(apperr.CodeStoreUnavailable, lastErr.Error())
}

// EncodeCursor builds the opaque pagination token documented in the
// expanded specification's Open Question decision: base64 of
// (timestampMillis uint64, messageID string).
func EncodeCursor(ts time.Time, id domain.MessageID) string {
	buf := make([]byte, 8+len(id))
	binary.BigEndian.PutUint64(buf[:8], uint64(ts.UnixMilli()))
	copy(buf[8:], id)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// DecodeCursor parses a cursor built by EncodeCursor. This is the only
// boundary function permitted to understand the cursor's internal layout;
// callers must treat cursors as opaque otherwise.
func DecodeCursor(cursor string) (time.Time, domain.MessageID, error) {
	if cursor == "" {
		return time.Time{}, "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil || len(raw) < 8 {
		return time.Time{}, "", fmt.Errorf("malformed pagination cursor")
	}
	ms := binary.BigEndian.Uint64(raw[:8])
	return time.UnixMilli(int64(ms)), domain.MessageID(raw[8:]), nil
}
