// Package middleware holds shared Gin middleware for the HTTP-facing
// services (gateway, identity).
//
// Grounded on RoseWrightdev/Video-Conferencing backend/go/internal/v1/middleware/correlation.go.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/collabhub/realtime/internal/logging"
)

// HeaderXCorrelationID is the header key carrying the request correlation ID.
const HeaderXCorrelationID = "X-Correlation-ID"

// CorrelationID attaches (or propagates) a correlation ID to every request
// and mirrors it on the response.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderXCorrelationID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Header(HeaderXCorrelationID, id)
		c.Set(string(logging.CorrelationIDKey), id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logging.CorrelationIDKey, id))
		c.Next()
	}
}
