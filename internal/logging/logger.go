// Package logging wraps zap with the service's context-field conventions.
//
// Grounded on RoseWrightdev/Video-Conferencing backend/go/internal/v1/logging:
// a package-level logger built once, development/production zap.Config picked
// by environment, context-carried correlation/user/room IDs appended to every
// line.
package logging

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

type contextKey string

const (
	CorrelationIDKey contextKey = "correlation_id"
	UserIDKey        contextKey = "user_id"
	RoomIDKey        contextKey = "room_id"
	SessionIDKey     contextKey = "session_id"
)

// Initialize builds the global logger. development selects a human-readable,
// colorized encoder; otherwise ISO8601-timestamped JSON is used.
func Initialize(service string, development bool) error {
	var err error
	once.Do(func() {
		var cfg zap.Config
		if development {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.TimeKey = "timestamp"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		}
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}

		var l *zap.Logger
		l, err = cfg.Build(zap.AddCallerSkip(1))
		if err == nil {
			logger = l.With(zap.String("service", service))
		}
	})
	return err
}

// L returns the global logger, falling back to a development logger if
// Initialize was never called (tests).
func L() *zap.Logger {
	if logger == nil {
		l, _ := zap.NewDevelopment()
		return l
	}
	return logger
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	L().Info(msg, withContext(ctx, fields)...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	L().Warn(msg, withContext(ctx, fields)...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	L().Error(msg, withContext(ctx, fields)...)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	L().Debug(msg, withContext(ctx, fields)...)
}

func withContext(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx == nil {
		return fields
	}
	if v, ok := ctx.Value(CorrelationIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("correlation_id", v))
	}
	if v, ok := ctx.Value(UserIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("user_id", v))
	}
	if v, ok := ctx.Value(RoomIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("room_id", v))
	}
	if v, ok := ctx.Value(SessionIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("session_id", v))
	}
	return fields
}

// WithRoom returns a child context carrying roomID for subsequent log calls.
func WithRoom(ctx context.Context, roomID string) context.Context {
	return context.WithValue(ctx, RoomIDKey, roomID)
}

// WithUser returns a child context carrying userID for subsequent log calls.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// RedactEmail masks the local part of an email address, keeping the domain.
func RedactEmail(email string) string {
	if email == "" {
		return ""
	}
	for i, c := range email {
		if c == '@' {
			return "***" + email[i:]
		}
	}
	return "***"
}
