// Package apperr defines the stable error taxonomy shared by every engine.
//
// Operations return (result, *Error) instead of panicking or returning ad-hoc
// fmt.Errorf values; the duplex event loop maps an *Error straight to an
// `error` event, the HTTP layer maps it to a JSON body.
package apperr

import "fmt"

// Code is one of the stable taxonomy codes from the error handling design.
// Codes are part of the wire contract: never rename one in place.
type Code string

const (
	// Auth
	CodeAuthRequired Code = "AUTH_REQUIRED"
	CodeAuthFailed   Code = "AUTH_FAILED"
	CodeUnauthorized Code = "UNAUTHORIZED"

	// Input
	CodeValidation             Code = "VALIDATION_ERROR"
	CodeInvalidCodeFormat      Code = "INVALID_CODE_FORMAT"
	CodeInvalidSignalType      Code = "INVALID_SIGNAL_TYPE"
	CodeInvalidSignalStructure Code = "INVALID_SIGNAL_STRUCTURE"
	CodeMissingSignalData      Code = "MISSING_SIGNAL_DATA"
	CodeMustIncludeTarget      Code = "MUST_INCLUDE_TARGET"

	// Resource
	CodeRoomNotFound       Code = "ROOM_NOT_FOUND"
	CodeTargetUserNotFound Code = "TARGET_USER_NOT_FOUND"

	// Policy
	CodeCodeRequired   Code = "CODE_REQUIRED"
	CodeInvalidCode    Code = "INVALID_CODE"
	CodeNotPrivateRoom Code = "NOT_PRIVATE_ROOM"
	CodeNotParticipant Code = "NOT_PARTICIPANT"
	CodeNotInRoom      Code = "NOT_IN_ROOM"
	CodeRoomFull       Code = "ROOM_FULL"

	// Transient/infra
	CodeStoreTimeout         Code = "STORE_TIMEOUT"
	CodeStoreUnavailable     Code = "STORE_UNAVAILABLE"
	CodeCodeGenerationFailed Code = "CODE_GENERATION_FAILED"

	// Gateway
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
)

// Error is the single error type every core operation returns.
type Error struct {
	Code    Code
	Message string
	// Backend names the unavailable upstream for CodeServiceUnavailable.
	Backend string
}

func (e *Error) Error() string {
	if e.Backend != "" {
		return fmt.Sprintf("%s: %s (backend=%s)", e.Code, e.Message, e.Backend)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an *Error with a prose message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an *Error with a formatted prose message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Backend annotates a CodeServiceUnavailable error with the failing backend name.
func Backend(name string, message string) *Error {
	return &Error{Code: CodeServiceUnavailable, Message: message, Backend: name}
}

// As extracts an *Error from a generic error, returning ok=false for anything
// else (including nil).
func As(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	e, ok := err.(*Error)
	return e, ok
}
