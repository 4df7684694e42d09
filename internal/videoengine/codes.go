package videoengine

import (
	"context"
	"crypto/rand"

	"github.com/collabhub/realtime/internal/apperr"
)

// codeAlphabet matches the chat engine's room code alphabet (spec §4.3.2,
// reused for video rooms by §4.4.2): excludes visually ambiguous 0/O, 1/I.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const codeLength = 6

const maxCodeGenerationAttempts = 10

// generateRoomCode mints a unique 6-char code, retrying on collision up to
// maxCodeGenerationAttempts before failing with CODE_GENERATION_FAILED.
func generateRoomCode(ctx context.Context, exists func(ctx context.Context, code string) (bool, error)) (string, error) {
	for attempt := 0; attempt < maxCodeGenerationAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", apperr.New(apperr.CodeCodeGenerationFailed, err.Error())
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", apperr.New(apperr.CodeCodeGenerationFailed, "exhausted video room code generation attempts")
}

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, codeLength)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out), nil
}
