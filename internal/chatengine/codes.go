package chatengine

import (
	"context"
	"crypto/rand"

	"github.com/collabhub/realtime/internal/apperr"
)

// codeAlphabet excludes visually ambiguous characters (0/O, 1/I), matching
// the 6-char uppercase alphanumeric room code shape from the data model.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const codeLength = 6

const maxCodeGenerationAttempts = 10

// generateRoomCode produces a random 6-char code and checks it for
// collisions against the store, retrying up to maxCodeGenerationAttempts
// times before giving up (spec: "up to 10 retries on collision").
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
	return "", apperr.New(apperr.CodeCodeGenerationFailed, "exhausted room code generation attempts")
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
