package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/hipper-gif/meal-delivery/internal/retry"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// CodeChecker reports whether an organization code is already taken.
type CodeChecker interface {
	OrganizationCodeExists(ctx context.Context, code string) (bool, error)
}

// CodeGenerator draws fixed-length organization codes. The existence check
// only filters likely collisions; the unique constraint on organizations.code
// decides.
type CodeGenerator struct {
	length      int
	maxAttempts int
	draw        func(length int) (string, error)
}

func NewCodeGenerator(length, maxAttempts int) *CodeGenerator {
	return &CodeGenerator{
		length:      length,
		maxAttempts: maxAttempts,
		draw:        drawCode,
	}
}

// Generate returns a code not seen by checker, the number of draws used, or a
// KindCodeSpaceExhausted error once maxAttempts draws all collided.
func (g *CodeGenerator) Generate(ctx context.Context, checker CodeChecker) (string, int, error) {
	code, attempts, err := retry.Bounded(ctx, g.maxAttempts, func(ctx context.Context, _ int) (string, bool, error) {
		candidate, err := g.draw(g.length)
		if err != nil {
			return "", false, err
		}
		exists, err := checker.OrganizationCodeExists(ctx, candidate)
		if err != nil {
			return "", false, fmt.Errorf("check organization code: %w", err)
		}
		return candidate, !exists, nil
	})
	if errors.Is(err, retry.ErrExhausted) {
		return "", attempts, &Error{
			Kind:    KindCodeSpaceExhausted,
			Message: msgInternal,
			Err:     fmt.Errorf("no free organization code after %d attempts", attempts),
		}
	}
	if err != nil {
		return "", attempts, err
	}
	return code, attempts, nil
}

func drawCode(length int) (string, error) {
	size := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("draw organization code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
