package content

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"
)

const (
	minCode = 1000
	maxCode = 9999

	// maxCodeAttempts bounds the draws per upload. With 9000 codes it is
	// only reached when nearly every code is held by a live record.
	maxCodeAttempts = 1000
)

// CodeGenerator draws 4-digit codes not held by any live record.
type CodeGenerator struct {
	repo Repository
	intN func(n int) int
	now  func() time.Time
}

// NewCodeGenerator creates a generator checking codes against repo.
func NewCodeGenerator(repo Repository) *CodeGenerator {
	return &CodeGenerator{
		repo: repo,
		intN: rand.IntN,
		now:  time.Now,
	}
}

// Generate returns a code in the range 1000-9999 that no live record held
// when it was checked. The check is not atomic with the later insert; the
// repository's uniqueness constraint catches the race.
func (g *CodeGenerator) Generate(ctx context.Context) (string, error) {
	for range maxCodeAttempts {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		code := strconv.Itoa(minCode + g.intN(maxCode-minCode+1))
		exists, err := g.repo.Exists(ctx, code, g.now())
		if err != nil {
			return "", fmt.Errorf("failed to check code %s: %w", code, err)
		}
		if !exists {
			return code, nil
		}
		codeCollisionsTotal.Inc()
	}
	return "", ErrCodeSpaceExhausted
}

// ValidCode reports whether s has the shape of an issued code.
func ValidCode(s string) bool {
	if len(s) != 4 {
		return false
	}
	n, err := strconv.Atoi(s)
	return err == nil && n >= minCode && n <= maxCode
}
