package usecase

import (
	"context"
	"time"

	"github.com/NightOwlRecon/IntriCase/domain"
)

// PasswordHasher derives and checks stored credential records.
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, encoded, plaintext string) (bool, error)
}

// TokenGenerator produces unguessable URL-safe one-time tokens.
type TokenGenerator interface {
	GenerateToken() (string, error)
}

// Notifier delivers the pending OTP of a user out of band. Implementations read
// the token from the user record at send time.
type Notifier interface {
	NotifyActivation(ctx context.Context, user *domain.User) error
	NotifyPasswordReset(ctx context.Context, user *domain.User) error
}

// Clock returns the current time. Use cases take one so validity windows can
// be tested at exact boundaries.
type Clock func() time.Time

// SystemClock is the default Clock.
func SystemClock() time.Time {
	return time.Now()
}
