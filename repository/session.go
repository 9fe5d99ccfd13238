package repository

import (
	"context"
	"time"

	"github.com/NightOwlRecon/IntriCase/domain"
)

// SessionRepository persists sessions. Get returns domain.ErrSessionNotFound on
// a miss; Delete of an unknown id is not an error.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	Delete(ctx context.Context, id string) error
	// DeleteCreatedBefore removes sessions created at or before cutoff and
	// returns how many were removed.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
