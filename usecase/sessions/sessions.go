package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NightOwlRecon/IntriCase/domain"
	"github.com/NightOwlRecon/IntriCase/repository"
	"github.com/NightOwlRecon/IntriCase/usecase"
)

// UseCase is the session store.
type UseCase struct {
	repo   repository.SessionRepository
	maxAge time.Duration
	now    usecase.Clock
	logger *zap.Logger
}

type Option func(*UseCase)

// WithClock overrides the time source.
func WithClock(clock usecase.Clock) Option {
	return func(uc *UseCase) {
		if clock != nil {
			uc.now = clock
		}
	}
}

// New builds the store. A non-positive maxAge makes every session invalid.
func New(repo repository.SessionRepository, maxAge time.Duration, logger *zap.Logger, opts ...Option) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	uc := &UseCase{
		repo:   repo,
		maxAge: maxAge,
		now:    usecase.SystemClock,
		logger: logger,
	}
	for _, opt := range opts {
		opt(uc)
	}
	if maxAge <= 0 {
		uc.logger.Warn("session validity window not configured, all sessions will be rejected")
	}
	return uc
}

func (uc *UseCase) Create(ctx context.Context, user *domain.User) (*domain.Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "allocate session id", err)
	}
	session := &domain.Session{
		ID:        id.String(),
		UserID:    user.ID,
		CreatedAt: uc.now(),
	}
	if err := uc.repo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (uc *UseCase) Find(ctx context.Context, id string) (*domain.Session, error) {
	if id == "" {
		return nil, domain.ErrSessionNotFound
	}
	return uc.repo.Get(ctx, id)
}

func (uc *UseCase) IsValid(session *domain.Session) bool {
	return session.IsValid(uc.now(), uc.maxAge)
}

// Delete is idempotent.
func (uc *UseCase) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return uc.repo.Delete(ctx, id)
}

// DeleteExpired removes every session the validity check would reject. It does
// nothing while the window is unconfigured; the gate still rejects and evicts
// those sessions one by one.
func (uc *UseCase) DeleteExpired(ctx context.Context) (int64, error) {
	if uc.maxAge <= 0 {
		return 0, nil
	}
	return uc.repo.DeleteCreatedBefore(ctx, uc.now().Add(-uc.maxAge))
}

// MaxAge exposes the configured validity window.
func (uc *UseCase) MaxAge() time.Duration {
	return uc.maxAge
}
