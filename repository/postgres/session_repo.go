package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NightOwlRecon/IntriCase/domain"
	"github.com/NightOwlRecon/IntriCase/repository"
)

type sessionRepository struct {
	db DB
}

// NewSessionRepository instantiates a Postgres-backed session repository.
func NewSessionRepository(db DB) repository.SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return domain.ErrInvalidPayload
	}
	const query = `INSERT INTO sessions (id, user_id, created_at) VALUES ($1, $2, $3)`
	_, err := r.db.Exec(ctx, query, session.ID, session.UserID, session.CreatedAt)
	return persistenceError("insert session", err)
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	const query = `SELECT id, user_id, created_at FROM sessions WHERE id = $1`

	var s domain.Session
	if err := r.db.QueryRow(ctx, query, id).Scan(&s.ID, &s.UserID, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, persistenceError("get session", err)
	}
	return &s, nil
}

func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM sessions WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id)
	return persistenceError("delete session", err)
}

func (r *sessionRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM sessions WHERE created_at <= $1`
	tag, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, persistenceError("delete expired sessions", err)
	}
	return tag.RowsAffected(), nil
}
