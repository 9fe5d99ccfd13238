package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/NightOwlRecon/IntriCase/domain"
	"github.com/NightOwlRecon/IntriCase/repository"
)

const scanBatch = 200

type sessionRepository struct {
	client redislib.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewSessionRepository creates a Redis-backed session repository. Keys expire
// after ttl so Redis evicts sessions the validity check would reject anyway; a
// non-positive ttl falls back to one hour.
func NewSessionRepository(client redislib.UniversalClient, ttl time.Duration) repository.SessionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &sessionRepository{
		client: client,
		prefix: "session:",
		ttl:    ttl,
	}
}

func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return domain.ErrInvalidPayload
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, r.key(session.ID), payload, r.ttl).Err(); err != nil {
		return domain.WrapError(domain.ErrCodePersistence, "store session", err)
	}
	return nil
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	result, err := r.client.Get(ctx, r.key(id)).Result()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, domain.WrapError(domain.ErrCodePersistence, "load session", err)
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(result), &session); err != nil {
		return nil, domain.WrapError(domain.ErrCodePersistence, "decode session", err)
	}
	return &session, nil
}

func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return domain.WrapError(domain.ErrCodePersistence, "delete session", err)
	}
	return nil
}

func (r *sessionRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var (
		cursor  uint64
		removed int64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", scanBatch).Result()
		if err != nil {
			return removed, domain.WrapError(domain.ErrCodePersistence, "scan sessions", err)
		}
		for _, key := range keys {
			raw, err := r.client.Get(ctx, key).Bytes()
			if err != nil {
				continue
			}
			var s domain.Session
			if err := json.Unmarshal(raw, &s); err != nil || !s.CreatedAt.After(cutoff) {
				n, err := r.client.Del(ctx, key).Result()
				if err != nil {
					return removed, domain.WrapError(domain.ErrCodePersistence, "delete session", err)
				}
				removed += n
			}
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (r *sessionRepository) key(id string) string {
	return fmt.Sprintf("%s%s", r.prefix, id)
}
