package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ExpiredSessionDeleter removes sessions older than the configured maximum age.
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// SessionSweeper periodically purges expired sessions. Expired sessions are
// already rejected on use; the sweep only reclaims storage.
type SessionSweeper struct {
	sessions ExpiredSessionDeleter
	cron     *cron.Cron
	logger   *zap.Logger
}

func NewSessionSweeper(sessions ExpiredSessionDeleter, interval time.Duration, logger *zap.Logger) *SessionSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SessionSweeper{
		sessions: sessions,
		cron:     cron.New(cron.WithSeconds()),
		logger:   logger,
	}
	schedule := fmt.Sprintf("@every %ds", int(interval.Seconds()))
	_, _ = s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		s.Sweep(ctx)
	})
	return s
}

// Sweep runs one purge.
func (s *SessionSweeper) Sweep(ctx context.Context) {
	n, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		s.logger.Error("session sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("expired sessions purged", zap.Int64("count", n))
	}
}

func (s *SessionSweeper) Start() {
	s.cron.Start()
}

func (s *SessionSweeper) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}
