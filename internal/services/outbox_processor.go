package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/NightOwlRecon/IntriCase/domain"
	"github.com/NightOwlRecon/IntriCase/internal/infrastructure/outbox"
	"github.com/NightOwlRecon/IntriCase/internal/mail"
	"github.com/NightOwlRecon/IntriCase/repository"
)

// errStale marks an item whose token is gone or no longer applies. Such
// items are dropped without retry.
var errStale = errors.New("outbox item no longer applies")

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// ProcessorConfig controls how frequently the outbox is drained.
type ProcessorConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	// Retention bounds how long an undeliverable item stays queued.
	Retention time.Duration
	// OTPValidity lets the processor skip tokens that already expired.
	OTPValidity time.Duration
}

// OutboxProcessor delivers queued activation and reset emails. The token is
// read from the user record at send time.
type OutboxProcessor struct {
	store    *outbox.Store
	monitor  ConnectionHealth
	users    repository.UserRepository
	renderer *mail.Renderer
	mailer   Mailer
	logger   *zap.Logger
	cron     *cron.Cron
	cfg      ProcessorConfig
	now      func() time.Time

	// submitted feeds items handed over by Submit to the worker.
	submitted chan outbox.Item
	stop      chan struct{}
	stopOnce  sync.Once
	worker    sync.WaitGroup
	// draining serializes Drain so the worker and cron never send an item twice.
	draining sync.Mutex
}

const submitBuffer = 256

func NewOutboxProcessor(
	store *outbox.Store,
	monitor ConnectionHealth,
	users repository.UserRepository,
	renderer *mail.Renderer,
	mailer Mailer,
	logger *zap.Logger,
	cfg ProcessorConfig,
) *OutboxProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &OutboxProcessor{
		store:    store,
		monitor:  monitor,
		users:    users,
		renderer: renderer,
		mailer:   mailer,
		logger:   logger,
		cfg:      cfg,
		cron:     cron.New(cron.WithSeconds()),
		now:      time.Now,

		submitted: make(chan outbox.Item, submitBuffer),
		stop:      make(chan struct{}),
	}

	schedule := fmt.Sprintf("@every %ds", int(cfg.Interval.Seconds()))
	_, _ = p.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := p.Drain(ctx); err != nil {
			p.logger.Error("outbox drain failed", zap.Error(err))
		}
		p.cleanup()
	})

	return p
}

// Start launches the cron scheduler and the worker consuming Submit.
func (p *OutboxProcessor) Start() {
	if p == nil || p.cron == nil {
		return
	}
	p.cron.Start()
	p.worker.Add(1)
	go p.run()
	p.logger.Info("outbox processor started", zap.Duration("interval", p.cfg.Interval))
}

// Stop waits for a running drain to finish or ctx to expire.
func (p *OutboxProcessor) Stop(ctx context.Context) {
	if p == nil || p.cron == nil {
		return
	}
	p.stopOnce.Do(func() { close(p.stop) })
	stopCtx := p.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}

	done := make(chan struct{})
	go func() {
		p.worker.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	p.logger.Info("outbox processor stopped")
}

// Drain processes one batch synchronously.
func (p *OutboxProcessor) Drain(ctx context.Context) error {
	if p == nil || p.store == nil {
		return nil
	}
	if p.monitor != nil && !p.monitor.IsOnline() {
		p.logger.Debug("skipping outbox drain (offline)")
		return nil
	}

	p.draining.Lock()
	defer p.draining.Unlock()

	items, err := p.store.GetBatch(p.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, item := range items {
		err := p.processItem(ctx, item)
		switch {
		case err == nil:
		case errors.Is(err, errStale):
			p.logger.Debug("dropping stale outbox item", zap.String("item_id", item.ID), zap.String("kind", string(item.Kind)))
		default:
			p.logger.Error("failed to deliver outbox item",
				zap.String("item_id", item.ID),
				zap.String("kind", string(item.Kind)),
				zap.Error(err))

			item.Retries++
			if item.Retries < p.cfg.MaxRetries {
				if err := p.store.Requeue(item); err != nil {
					p.logger.Error("failed to requeue outbox item", zap.Error(err))
				}
				continue
			}
			p.logger.Warn("dropping outbox item (max retries reached)", zap.String("item_id", item.ID), zap.String("user_id", item.UserID))
		}

		if err := p.store.Remove(item); err != nil {
			p.logger.Warn("failed to purge outbox item", zap.Error(err))
		}
	}
	return nil
}

// Dispatch tries to deliver immediately and falls back to queueing.
func (p *OutboxProcessor) Dispatch(ctx context.Context, item outbox.Item) error {
	if p == nil || p.store == nil {
		return fmt.Errorf("outbox processor not configured")
	}

	if p.monitor == nil || p.monitor.IsOnline() {
		err := p.processItem(ctx, item)
		if err == nil || errors.Is(err, errStale) {
			return nil
		}
		p.logger.Warn("immediate delivery failed, queueing", zap.String("user_id", item.UserID), zap.Error(err))
	}
	return p.store.Enqueue(item)
}

// Submit hands item to the background worker without doing any I/O on the
// caller's path. When the hand-off buffer is full the item is written to the
// outbox directly and picked up by the next scheduled drain.
func (p *OutboxProcessor) Submit(item outbox.Item) error {
	if p == nil || p.store == nil {
		return fmt.Errorf("outbox processor not configured")
	}
	select {
	case p.submitted <- item:
		return nil
	default:
		return p.store.Enqueue(item)
	}
}

func (p *OutboxProcessor) run() {
	defer p.worker.Done()
	for {
		select {
		case <-p.stop:
			p.flushSubmitted()
			return
		case item := <-p.submitted:
			if err := p.store.Enqueue(item); err != nil {
				p.logger.Error("failed to queue submitted item", zap.String("user_id", item.UserID), zap.Error(err))
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Interval)
			if err := p.Drain(ctx); err != nil {
				p.logger.Error("outbox drain failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// flushSubmitted persists items still buffered at shutdown so a restart
// delivers them.
func (p *OutboxProcessor) flushSubmitted() {
	for {
		select {
		case item := <-p.submitted:
			if err := p.store.Enqueue(item); err != nil {
				p.logger.Error("failed to queue submitted item", zap.String("user_id", item.UserID), zap.Error(err))
			}
		default:
			return
		}
	}
}

// Size returns the number of queued items.
func (p *OutboxProcessor) Size() int {
	if p == nil || p.store == nil {
		return 0
	}
	size, err := p.store.Size()
	if err != nil {
		return 0
	}
	return size
}

func (p *OutboxProcessor) processItem(ctx context.Context, item outbox.Item) error {
	if ctx == nil {
		ctx = context.Background()
	}

	user, err := p.users.GetByID(ctx, item.UserID)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return errStale
		}
		return err
	}
	if !user.HasPendingOTP() || !user.OTPValid(*user.OTP, p.now(), p.cfg.OTPValidity) {
		return errStale
	}

	var kind mail.Kind
	switch item.Kind {
	case outbox.KindActivation:
		if user.HasCredential() {
			return errStale
		}
		kind = mail.Activation
	case outbox.KindPasswordReset:
		if !user.IsActive() {
			return errStale
		}
		kind = mail.PasswordReset
	default:
		return fmt.Errorf("%w: unsupported kind %s", errStale, item.Kind)
	}

	recipient := mail.Recipient{UserID: user.ID, Email: user.Email, OTP: *user.OTP}
	if user.DisplayName != nil {
		recipient.DisplayName = *user.DisplayName
	}
	msg, err := p.renderer.Render(kind, recipient)
	if err != nil {
		return err
	}
	if err := p.mailer.Send(ctx, msg); err != nil {
		return err
	}
	p.logger.Info("notification sent", zap.String("user_id", user.ID), zap.String("kind", string(item.Kind)))
	return nil
}

func (p *OutboxProcessor) cleanup() {
	if p.cfg.Retention <= 0 {
		return
	}
	removed, err := p.store.Cleanup(p.now().Add(-p.cfg.Retention))
	if err != nil {
		p.logger.Warn("outbox cleanup failed", zap.Error(err))
		return
	}
	if removed > 0 {
		p.logger.Warn("expired undelivered notifications", zap.Int("count", removed))
	}
}
