package monitor

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/NightOwlRecon/IntriCase/internal/infrastructure/outbox"
)

// Probe reports whether a dependency is reachable.
type Probe func(ctx context.Context) error

type check struct {
	name     string
	probe    Probe
	required bool
	timeout  time.Duration
}

// Monitor probes dependencies periodically and caches the result for the
// health endpoint and the outbox processor.
type Monitor struct {
	checks []check
	outbox *outbox.Store

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

type Option func(*Monitor)

// WithPostgres adds a required probe for the primary store.
func WithPostgres(pool *pgxpool.Pool) Option {
	return func(m *Monitor) {
		if pool == nil {
			return
		}
		m.checks = append(m.checks, check{name: "postgresql", required: true, timeout: 3 * time.Second, probe: pool.Ping})
	}
}

// WithRedis adds a required probe for the session store.
func WithRedis(client redislib.UniversalClient) Option {
	return func(m *Monitor) {
		if client == nil {
			return
		}
		m.checks = append(m.checks, check{name: "redis", required: true, timeout: 2 * time.Second, probe: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	}
}

// WithSMTP adds an optional reachability probe for the mail relay.
func WithSMTP(addr string) Option {
	return func(m *Monitor) {
		if addr == "" {
			return
		}
		m.checks = append(m.checks, check{name: "smtp", timeout: 3 * time.Second, probe: func(ctx context.Context) error {
			var d net.Dialer
			conn, err := d.DialContext(ctx, "tcp", addr)
			if err != nil {
				return err
			}
			return conn.Close()
		}})
	}
}

// WithOutbox reports the pending notification count.
func WithOutbox(store *outbox.Store) Option {
	return func(m *Monitor) {
		m.outbox = store
	}
}

// WithProbe adds a custom probe.
func WithProbe(name string, required bool, probe Probe) Option {
	return func(m *Monitor) {
		m.checks = append(m.checks, check{name: name, required: required, timeout: 3 * time.Second, probe: probe})
	}
}

func New(interval time.Duration, logger *zap.Logger, opts ...Option) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// IsOnline reports whether every required dependency answered the last probe.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Healthy
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := m.status
	status.Services = make(map[string]bool, len(m.status.Services))
	for k, v := range m.status.Services {
		status.Services[k] = v
	}
	return status
}

// Refresh runs all probes once.
func (m *Monitor) Refresh(ctx context.Context) {
	status := Status{
		Services:  make(map[string]bool, len(m.checks)),
		Healthy:   true,
		LastCheck: time.Now(),
	}
	for _, c := range m.checks {
		ok := m.run(ctx, c)
		status.Services[c.name] = ok
		if c.required && !ok {
			status.Healthy = false
		}
	}
	if m.outbox != nil {
		size, err := m.outbox.Size()
		if err != nil {
			m.logger.Warn("outbox size check failed", zap.Error(err))
		}
		status.Services["outbox"] = err == nil
		status.OutboxSize = size
	}

	m.mu.Lock()
	prev := m.status.Healthy
	m.status = status
	m.mu.Unlock()

	if prev && !status.Healthy {
		m.logger.Warn("dependencies unhealthy", zap.Any("services", status.Services))
	}
}

func (m *Monitor) run(ctx context.Context, c check) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.probe(probeCtx); err != nil {
		m.logger.Debug("probe failed", zap.String("service", c.name), zap.Error(err))
		return false
	}
	return true
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Refresh(context.Background())
	for {
		select {
		case <-ticker.C:
			m.Refresh(context.Background())
		case <-m.stopCh:
			return
		}
	}
}
