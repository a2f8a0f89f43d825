// Package bridge implements the server core and lifecycle (C8): process
// states initializing -> running -> draining -> stopped, the admission
// semaphore bounding concurrent in-flight requests, the health probe, and
// graceful shutdown ordering. State-transition/shutdown-timeout shape is
// grounded on main.go's runAPI/runWorker pattern (signal channel + a
// context-with-timeout race against a completion channel), generalized
// into one reusable type both transports share.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"bridgify/core/cache"
	"bridgify/core/handlers"
	"bridgify/core/offload"
	"bridgify/core/pool"
	"bridgify/core/ratelimit"
	"bridgify/core/router"
	"bridgify/pkg/apperr"
	"bridgify/pkg/logger"
	"bridgify/pkg/poolhealth"
)

var log = logger.Component("bridge")

// State is one node of C8's process lifecycle.
type State string

const (
	StateInitializing State = "initializing"
	StateRunning      State = "running"
	StateDraining     State = "draining"
	StateStopped      State = "stopped"
)

// Config parameterizes admission, per-request, and shutdown behavior.
type Config struct {
	MaxConcurrent int
	QueueDeadline time.Duration

	// RequestTimeout bounds a single admitted request end to end (§4.2):
	// every pool acquire and adapter call the core issues while handling
	// it must observe this deadline. Zero disables it (no per-call
	// deadline beyond whatever the caller's own context already carries).
	RequestTimeout time.Duration

	ShutdownGrace time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrent:  64,
		QueueDeadline:  2 * time.Second,
		RequestTimeout: 30 * time.Second,
		ShutdownGrace:  20 * time.Second,
	}
}

// Bridge is the assembled server core: pool + limiter + cache + router
// behind one admission gate and one lifecycle state machine.
type Bridge struct {
	cfg Config

	Pool    *pool.Pool
	Cache   *cache.Cache
	Limiter *ratelimit.Limiter
	Router  *router.Router
	Offload *offload.Pool

	startedAt time.Time

	mu    sync.Mutex
	state State

	sem chan struct{}

	wg sync.WaitGroup
}

// New assembles a Bridge from already-constructed components (built by
// internal/bootstrap.Build) and admits it into "initializing".
func New(cfg Config, p *pool.Pool, c *cache.Cache, l *ratelimit.Limiter, h *handlers.Handlers, o *offload.Pool) *Bridge {
	return &Bridge{
		cfg:     cfg,
		Pool:    p,
		Cache:   c,
		Limiter: l,
		Router:  router.New(h),
		Offload: o,
		state:   StateInitializing,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Start transitions initializing -> running and launches the offload
// pool's workers. Call once all transports are about to begin accepting
// connections.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.Offload.Start(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	b.state = StateRunning
	b.startedAt = time.Now()
	b.mu.Unlock()
	log.Info().Msg("bridge transitioned to running")
	return nil
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Admit bounds concurrent in-flight requests to MaxConcurrent (§4.7). It
// blocks up to QueueDeadline for a free slot; exceeding that yields
// "overloaded". The returned release func must be called exactly once,
// however the request finishes.
func (b *Bridge) Admit(ctx context.Context) (release func(), err error) {
	deadlineCtx, cancel := context.WithTimeout(ctx, b.cfg.QueueDeadline)
	defer cancel()

	select {
	case b.sem <- struct{}{}:
		b.wg.Add(1)
		return func() {
			<-b.sem
			b.wg.Done()
		}, nil
	case <-deadlineCtx.Done():
		return nil, apperr.Overloaded()
	}
}

// RequestContext derives the per-call deadline (§4.2) that an admitted
// request's pool acquire and adapter call must observe: ctx wrapped with
// RequestTimeout, or ctx unchanged if RequestTimeout is unset. Since a
// timerCtx's Done fires as soon as either its own deadline or its parent's
// is reached, this already yields min(the caller's own deadline,
// RequestTimeout) without any extra arithmetic. The returned cancel must be
// called once the request finishes.
func (b *Bridge) RequestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.cfg.RequestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.cfg.RequestTimeout)
}

// HealthReport is the shape returned by the health probe (§4.7).
type HealthReport struct {
	State            State              `json:"state"`
	OutlookConnected bool               `json:"outlook_connected"`
	PoolStats        pool.Stats         `json:"pool_stats"`
	PoolHealth       poolhealth.Health  `json:"pool_health"`
	CacheStats       cache.Stats        `json:"cache_stats"`
	UptimeSeconds    float64            `json:"uptime_seconds"`
}

func (b *Bridge) Health() HealthReport {
	poolStats := b.Pool.Stats()
	maxConn := poolStats.Total
	if maxConn == 0 {
		maxConn = 1
	}
	return HealthReport{
		State:            b.State(),
		OutlookConnected: poolStats.Total > 0,
		PoolStats:        poolStats,
		PoolHealth:       poolhealth.Assess(poolStats.InUse, poolStats.Total, maxConn),
		CacheStats:       b.Cache.Stats(),
		UptimeSeconds:    time.Since(b.startedAt).Seconds(),
	}
}

// Shutdown drains the bridge (§4.7): stop admitting new work, give
// in-flight requests ShutdownGrace to finish, then flush the cache and
// close the pool. Mirrors main.go's shutdown-with-timeout race.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.state = StateDraining
	b.mu.Unlock()
	log.Info().Msg("bridge draining")

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	graceCtx, cancel := context.WithTimeout(ctx, b.cfg.ShutdownGrace)
	defer cancel()

	var err error
	select {
	case <-done:
		log.Info().Msg("in-flight requests drained cleanly")
	case <-graceCtx.Done():
		log.Warn().Msg("shutdown grace period exceeded, forcing close")
		err = errors.New("shutdown grace period exceeded")
	}

	if offloadErr := b.Offload.Close(ctx); offloadErr != nil {
		log.Warn().Err(offloadErr).Msg("offload pool close error")
	}
	b.Cache.Close()
	b.Pool.Close()

	b.mu.Lock()
	b.state = StateStopped
	b.mu.Unlock()
	log.Info().Msg("bridge stopped")
	return err
}
