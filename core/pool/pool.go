// Package pool owns a bounded set of live MailAdapter handles: health
// checks, borrow/return, idle eviction, and max-age recycling (C2). The
// shape follows the teacher's worker pool (sizing knobs, a background
// maintenance loop, atomic counters) adapted from "pool of job workers" to
// "pool of adapter connections" — borrow/return replaces submit/consume.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"bridgify/core/port/out"
)

// Config holds connection pool sizing and lifecycle knobs.
type Config struct {
	MinConnections int
	MaxConnections int
	MaxIdle        time.Duration
	MaxAge         time.Duration
	ProbeInterval  time.Duration
	StrictStartup  bool
}

func DefaultConfig() Config {
	return Config{
		MinConnections: 2,
		MaxConnections: 10,
		MaxIdle:        5 * time.Minute,
		MaxAge:         30 * time.Minute,
		ProbeInterval:  30 * time.Second,
		StrictStartup:  false,
	}
}

// handle wraps one MailAdapter with the pool's own bookkeeping.
type handle struct {
	id        string
	adapter   out.MailAdapter
	breaker   *gobreaker.CircuitBreaker
	createdAt time.Time
	lastUsed  time.Time
	idle      bool
}

// Outcome classifies how a borrowed handle's call went, driving the
// retire-vs-keep-idle decision in Release.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeTransportFailure
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = fmt.Errorf("connection pool closed")

// Pool borrows and retires MailAdapter handles built by a single factory.
type Pool struct {
	factory out.MailAdapterFactory
	cfg     Config
	log     zerolog.Logger

	mu      sync.Mutex
	handles map[string]*handle
	waiters []chan struct{}

	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Pool and opens MinConnections handles eagerly. If
// StrictStartup is set and any initial handle fails to open, New returns the
// error instead of starting with a degraded pool.
func New(ctx context.Context, factory out.MailAdapterFactory, cfg Config, log zerolog.Logger) (*Pool, error) {
	pctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		factory: factory,
		cfg:     cfg,
		log:     log.With().Str("component", "connection_pool").Logger(),
		handles: make(map[string]*handle),
		cancel:  cancel,
	}

	for i := 0; i < cfg.MinConnections; i++ {
		h, err := p.openHandle(ctx)
		if err != nil {
			if cfg.StrictStartup {
				cancel()
				return nil, fmt.Errorf("strict startup: open handle %d/%d: %w", i+1, cfg.MinConnections, err)
			}
			p.log.Warn().Err(err).Msg("failed to open initial handle, continuing degraded")
			continue
		}
		p.handles[h.id] = h
	}

	p.wg.Add(1)
	go p.maintain(pctx)

	return p, nil
}

func (p *Pool) openHandle(ctx context.Context) (*handle, error) {
	adapter, err := p.factory.NewHandle(ctx)
	if err != nil {
		return nil, err
	}
	if err := adapter.Probe(ctx); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        id,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	now := time.Now()
	return &handle{
		id:        id,
		adapter:   adapter,
		breaker:   breaker,
		createdAt: now,
		lastUsed:  now,
		idle:      true,
	}, nil
}

// Acquire returns an idle, breaker-closed handle, opening a new one if the
// pool has spare capacity, or blocks (FIFO) until one is released or ctx's
// deadline elapses.
func (p *Pool) Acquire(ctx context.Context) (out.MailAdapter, string, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, "", ErrPoolClosed
		}

		if h := p.pickIdleLocked(); h != nil {
			h.idle = false
			p.mu.Unlock()
			return h.adapter, h.id, nil
		}

		if len(p.handles) < p.cfg.MaxConnections {
			p.mu.Unlock()
			h, err := p.openHandle(ctx)
			if err != nil {
				return nil, "", out.NewAdapterError(out.FailureUnavailable, "open new handle", err)
			}
			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				return nil, "", ErrPoolClosed
			}
			h.idle = false
			p.handles[h.id] = h
			p.mu.Unlock()
			return h.adapter, h.id, nil
		}

		wake := make(chan struct{})
		p.waiters = append(p.waiters, wake)
		p.mu.Unlock()

		select {
		case <-wake:
			continue
		case <-ctx.Done():
			return nil, "", out.NewAdapterError(out.FailureTimeout, "acquire timed out waiting for a handle", ctx.Err())
		}
	}
}

// pickIdleLocked returns an idle handle whose breaker is not open, or nil.
// Caller must hold p.mu.
func (p *Pool) pickIdleLocked() *handle {
	for _, h := range p.handles {
		if !h.idle {
			continue
		}
		if h.breaker.State() == gobreaker.StateOpen {
			continue
		}
		return h
	}
	return nil
}

// Release returns a handle after use. A transport-level failure retires it
// and schedules a replacement; otherwise it goes back to idle.
func (p *Pool) Release(id string, outcome Outcome) {
	p.mu.Lock()
	h, ok := p.handles[id]
	if !ok {
		p.mu.Unlock()
		return
	}

	if outcome == OutcomeTransportFailure {
		h.breaker.Execute(func() (interface{}, error) { return nil, fmt.Errorf("transport failure") })
		delete(p.handles, id)
		p.mu.Unlock()
		p.wakeOneWaiter()
		go p.replenish()
		return
	}

	h.breaker.Execute(func() (interface{}, error) { return nil, nil })
	h.idle = true
	h.lastUsed = time.Now()
	p.mu.Unlock()
	p.wakeOneWaiter()
}

func (p *Pool) wakeOneWaiter() {
	p.mu.Lock()
	if len(p.waiters) == 0 {
		p.mu.Unlock()
		return
	}
	wake := p.waiters[0]
	p.waiters = p.waiters[1:]
	p.mu.Unlock()
	close(wake)
}

// replenish opens a replacement handle up to MinConnections after a
// retirement, mirroring the spec's "asynchronously build a replacement".
func (p *Pool) replenish() {
	p.mu.Lock()
	count := len(p.handles)
	p.mu.Unlock()
	if count >= p.cfg.MinConnections {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h, err := p.openHandle(ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("failed to replenish retired handle")
		return
	}

	p.mu.Lock()
	if !p.closed {
		p.handles[h.id] = h
	}
	p.mu.Unlock()
}

// maintain runs the periodic eviction/probe pass.
func (p *Pool) maintain(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runMaintenance(ctx)
		}
	}
}

func (p *Pool) runMaintenance(ctx context.Context) {
	now := time.Now()

	// Pass 1: retire idle handles past max-age/max-idle, keeping at least
	// MinConnections. Pass 2: probe survivors and retire failed probes.
	p.mu.Lock()
	var survivors []*handle
	for _, h := range p.handles {
		if !h.idle {
			survivors = append(survivors, h)
			continue
		}
		expired := (p.cfg.MaxAge > 0 && now.Sub(h.createdAt) > p.cfg.MaxAge) ||
			(p.cfg.MaxIdle > 0 && now.Sub(h.lastUsed) > p.cfg.MaxIdle)
		if expired && len(p.handles) > p.cfg.MinConnections {
			delete(p.handles, h.id)
			continue
		}
		survivors = append(survivors, h)
	}
	p.mu.Unlock()

	for _, h := range survivors {
		if !h.idle {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := h.adapter.Probe(probeCtx)
		cancel()
		if err != nil {
			p.mu.Lock()
			delete(p.handles, h.id)
			p.mu.Unlock()
			p.log.Warn().Str("handle_id", h.id).Err(err).Msg("handle failed maintenance probe, retiring")
		}
	}

	p.mu.Lock()
	count := len(p.handles)
	p.mu.Unlock()
	for count < p.cfg.MinConnections {
		h, err := p.openHandle(ctx)
		if err != nil {
			p.log.Warn().Err(err).Msg("failed to restore minimum connections")
			break
		}
		p.mu.Lock()
		p.handles[h.id] = h
		count = len(p.handles)
		p.mu.Unlock()
	}
}

// Stats is the pool snapshot surfaced by the health probe (C11).
type Stats struct {
	Total int
	Idle  int
	InUse int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{Total: len(p.handles)}
	for _, h := range p.handles {
		if h.idle {
			stats.Idle++
		} else {
			stats.InUse++
		}
	}
	return stats
}

// Close retires every handle and stops the maintenance loop.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, wake := range p.waiters {
		close(wake)
	}
	p.waiters = nil
	p.handles = make(map[string]*handle)
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
