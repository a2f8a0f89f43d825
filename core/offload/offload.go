// Package offload runs blocking MailAdapter calls on a fixed-size worker
// pool so the request-handling event loop is never blocked waiting on
// Graph. Built on github.com/go-pkgz/pool, the same library and Submit/Go
// idiom as adapter/in/worker/worker_pool.go used for its background job
// queue — here wrapped with a typed result channel per call instead of
// fire-and-forget delivery, since a handler needs the adapter call's return
// value, not just its completion.
package offload

import (
	"context"

	"github.com/go-pkgz/pool"

	"bridgify/pkg/apperr"
)

// job is the payload type the underlying WorkerGroup is instantiated with:
// a closure that performs the work and reports its outcome on resultCh.
type job func(ctx context.Context) error

type jobWorker struct{}

func (jobWorker) Do(ctx context.Context, j job) error { return j(ctx) }

// Pool is a fixed-size offload pool sized to equal the adapter connection
// pool's max_connections, since there is never a benefit to more offload
// workers than available handles.
type Pool struct {
	group *pool.WorkerGroup[job]
}

// New builds a pool with workers goroutines servicing offloaded calls.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		group: pool.New[job](workers, jobWorker{}).
			WithWorkerChanSize(workers * 4).
			WithContinueOnError(),
	}
}

// Start launches the pool's workers. ctx governs the workers' lifetime, not
// any individual call.
func (p *Pool) Start(ctx context.Context) error {
	return p.group.Go(ctx)
}

// Close drains in-flight work and stops the pool's workers.
func (p *Pool) Close(ctx context.Context) error {
	return p.group.Close(ctx)
}

type result[T any] struct {
	value T
	err   error
}

// Run offloads fn onto the pool and blocks until it completes or ctx is
// canceled, whichever comes first. The adapter call
// itself still owns its own deadline via ctx; Run only changes which
// goroutine executes it.
func Run[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	resultCh := make(chan result[T], 1)

	p.group.Submit(job(func(jctx context.Context) error {
		v, err := fn(jctx)
		resultCh <- result[T]{value: v, err: err}
		return err
	}))

	select {
	case r := <-resultCh:
		return r.value, r.err
	case <-ctx.Done():
		return zero, apperr.Wrap(apperr.KindTimeout, "offloaded call canceled", ctx.Err())
	}
}
