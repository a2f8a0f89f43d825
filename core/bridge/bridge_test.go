package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridgify/core/cache"
	"bridgify/core/domain"
	"bridgify/core/handlers"
	"bridgify/core/offload"
	"bridgify/core/pool"
	"bridgify/core/port/out"
	"bridgify/core/ratelimit"
)

type fakeAdapter struct{}

func (a *fakeAdapter) Probe(ctx context.Context) error { return nil }
func (a *fakeAdapter) ListFolders(ctx context.Context) ([]domain.Folder, error) {
	return nil, nil
}
func (a *fakeAdapter) ResolveInbox(ctx context.Context) (string, error) { return "", nil }
func (a *fakeAdapter) ListEmails(ctx context.Context, folderID string, unreadOnly bool, limit int) ([]domain.EmailSummary, error) {
	return nil, nil
}
func (a *fakeAdapter) GetEmail(ctx context.Context, emailID string) (*domain.EmailFull, error) {
	return nil, nil
}
func (a *fakeAdapter) Search(ctx context.Context, query, folderID string, limit int) ([]domain.EmailSummary, error) {
	return nil, nil
}
func (a *fakeAdapter) Send(ctx context.Context, msg domain.OutgoingEmail) (string, error) {
	return "", nil
}

type fakeFactory struct{}

func (f *fakeFactory) NewHandle(ctx context.Context) (out.MailAdapter, error) {
	return &fakeAdapter{}, nil
}

func newTestBridge(t *testing.T, cfg Config) *Bridge {
	t.Helper()
	p, err := pool.New(context.Background(), &fakeFactory{}, pool.Config{
		MinConnections: 1, MaxConnections: 2, MaxIdle: time.Hour, MaxAge: time.Hour, ProbeInterval: time.Hour,
	}, zerolog.Nop())
	require.NoError(t, err)

	c := cache.New(cache.Config{MaxItems: 100, ByteBudget: 1 << 20, CleanupInterval: time.Hour, EvictToRatio: 0.8}, nil)
	limiter := ratelimit.New(ratelimit.Config{RPS: 1000, Burst: 1000, PerMinute: 10000, PerHour: 100000, PerCallerCap: 100}, nil)
	o := offload.New(2)
	h := handlers.New(p, c, limiter, o)

	return New(cfg, p, c, limiter, h, o)
}

func defaultTestConfig() Config {
	return Config{MaxConcurrent: 2, QueueDeadline: 50 * time.Millisecond, ShutdownGrace: time.Second}
}

func TestBridge_StartTransitionsToRunning(t *testing.T) {
	b := newTestBridge(t, defaultTestConfig())
	assert.Equal(t, StateInitializing, b.State())

	require.NoError(t, b.Start(context.Background()))
	assert.Equal(t, StateRunning, b.State())

	require.NoError(t, b.Shutdown(context.Background()))
}

func TestBridge_Admit_BoundsConcurrency(t *testing.T) {
	b := newTestBridge(t, defaultTestConfig()) // MaxConcurrent: 2
	require.NoError(t, b.Start(context.Background()))
	defer b.Shutdown(context.Background())

	_, err := b.Admit(context.Background())
	require.NoError(t, err)
	_, err = b.Admit(context.Background())
	require.NoError(t, err)

	_, err = b.Admit(context.Background())
	assert.Error(t, err, "a third concurrent admission should be overloaded")
}

func TestBridge_Admit_ReleaseFreesSlot(t *testing.T) {
	b := newTestBridge(t, defaultTestConfig())
	require.NoError(t, b.Start(context.Background()))
	defer b.Shutdown(context.Background())

	release1, err := b.Admit(context.Background())
	require.NoError(t, err)
	release2, err := b.Admit(context.Background())
	require.NoError(t, err)

	release1()

	_, err = b.Admit(context.Background())
	assert.NoError(t, err, "releasing a slot should allow a new admission")

	release2()
}

func TestBridge_Health_ReflectsPoolAndCacheState(t *testing.T) {
	b := newTestBridge(t, defaultTestConfig())
	require.NoError(t, b.Start(context.Background()))
	defer b.Shutdown(context.Background())

	h := b.Health()
	assert.Equal(t, StateRunning, h.State)
	assert.True(t, h.OutlookConnected)
	assert.GreaterOrEqual(t, h.PoolStats.Total, 1)
}

func TestBridge_Shutdown_TransitionsToStopped(t *testing.T) {
	b := newTestBridge(t, defaultTestConfig())
	require.NoError(t, b.Start(context.Background()))

	err := b.Shutdown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateStopped, b.State())
}

func TestBridge_Shutdown_WaitsForInFlightRequests(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.ShutdownGrace = time.Second
	b := newTestBridge(t, cfg)
	require.NoError(t, b.Start(context.Background()))

	release, err := b.Admit(context.Background())
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		release()
	}()

	err = b.Shutdown(context.Background())
	assert.NoError(t, err, "shutdown should succeed once the in-flight request releases in time")
}

func TestBridge_RequestContext_NoTimeoutConfiguredReturnsSameCtx(t *testing.T) {
	cfg := defaultTestConfig() // RequestTimeout left at zero value
	b := newTestBridge(t, cfg)

	parent := context.Background()
	ctx, cancel := b.RequestContext(parent)
	defer cancel()

	assert.Equal(t, parent, ctx)
	_, hasDeadline := ctx.Deadline()
	assert.False(t, hasDeadline)
}

func TestBridge_RequestContext_AppliesConfiguredTimeout(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.RequestTimeout = 50 * time.Millisecond
	b := newTestBridge(t, cfg)

	ctx, cancel := b.RequestContext(context.Background())
	defer cancel()

	select {
	case <-ctx.Done():
		t.Fatal("context should not be done immediately")
	default:
	}

	<-time.After(80 * time.Millisecond)
	assert.Error(t, ctx.Err(), "context should expire once RequestTimeout elapses")
}

func TestBridge_RequestContext_HonorsEarlierParentDeadline(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.RequestTimeout = time.Hour // generous per-request budget

	b := newTestBridge(t, cfg)

	parent, parentCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer parentCancel()

	ctx, cancel := b.RequestContext(parent)
	defer cancel()

	<-time.After(50 * time.Millisecond)
	assert.Error(t, ctx.Err(), "a shorter client deadline must still bound the request even though RequestTimeout is larger")
}

func TestBridge_Shutdown_ExceedsGracePeriod(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.ShutdownGrace = 10 * time.Millisecond
	b := newTestBridge(t, cfg)
	require.NoError(t, b.Start(context.Background()))

	_, err := b.Admit(context.Background()) // never released
	require.NoError(t, err)

	err = b.Shutdown(context.Background())
	assert.Error(t, err, "shutdown should report an error when the grace period is exceeded")
}
