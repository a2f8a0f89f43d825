package bootstrap

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridgify/config"
	"bridgify/core/bridge"
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

func newTestBridge(t *testing.T) *bridge.Bridge {
	t.Helper()
	p, err := pool.New(context.Background(), &fakeFactory{}, pool.Config{
		MinConnections: 1, MaxConnections: 2, MaxIdle: time.Hour, MaxAge: time.Hour, ProbeInterval: time.Hour,
	}, zerolog.Nop())
	require.NoError(t, err)

	c := cache.New(cache.Config{MaxItems: 100, ByteBudget: 1 << 20, CleanupInterval: time.Hour, EvictToRatio: 0.8}, nil)
	limiter := ratelimit.New(ratelimit.Config{RPS: 1000, Burst: 1000, PerMinute: 10000, PerHour: 100000, PerCallerCap: 100}, nil)
	o := offload.New(2)
	h := handlers.New(p, c, limiter, o)

	b := bridge.New(bridge.Config{MaxConcurrent: 10, QueueDeadline: time.Second, ShutdownGrace: time.Second}, p, c, limiter, h, o)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { b.Shutdown(context.Background()) })
	return b
}

func TestNewAPI_RegistersHealthAndMCPRoutes(t *testing.T) {
	b := newTestBridge(t)
	app := NewAPI(&config.Config{Environment: "development"}, b)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodPost, "/mcp",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`)))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestNewAPI_DisablesStartupMessageInProduction(t *testing.T) {
	b := newTestBridge(t)
	app := NewAPI(&config.Config{Environment: "production"}, b)
	assert.NotNil(t, app)
	assert.True(t, app.Config().DisableStartupMessage)
}
