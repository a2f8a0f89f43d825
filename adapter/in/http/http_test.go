package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridgify/core/bridge"
	"bridgify/core/cache"
	"bridgify/core/domain"
	"bridgify/core/handlers"
	"bridgify/core/offload"
	"bridgify/core/pool"
	"bridgify/core/port/out"
	"bridgify/core/ratelimit"
	"bridgify/rpc"
)

func bytesReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return data
}

type fakeAdapter struct {
	folders []domain.Folder
	sentID  string
}

func (a *fakeAdapter) Probe(ctx context.Context) error { return nil }
func (a *fakeAdapter) ListFolders(ctx context.Context) ([]domain.Folder, error) {
	return a.folders, nil
}
func (a *fakeAdapter) ResolveInbox(ctx context.Context) (string, error) { return "inbox", nil }
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
	return a.sentID, nil
}

type fakeFactory struct{ adapter out.MailAdapter }

func (f *fakeFactory) NewHandle(ctx context.Context) (out.MailAdapter, error) { return f.adapter, nil }

func newTestBridge(t *testing.T) *bridge.Bridge {
	t.Helper()
	p, err := pool.New(context.Background(), &fakeFactory{adapter: &fakeAdapter{folders: []domain.Folder{{ID: "inbox"}}}}, pool.Config{
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

func TestHealthHandler_ReturnsHealthyStatus(t *testing.T) {
	b := newTestBridge(t)
	app := fiber.New()
	NewHealthHandler(b).Register(app)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMCPHandler_RejectsBeforeInitialize(t *testing.T) {
	b := newTestBridge(t)
	app := fiber.New()
	NewMCPHandler(b).Register(app)

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"get_folders"}`)
	req := httptest.NewRequest(fiber.MethodPost, "/mcp", bytesReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "JSON-RPC errors are always carried in a 200 envelope")

	data := readBody(t, resp)
	var decoded rpc.Response
	require.NoError(t, rpc.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.Error)
	assert.Equal(t, -32000, decoded.Error.Code)
}

func TestMCPHandler_OverloadedAdmissionReturns200WithJSONRPCEnvelope(t *testing.T) {
	b := newTestBridge(t) // MaxConcurrent: 10
	app := fiber.New()
	NewMCPHandler(b).Register(app)

	releases := make([]func(), 0, 10)
	for i := 0; i < 10; i++ {
		release, err := b.Admit(context.Background())
		require.NoError(t, err)
		releases = append(releases, release)
	}
	defer func() {
		for _, r := range releases {
			r()
		}
	}()

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"get_folders"}`)
	req := httptest.NewRequest(fiber.MethodPost, "/mcp", bytesReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, int(2*time.Second/time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "an overloaded admission must still answer 200 per the JSON-RPC envelope contract")

	var decoded rpc.Response
	require.NoError(t, rpc.Unmarshal(readBody(t, resp), &decoded))
	require.NotNil(t, decoded.Error)
	assert.Equal(t, -32000, decoded.Error.Code)
	assert.Equal(t, "Overloaded", decoded.Error.Data.Type)
}

func TestMCPHandler_InitializeThenGetFolders(t *testing.T) {
	b := newTestBridge(t)
	app := fiber.New()
	NewMCPHandler(b).Register(app)

	initReq := httptest.NewRequest(fiber.MethodPost, "/mcp", bytesReader([]byte(
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"peer_name":"test","peer_version":"1.0"}}`,
	)))
	initResp, err := app.Test(initReq)
	require.NoError(t, err)
	var initDecoded rpc.Response
	require.NoError(t, rpc.Unmarshal(readBody(t, initResp), &initDecoded))
	require.Nil(t, initDecoded.Error)

	foldersReq := httptest.NewRequest(fiber.MethodPost, "/mcp", bytesReader([]byte(
		`{"jsonrpc":"2.0","id":2,"method":"get_folders"}`,
	)))
	foldersResp, err := app.Test(foldersReq)
	require.NoError(t, err)

	var decoded rpc.Response
	require.NoError(t, rpc.Unmarshal(readBody(t, foldersResp), &decoded))
	assert.Nil(t, decoded.Error)
}
