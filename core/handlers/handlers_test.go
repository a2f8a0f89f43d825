package handlers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridgify/core/cache"
	"bridgify/core/domain"
	"bridgify/core/offload"
	"bridgify/core/pool"
	"bridgify/core/port/out"
	"bridgify/core/ratelimit"
	"bridgify/pkg/apperr"
)

// fakeAdapter is a scriptable out.MailAdapter for exercising the handler
// layer's cache/admit/borrow/retry flow without a real Graph connection.
type fakeAdapter struct {
	folders    []domain.Folder
	inboxID    string
	summaries  []domain.EmailSummary
	full       *domain.EmailFull
	sentID     string
	err        error
	retryable  bool
	callCount  int32
	probeErr   error
}

func (a *fakeAdapter) Probe(ctx context.Context) error { return a.probeErr }

func (a *fakeAdapter) ListFolders(ctx context.Context) ([]domain.Folder, error) {
	atomic.AddInt32(&a.callCount, 1)
	if a.err != nil {
		return nil, a.adapterErr()
	}
	return a.folders, nil
}

func (a *fakeAdapter) ResolveInbox(ctx context.Context) (string, error) {
	if a.err != nil {
		return "", a.adapterErr()
	}
	return a.inboxID, nil
}

func (a *fakeAdapter) ListEmails(ctx context.Context, folderID string, unreadOnly bool, limit int) ([]domain.EmailSummary, error) {
	atomic.AddInt32(&a.callCount, 1)
	if a.err != nil {
		return nil, a.adapterErr()
	}
	return a.summaries, nil
}

func (a *fakeAdapter) GetEmail(ctx context.Context, emailID string) (*domain.EmailFull, error) {
	if a.err != nil {
		return nil, a.adapterErr()
	}
	return a.full, nil
}

func (a *fakeAdapter) Search(ctx context.Context, query, folderID string, limit int) ([]domain.EmailSummary, error) {
	if a.err != nil {
		return nil, a.adapterErr()
	}
	return a.summaries, nil
}

func (a *fakeAdapter) Send(ctx context.Context, msg domain.OutgoingEmail) (string, error) {
	if a.err != nil {
		return "", a.adapterErr()
	}
	return a.sentID, nil
}

func (a *fakeAdapter) adapterErr() error {
	kind := out.FailurePermanent
	if a.retryable {
		kind = out.FailureTransient
	}
	return out.NewAdapterError(kind, a.err.Error(), a.err)
}

type fakeFactory struct {
	adapter out.MailAdapter
}

func (f *fakeFactory) NewHandle(ctx context.Context) (out.MailAdapter, error) {
	return f.adapter, nil
}

func newTestHandlers(t *testing.T, adapter *fakeAdapter) *Handlers {
	t.Helper()

	p, err := pool.New(context.Background(), &fakeFactory{adapter: adapter}, pool.Config{
		MinConnections: 1, MaxConnections: 2, MaxIdle: time.Hour, MaxAge: time.Hour, ProbeInterval: time.Hour,
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(p.Close)

	c := cache.New(cache.Config{MaxItems: 100, ByteBudget: 1 << 20, CleanupInterval: time.Hour, EvictToRatio: 0.8}, nil)
	t.Cleanup(c.Close)

	limiter := ratelimit.New(ratelimit.Config{RPS: 1000, Burst: 1000, PerMinute: 10000, PerHour: 100000, PerCallerCap: 100}, nil)

	o := offload.New(2)
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(func() { _ = o.Close(context.Background()) })

	return New(p, c, limiter, o)
}

func TestHandlers_Initialize(t *testing.T) {
	h := newTestHandlers(t, &fakeAdapter{})
	caps, err := h.Initialize(context.Background(), "test-client", "1.0")
	require.NoError(t, err)
	assert.Equal(t, "bridgify", caps.PeerName)
}

func TestHandlers_GetFolders_CachesResult(t *testing.T) {
	adapter := &fakeAdapter{folders: []domain.Folder{{ID: "inbox", Name: "Inbox"}}}
	h := newTestHandlers(t, adapter)

	got, err := h.GetFolders(context.Background(), "caller-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "inbox", got[0].ID)

	_, err = h.GetFolders(context.Background(), "caller-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&adapter.callCount), "second call should be served from cache")
}

func TestHandlers_ListEmails_ValidatesParams(t *testing.T) {
	h := newTestHandlers(t, &fakeAdapter{})
	_, err := h.ListEmails(context.Background(), "caller", ListEmailsParams{Limit: intPtr(10)}) // missing folder_id
	assert.Error(t, err)
}

func TestHandlers_ListEmails_Success(t *testing.T) {
	adapter := &fakeAdapter{summaries: []domain.EmailSummary{{ID: "m1", Subject: "hi"}}}
	h := newTestHandlers(t, adapter)

	got, err := h.ListEmails(context.Background(), "caller", ListEmailsParams{FolderID: "inbox", Limit: intPtr(10)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
}

func TestHandlers_ListEmails_OmittedLimitDefaults(t *testing.T) {
	adapter := &fakeAdapter{summaries: []domain.EmailSummary{{ID: "m1"}}}
	h := newTestHandlers(t, adapter)

	got, err := h.ListEmails(context.Background(), "caller", ListEmailsParams{FolderID: "inbox"})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestHandlers_ListEmails_ExplicitZeroLimitIsRejected(t *testing.T) {
	adapter := &fakeAdapter{summaries: []domain.EmailSummary{{ID: "m1"}}}
	h := newTestHandlers(t, adapter)

	_, err := h.ListEmails(context.Background(), "caller", ListEmailsParams{FolderID: "inbox", Limit: intPtr(0)})
	assert.Error(t, err, "an explicit limit=0 must be rejected, not silently defaulted")
}

func TestHandlers_ListInboxEmails_ResolvesInboxThenLists(t *testing.T) {
	adapter := &fakeAdapter{
		inboxID:   "inbox-id",
		summaries: []domain.EmailSummary{{ID: "m1"}},
	}
	h := newTestHandlers(t, adapter)

	got, err := h.ListInboxEmails(context.Background(), "caller", ListInboxEmailsParams{Limit: intPtr(10)})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestHandlers_GetEmail_AdapterFailureIsReturned(t *testing.T) {
	adapter := &fakeAdapter{err: errors.New("no such message")}
	h := newTestHandlers(t, adapter)

	_, err := h.GetEmail(context.Background(), "caller", GetEmailParams{EmailID: "msg-1"})
	require.Error(t, err)
}

func TestHandlers_GetEmail_Success(t *testing.T) {
	adapter := &fakeAdapter{full: &domain.EmailFull{EmailSummary: domain.EmailSummary{ID: "msg-1"}}}
	h := newTestHandlers(t, adapter)

	got, err := h.GetEmail(context.Background(), "caller", GetEmailParams{EmailID: "msg-1"})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", got.ID)
}

func TestHandlers_SearchEmails_FailureBecomesSearchFailed(t *testing.T) {
	adapter := &fakeAdapter{err: errors.New("query engine down")}
	h := newTestHandlers(t, adapter)

	_, err := h.SearchEmails(context.Background(), "caller", SearchEmailsParams{Query: "invoice", Limit: intPtr(10)})
	require.Error(t, err)
	assert.Equal(t, apperr.KindSearchFailed, apperr.AsRPCError(err).Kind)
}

func TestHandlers_SendEmail_ValidatesThenSends(t *testing.T) {
	adapter := &fakeAdapter{sentID: "sent-1"}
	h := newTestHandlers(t, adapter)

	id, err := h.SendEmail(context.Background(), "caller", SendEmailParams{OutgoingEmail: domain.OutgoingEmail{
		To: []domain.EmailAddress{{Email: "a@example.com"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, "sent-1", id)
}

func TestHandlers_SendEmail_InvalidParamsNeverReachesAdapter(t *testing.T) {
	adapter := &fakeAdapter{sentID: "sent-1"}
	h := newTestHandlers(t, adapter)

	_, err := h.SendEmail(context.Background(), "caller", SendEmailParams{})
	require.Error(t, err)
}

func TestHandlers_SendEmail_InvalidatesSentItemsCache(t *testing.T) {
	adapter := &fakeAdapter{summaries: []domain.EmailSummary{{ID: "old"}}}
	h := newTestHandlers(t, adapter)

	_, err := h.ListEmails(context.Background(), "caller", ListEmailsParams{FolderID: "sent", Limit: intPtr(10)})
	require.NoError(t, err)
	before := atomic.LoadInt32(&adapter.callCount)

	adapter.sentID = "new-1"
	_, err = h.SendEmail(context.Background(), "caller", SendEmailParams{OutgoingEmail: domain.OutgoingEmail{
		To: []domain.EmailAddress{{Email: "a@example.com"}},
	}})
	require.NoError(t, err)

	adapter.summaries = []domain.EmailSummary{{ID: "new"}}
	got, err := h.ListEmails(context.Background(), "caller", ListEmailsParams{FolderID: "sent", Limit: intPtr(10)})
	require.NoError(t, err)
	assert.Greater(t, atomic.LoadInt32(&adapter.callCount), before, "the cached sent-items listing must be invalidated")
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
}

func TestHandlers_RateLimitDeniesCall(t *testing.T) {
	adapter := &fakeAdapter{folders: []domain.Folder{{ID: "inbox"}}}
	p, err := pool.New(context.Background(), &fakeFactory{adapter: adapter}, pool.Config{
		MinConnections: 1, MaxConnections: 1, MaxIdle: time.Hour, MaxAge: time.Hour, ProbeInterval: time.Hour,
	}, zerolog.Nop())
	require.NoError(t, err)
	defer p.Close()

	c := cache.New(cache.Config{MaxItems: 100, ByteBudget: 1 << 20, CleanupInterval: time.Hour, EvictToRatio: 0.8}, nil)
	defer c.Close()

	limiter := ratelimit.New(ratelimit.Config{RPS: 1, Burst: 1, PerMinute: 1, PerHour: 1, PerCallerCap: 10}, nil)

	o := offload.New(1)
	require.NoError(t, o.Start(context.Background()))
	defer o.Close(context.Background())

	h := New(p, c, limiter, o)

	_, err = h.GetFolders(context.Background(), "caller-a")
	require.NoError(t, err)

	c.DeletePrefix(context.Background(), "folders") // force the second call past the cache
	_, err = h.GetFolders(context.Background(), "caller-a")
	assert.Error(t, err, "the second call should be rate-limited")
}
