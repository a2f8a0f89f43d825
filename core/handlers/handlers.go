package handlers

import (
	"context"
	"time"

	"bridgify/core/cache"
	"bridgify/core/domain"
	"bridgify/core/offload"
	"bridgify/core/pool"
	"bridgify/core/port/out"
	"bridgify/core/ratelimit"
	"bridgify/pkg/apperr"
	"bridgify/pkg/logger"
	"bridgify/rpc"
)

var log = logger.Component("handlers")

// Handlers implements the six operations (C6) in terms of the pool, cache,
// and rate limiter (C1-C4), following §4.5's cache-then-admit-then-borrow
// flow for every read path and validate-then-admit for send_email.
type Handlers struct {
	pool    *pool.Pool
	cache   *cache.Cache
	limiter *ratelimit.Limiter
	offload *offload.Pool
}

func New(p *pool.Pool, c *cache.Cache, l *ratelimit.Limiter, o *offload.Pool) *Handlers {
	return &Handlers{pool: p, cache: c, limiter: l, offload: o}
}

// Initialize handles the handshake call; the session layer stamps its
// result as the negotiated Capabilities.
func (h *Handlers) Initialize(ctx context.Context, peerName, peerVersion string) (rpc.Capabilities, error) {
	return rpc.Capabilities{
		PeerName:    "bridgify",
		PeerVersion: "1.0",
	}, nil
}

func (h *Handlers) GetFolders(ctx context.Context, caller string) ([]domain.Folder, error) {
	key := cache.FolderListKey()
	data, err := h.cache.GetOrLoad(ctx, key, cache.FolderTTL, func() ([]byte, error) {
		if err := h.admit(ctx, caller); err != nil {
			return nil, err
		}
		var folders []domain.Folder
		opErr := h.withAdapter(ctx, func(a out.MailAdapter) error {
			f, err := withRetry(ctx, func() ([]domain.Folder, error) { return a.ListFolders(ctx) })
			if err != nil {
				return err
			}
			folders = f
			return nil
		})
		if opErr != nil {
			return nil, opErr
		}
		return marshalCache(folders)
	})
	if err != nil {
		return nil, translateErr(err, "folder", "")
	}
	var folders []domain.Folder
	if err := unmarshalCache(data, &folders); err != nil {
		return nil, apperr.Internal("corrupt folder cache entry", err)
	}
	return folders, nil
}

func (h *Handlers) ListInboxEmails(ctx context.Context, caller string, p ListInboxEmailsParams) ([]domain.EmailSummary, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	var inboxID string
	opErr := h.withAdapter(ctx, func(a out.MailAdapter) error {
		id, err := withRetry(ctx, func() (string, error) { return a.ResolveInbox(ctx) })
		if err != nil {
			return err
		}
		inboxID = id
		return nil
	})
	if opErr != nil {
		return nil, translateErr(opErr, "folder", "inbox")
	}

	return h.ListEmails(ctx, caller, ListEmailsParams{FolderID: inboxID, UnreadOnly: p.UnreadOnly, Limit: p.Limit})
}

func (h *Handlers) ListEmails(ctx context.Context, caller string, p ListEmailsParams) ([]domain.EmailSummary, error) {
	if err := p.validate(true); err != nil {
		return nil, err
	}

	limit := p.limitOrDefault()
	key := cache.ListSummaryKey(p.FolderID, p.UnreadOnly, limit)
	data, err := h.cache.GetOrLoad(ctx, key, cache.SummaryTTL, func() ([]byte, error) {
		if err := h.admit(ctx, caller); err != nil {
			return nil, err
		}
		var summaries []domain.EmailSummary
		opErr := h.withAdapter(ctx, func(a out.MailAdapter) error {
			s, err := withRetry(ctx, func() ([]domain.EmailSummary, error) {
				return a.ListEmails(ctx, p.FolderID, p.UnreadOnly, limit)
			})
			if err != nil {
				return err
			}
			summaries = s
			return nil
		})
		if opErr != nil {
			return nil, opErr
		}
		return marshalCache(summaries)
	})
	if err != nil {
		return nil, translateErr(err, "folder", p.FolderID)
	}
	var summaries []domain.EmailSummary
	if err := unmarshalCache(data, &summaries); err != nil {
		return nil, apperr.Internal("corrupt summary cache entry", err)
	}
	return summaries, nil
}

func (h *Handlers) GetEmail(ctx context.Context, caller string, p GetEmailParams) (*domain.EmailFull, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	key := cache.FullEmailKey(p.EmailID)
	data, err := h.cache.GetOrLoad(ctx, key, cache.FullTTL, func() ([]byte, error) {
		if err := h.admit(ctx, caller); err != nil {
			return nil, err
		}
		var full *domain.EmailFull
		opErr := h.withAdapter(ctx, func(a out.MailAdapter) error {
			f, err := withRetry(ctx, func() (*domain.EmailFull, error) { return a.GetEmail(ctx, p.EmailID) })
			if err != nil {
				return err
			}
			full = f
			return nil
		})
		if opErr != nil {
			return nil, opErr
		}
		return marshalCache(full)
	})
	if err != nil {
		return nil, translateErr(err, "email", p.EmailID)
	}
	var full domain.EmailFull
	if err := unmarshalCache(data, &full); err != nil {
		return nil, apperr.Internal("corrupt email cache entry", err)
	}
	return &full, nil
}

func (h *Handlers) SearchEmails(ctx context.Context, caller string, p SearchEmailsParams) ([]domain.EmailSummary, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	limit := p.limitOrDefault()
	key := cache.SearchSummaryKey(p.Query, p.FolderID, limit)
	data, err := h.cache.GetOrLoad(ctx, key, cache.SummaryTTL, func() ([]byte, error) {
		if err := h.admit(ctx, caller); err != nil {
			return nil, err
		}
		var summaries []domain.EmailSummary
		opErr := h.withAdapter(ctx, func(a out.MailAdapter) error {
			s, err := withRetry(ctx, func() ([]domain.EmailSummary, error) {
				return a.Search(ctx, p.Query, p.FolderID, limit)
			})
			if err != nil {
				return err
			}
			summaries = s
			return nil
		})
		if opErr != nil {
			return nil, opErr
		}
		return marshalCache(summaries)
	})
	if err != nil {
		if ae, ok := err.(*out.AdapterError); ok {
			return nil, apperr.SearchFailed(ae.Message, ae.Err)
		}
		return nil, translateErr(err, "search", p.Query)
	}
	var summaries []domain.EmailSummary
	if err := unmarshalCache(data, &summaries); err != nil {
		return nil, apperr.Internal("corrupt search cache entry", err)
	}
	return summaries, nil
}

func (h *Handlers) SendEmail(ctx context.Context, caller string, p SendEmailParams) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}
	if err := h.admit(ctx, caller); err != nil {
		return "", err
	}

	var emailID string
	opErr := h.withAdapter(ctx, func(a out.MailAdapter) error {
		id, err := withRetry(ctx, func() (string, error) { return a.Send(ctx, p.OutgoingEmail) })
		if err != nil {
			return err
		}
		emailID = id
		return nil
	})
	if opErr != nil {
		return "", translateErr(opErr, "send", "")
	}

	h.cache.DeletePrefix(ctx, cache.SentItemsPrefix)
	return emailID, nil
}

func (h *Handlers) admit(ctx context.Context, caller string) error {
	if h.limiter == nil {
		return nil
	}
	if err := h.limiter.Admit(ctx, caller); err != nil {
		log.Debug().Str("caller", caller).Msg("rate-limit deny")
		if rle, ok := err.(*ratelimit.RateLimitedError); ok {
			return apperr.FromRateLimited(rle.Reason, 1)
		}
		return apperr.FromRateLimited(err.Error(), 1)
	}
	return nil
}

// withAdapter borrows a handle and runs fn on the offload pool — per §5's
// "the blocking segment that invokes the MailAdapter is offloaded to a
// worker" — then releases the handle with the outcome implied by fn's
// error (a transient/unavailable AdapterError retires the handle; anything
// else is treated as a clean return).
func (h *Handlers) withAdapter(ctx context.Context, fn func(out.MailAdapter) error) error {
	adapter, id, err := h.pool.Acquire(ctx)
	if err != nil {
		return err
	}

	_, err = offload.Run(ctx, h.offload, func(jctx context.Context) (struct{}, error) {
		return struct{}{}, fn(adapter)
	})

	outcome := pool.OutcomeOK
	var ae *out.AdapterError
	if e, ok := err.(*out.AdapterError); ok {
		ae = e
		if ae.Kind == out.FailureUnavailable || ae.Kind == out.FailureTransient {
			outcome = pool.OutcomeTransportFailure
		}
	}
	h.pool.Release(id, outcome)
	return err
}

// withRetry implements §4.5's retry policy: at most 2 attempts total for
// FailureTransient errors, exponential backoff between them.
func withRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	backoff := 100 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		ae, ok := err.(*out.AdapterError)
		if !ok || !ae.Retryable() {
			return zero, err
		}
		if attempt == 1 {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return zero, lastErr
}

func translateErr(err error, resource, id string) error {
	if apperr.IsRPCError(err) {
		return err
	}
	if _, ok := err.(*out.AdapterError); ok {
		return apperr.FromAdapterError(err, resource, id)
	}
	if err == context.DeadlineExceeded {
		return apperr.Timeout(resource)
	}
	return apperr.Internal("operation failed", err)
}

func marshalCache(v any) ([]byte, error)   { return rpc.Marshal(v) }
func unmarshalCache(data []byte, v any) error { return rpc.Unmarshal(data, v) }
