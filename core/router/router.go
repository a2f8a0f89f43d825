// Package router implements the request router (C5): method lookup and
// per-method param decoding/validation, dispatching into core/handlers
// (C6). The switch-on-method-name shape is grounded on the teacher's
// adapter/in/worker/worker_dispatcher.go Handler.Process switch over
// msg.Type.
package router

import (
	"context"

	"bridgify/core/handlers"
	"bridgify/pkg/apperr"
	"bridgify/rpc"
)

// Router implements rpc.Dispatcher.
type Router struct {
	h *handlers.Handlers
}

func New(h *handlers.Handlers) *Router {
	return &Router{h: h}
}

// Dispatch looks up method, decodes params into the method's own struct,
// and calls the matching handler. The returned error is always either an
// *apperr.RPCError or something the caller (rpc.HandleOne, via
// apperr.AsRPCError) will wrap as internal_error.
func (r *Router) Dispatch(ctx context.Context, method string, params rpc.RawMessage) (any, error) {
	caller := callerFromContext(ctx)

	switch method {
	case rpc.InitializeMethod:
		var p struct {
			PeerName    string `json:"peer_name"`
			PeerVersion string `json:"peer_version"`
		}
		_ = decode(params, &p)
		return r.h.Initialize(ctx, p.PeerName, p.PeerVersion)

	case rpc.ShutdownMethod:
		return struct{}{}, nil

	case "get_folders":
		return r.h.GetFolders(ctx, caller)

	case "list_inbox_emails":
		var p handlers.ListInboxEmailsParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return r.h.ListInboxEmails(ctx, caller, p)

	case "list_emails":
		var p handlers.ListEmailsParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return r.h.ListEmails(ctx, caller, p)

	case "get_email":
		var p handlers.GetEmailParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return r.h.GetEmail(ctx, caller, p)

	case "search_emails":
		var p handlers.SearchEmailsParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return r.h.SearchEmails(ctx, caller, p)

	case "send_email":
		var p handlers.SendEmailParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return r.h.SendEmail(ctx, caller, p)

	default:
		return nil, apperr.MethodNotFound(method)
	}
}

func decode(params rpc.RawMessage, v any) error {
	if len(params) == 0 {
		return nil
	}
	if err := rpc.Unmarshal(params, v); err != nil {
		return apperr.InvalidRequest("params must be a JSON object matching the method's shape")
	}
	return nil
}

type callerKey struct{}

// WithCaller attaches the transport-identified caller (for per-caller rate
// limit segmentation); "" if the transport has no caller identity.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

func callerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(callerKey{}).(string); ok {
		return v
	}
	return ""
}
