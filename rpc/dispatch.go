package rpc

import (
	"context"

	"bridgify/pkg/apperr"
	"bridgify/pkg/logger"
)

// Dispatcher is the capability the protocol layer needs from the router
// (C5): look up a method and run it. Implemented by core/router.Router.
type Dispatcher interface {
	Dispatch(ctx context.Context, method string, params RawMessage) (any, error)
}

var log = logger.Component("rpc")

// sideEffectfulNotifications are the methods §4.6 says still run through
// admission/handler logic when sent with no id ("send_email"); every other
// method sent as a notification is dropped with an observability event.
var sideEffectfulNotifications = map[string]bool{
	"send_email": true,
}

// HandleOne decodes one request object, drives the session state machine,
// dispatches it, and returns the bytes to write back — or nil if the
// request was a notification that produces no reply. raw must be a single
// JSON object; ServeLines and ServeOne reject arrays before calling this.
func HandleOne(ctx context.Context, sess *Session, d Dispatcher, raw []byte) []byte {
	var req Request
	if err := Unmarshal(raw, &req); err != nil || req.JSONRPC != Version || req.Method == "" {
		resp := errorResponse(nil, apperr.InvalidRequest("malformed request envelope"))
		return encode(resp)
	}

	if req.IsNotification() {
		if !sideEffectfulNotifications[req.Method] {
			log.Warn().Str("method", req.Method).Msg("dropped notification for non-side-effectful method")
			return nil
		}
		_, _ = runMethod(ctx, sess, d, req.Method, req.Params)
		return nil
	}

	resp := dispatchRequest(ctx, sess, d, &req)
	return encode(resp)
}

func dispatchRequest(ctx context.Context, sess *Session, d Dispatcher, req *Request) *Response {
	if req.Method == InitializeMethod {
		if !sess.BeginInitialize() {
			return errorResponse(req.ID, apperr.InvalidRequest("session already initialized"))
		}
		result, err := runMethod(ctx, sess, d, req.Method, req.Params)
		if err != nil {
			return errorResponse(req.ID, apperr.AsRPCError(err))
		}
		var caps Capabilities
		if m, ok := result.(Capabilities); ok {
			caps = m
		}
		sess.CompleteInitialize(caps)
		return NewResult(req.ID, result)
	}

	if !sess.Initialized() {
		return errorResponse(req.ID, apperr.SessionUninitialized())
	}

	if req.Method == ShutdownMethod {
		sess.BeginClosing()
	}

	result, err := runMethod(ctx, sess, d, req.Method, req.Params)
	if err != nil {
		return errorResponse(req.ID, apperr.AsRPCError(err))
	}
	return NewResult(req.ID, result)
}

func runMethod(ctx context.Context, sess *Session, d Dispatcher, method string, params RawMessage) (any, error) {
	log.Debug().Str("method", method).Str("session", sess.ID).Msg("request received")
	result, err := d.Dispatch(ctx, method, params)
	if err != nil {
		log.Debug().Str("method", method).Err(err).Msg("request failed")
	} else {
		log.Debug().Str("method", method).Msg("request completed")
	}
	return result, err
}

func errorResponse(id *RawMessage, e *apperr.RPCError) *Response {
	return NewError(id, e.Code(), e.Message, e.DataType(), e.Details, e.RetryAfter)
}

func encode(resp *Response) []byte {
	data, err := Marshal(resp)
	if err != nil {
		fallback := apperr.Internal("failed to encode response", err)
		data, _ = Marshal(NewError(resp.ID, fallback.Code(), fallback.Message, fallback.DataType(), nil, 0))
	}
	return data
}
