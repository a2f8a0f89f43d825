// Package stdio is the line-oriented transport named in §1's "thin
// transport servers": it reads one JSON-RPC request per line from an
// io.Reader and writes one response per line to an io.Writer, admitting
// each request through the bridge's admission gate before handing it to
// rpc.ServeLines. No pack repo ships a line-oriented JSON-RPC transport,
// so this file has no direct teacher grounding beyond the admission/logging
// idiom shared with adapter/in/http.
package stdio

import (
	"context"
	"io"

	"bridgify/core/bridge"
	"bridgify/core/router"
	"bridgify/pkg/logger"
	"bridgify/rpc"
)

var log = logger.Component("stdio")

// Serve runs the stdio transport until r is exhausted or ctx is canceled.
// callerID identifies the connection for per-caller rate-limit
// segmentation (the local process's pid-derived id is a reasonable default
// since stdio has exactly one caller per process).
func Serve(ctx context.Context, b *bridge.Bridge, r io.Reader, w io.Writer, callerID string) error {
	sess := rpc.NewSession()
	admittingDispatcher := &admissionGatedDispatcher{bridge: b, inner: b.Router, caller: callerID}

	log.Info().Str("session", sess.ID).Msg("stdio session opened")
	err := rpc.ServeLines(ctx, sess, admittingDispatcher, r, w)
	log.Info().Str("session", sess.ID).Err(err).Msg("stdio session closed")
	return err
}

// admissionGatedDispatcher wraps the router so every dispatched call
// passes through the bridge's concurrency gate (§4.7), the same way the
// HTTP transport does per-request in adapter/in/http/mcp.go.
type admissionGatedDispatcher struct {
	bridge *bridge.Bridge
	inner  rpc.Dispatcher
	caller string
}

func (d *admissionGatedDispatcher) Dispatch(ctx context.Context, method string, params rpc.RawMessage) (any, error) {
	release, err := d.bridge.Admit(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := d.bridge.RequestContext(ctx)
	defer cancel()

	ctx = router.WithCaller(ctx, d.caller)
	return d.inner.Dispatch(ctx, method, params)
}
