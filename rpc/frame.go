package rpc

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"bridgify/pkg/apperr"
)

// ServeLines implements the line-oriented framing (§4.6): one JSON object
// per line in, zero-or-one JSON object per line out. A batch array on any
// line is rejected with invalid_request rather than partially processed.
func ServeLines(ctx context.Context, sess *Session, d Dispatcher, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	bw := bufio.NewWriter(w)
	defer bw.Flush()

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var resp []byte
		if isBatch(line) {
			resp = encode(errorResponse(nil, apperr.InvalidRequest("batch requests are not supported")))
		} else {
			resp = HandleOne(ctx, sess, d, line)
		}

		if resp == nil {
			continue
		}
		if _, err := bw.Write(resp); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}

		if sess.State() == StateClosing {
			sess.Close()
			return nil
		}
	}
	return scanner.Err()
}

// ServeOne implements the HTTP framing (§4.6): exactly one object in the
// request body, exactly one object in the response body. A notification
// still runs (for send_email) but the transport must write *something*
// back over HTTP, so the caller gets an empty 2xx-worthy ack instead of no
// body at all — HandleOne's "no reply" contract only applies to
// line-oriented transports, where omitting output is well-defined.
func ServeOne(ctx context.Context, sess *Session, d Dispatcher, body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if isBatch(trimmed) {
		return encode(errorResponse(nil, apperr.InvalidRequest("batch requests are not supported")))
	}
	resp := HandleOne(ctx, sess, d, trimmed)
	if resp == nil {
		resp = encode(NewResult(nil, struct{}{}))
	}
	return resp
}

func isBatch(raw []byte) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
