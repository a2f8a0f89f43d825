// Package rpc implements the JSON-RPC 2.0 protocol layer (C7): envelope
// types, session handshake state, id correlation, and framing for the
// line-oriented and HTTP transports. Marshaling goes through
// github.com/goccy/go-json, the drop-in encoding/json replacement the
// teacher already uses throughout its dispatcher and cache layers
// (adapter/in/worker/worker_dispatcher.go, core/service/common/worker_cache.go).
package rpc

import (
	"github.com/goccy/go-json"
)

const Version = "2.0"

// RawMessage defers decoding, mirroring encoding/json.RawMessage's role for
// params/result/id — goccy/go-json's type is not interchangeable with the
// stdlib one, so requests/responses carry it explicitly here.
type RawMessage = json.RawMessage

// Request is one JSON-RPC call or notification. A notification is a
// Request with ID == nil (§4.6 "Id correlation").
type Request struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      *RawMessage `json:"id,omitempty"`
	Method  string     `json:"method"`
	Params  RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the caller omitted id.
func (r *Request) IsNotification() bool { return r.ID == nil }

// Response carries exactly one of Result or Error, per §3's invariant.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      *RawMessage `json:"id"`
	Result  any         `json:"result,omitempty"`
	Error   *ErrorObj   `json:"error,omitempty"`
}

// ErrorObj is the wire shape of a JSON-RPC error object (§4.8): code,
// message, and a data envelope that always carries {type, details} and
// optionally retry_after.
type ErrorObj struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

type ErrorData struct {
	Type       string         `json:"type"`
	Details    map[string]any `json:"details,omitempty"`
	RetryAfter int            `json:"retry_after,omitempty"`
}

func NewResult(id *RawMessage, result any) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

func NewError(id *RawMessage, code int, message, dataType string, details map[string]any, retryAfter int) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error: &ErrorObj{
			Code:    code,
			Message: message,
			Data:    &ErrorData{Type: dataType, Details: details, RetryAfter: retryAfter},
		},
	}
}

func Marshal(v any) ([]byte, error)       { return json.Marshal(v) }
func Unmarshal(data []byte, v any) error  { return json.Unmarshal(data, v) }
