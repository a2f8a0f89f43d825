// Package apperr maps the bridge's closed set of internal failure kinds
// onto JSON-RPC 2.0 error objects (C9). It replaces the teacher's
// HTTP-status-oriented AppError (pkg/apperr/worker_error.go) with one keyed
// on JSON-RPC codes, since this bridge has no HTTP status codes to report —
// every transport (line, HTTP, stdio) speaks the same envelope. The
// constructor-per-kind shape and the Code/Message/Err/WithDetail pattern
// carry over from the teacher's file.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of internal failure kinds from the error table.
type Kind string

const (
	KindInvalidRequest       Kind = "invalid_request"
	KindMethodNotFound       Kind = "method_not_found"
	KindInvalidParams        Kind = "invalid_params"
	KindInternalError        Kind = "internal_error"
	KindSessionUninitialized Kind = "session_uninitialized"
	KindUnavailable          Kind = "unavailable"
	KindNotFound             Kind = "not_found"
	KindFolderNotFound       Kind = "folder_not_found"
	KindPermissionDenied     Kind = "permission_denied"
	KindSearchFailed         Kind = "search_failed"
	KindTimeout              Kind = "timeout"
	KindRateLimited          Kind = "rate_limited"
	KindOverloaded           Kind = "overloaded"
)

// codeAndType is the fixed code/data.type this kind maps onto.
var codeAndType = map[Kind]struct {
	Code     int
	DataType string
}{
	KindInvalidRequest:       {-32600, "ProtocolError"},
	KindMethodNotFound:       {-32601, "ProtocolError"},
	KindInvalidParams:        {-32602, "ValidationError"},
	KindInternalError:        {-32603, "InternalError"},
	KindSessionUninitialized: {-32000, "SessionError"},
	KindUnavailable:          {-32001, "OutlookConnectionError"},
	KindNotFound:             {-32002, "EmailNotFoundError"},
	KindFolderNotFound:       {-32002, "FolderNotFoundError"},
	KindPermissionDenied:     {-32004, "PermissionError"},
	KindSearchFailed:         {-32005, "SearchError"},
	KindTimeout:              {-32006, "TimeoutError"},
	KindRateLimited:          {-32007, "RateLimitError"},
	KindOverloaded:           {-32000, "Overloaded"},
}

// RPCError is the application-level error the router/handlers raise; the
// rpc package translates it into the wire error object.
type RPCError struct {
	Kind       Kind
	Message    string
	Details    map[string]any
	RetryAfter int // seconds; zero means absent
	Err        error
}

func (e *RPCError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *RPCError) Unwrap() error { return e.Err }

func (e *RPCError) WithDetail(key string, value any) *RPCError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Code returns the JSON-RPC error code for this error's kind.
func (e *RPCError) Code() int { return codeAndType[e.Kind].Code }

// DataType returns the error.data.type for this error's kind.
func (e *RPCError) DataType() string { return codeAndType[e.Kind].DataType }

func New(kind Kind, message string) *RPCError {
	return &RPCError{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *RPCError {
	return &RPCError{Kind: kind, Message: message, Err: err}
}

func InvalidRequest(message string) *RPCError {
	return New(KindInvalidRequest, message)
}

func MethodNotFound(method string) *RPCError {
	return New(KindMethodNotFound, fmt.Sprintf("unknown method: %s", method)).WithDetail("method", method)
}

func InvalidParams(field, reason string) *RPCError {
	return New(KindInvalidParams, fmt.Sprintf("invalid param %q: %s", field, reason)).WithDetail("field", field)
}

func Internal(message string, err error) *RPCError {
	return Wrap(KindInternalError, message, err)
}

func SessionUninitialized() *RPCError {
	return New(KindSessionUninitialized, "session handshake (initialize) required before other calls")
}

func Unavailable(message string, err error) *RPCError {
	return Wrap(KindUnavailable, message, err)
}

// NotFound reports a missing resource, keyed on kind so a folder lookup
// reports FolderNotFoundError rather than the default EmailNotFoundError
// (§4.8).
func NotFound(resource, id string) *RPCError {
	kind := KindNotFound
	if resource == "folder" {
		kind = KindFolderNotFound
	}
	return New(kind, fmt.Sprintf("%s not found: %s", resource, id)).WithDetail("id", id)
}

func PermissionDenied(message string, err error) *RPCError {
	return Wrap(KindPermissionDenied, message, err)
}

func SearchFailed(message string, err error) *RPCError {
	return Wrap(KindSearchFailed, message, err)
}

func Timeout(operation string) *RPCError {
	return New(KindTimeout, fmt.Sprintf("operation timed out: %s", operation))
}

func RateLimited(message string, retryAfterSeconds int) *RPCError {
	e := New(KindRateLimited, message)
	e.RetryAfter = retryAfterSeconds
	return e
}

func Overloaded() *RPCError {
	return New(KindOverloaded, "server is at capacity, try again shortly")
}

func IsRPCError(err error) bool {
	var e *RPCError
	return errors.As(err, &e)
}

func AsRPCError(err error) *RPCError {
	var e *RPCError
	if errors.As(err, &e) {
		return e
	}
	return Internal("unexpected internal error", err)
}
