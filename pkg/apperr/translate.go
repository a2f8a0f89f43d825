package apperr

import (
	"errors"

	"bridgify/core/port/out"
)

// FromAdapterError translates a MailAdapter failure into the JSON-RPC error
// shape. resource/id are used only for the not_found case's details.
func FromAdapterError(err error, resource, id string) *RPCError {
	var ae *out.AdapterError
	if !errors.As(err, &ae) {
		return Internal("adapter call failed", err)
	}

	switch ae.Kind {
	case out.FailureUnavailable:
		return Unavailable(ae.Message, ae.Err)
	case out.FailureNotFound:
		e := NotFound(resource, id)
		e.Err = ae.Err
		return e
	case out.FailurePermissionDenied:
		return PermissionDenied(ae.Message, ae.Err)
	case out.FailureInvalidArgument:
		return InvalidParams(resource, ae.Message)
	case out.FailureTimeout:
		return Timeout(ae.Message)
	case out.FailureTransient, out.FailurePermanent:
		return Internal(ae.Message, ae.Err)
	default:
		return Internal(ae.Message, ae.Err)
	}
}

// FromRateLimited wraps a core/ratelimit.RateLimitedError's reason string.
// The caller (core/handlers' admit) unwraps the reason first; kept here only
// so the (reason, retry_after) -> RPCError shaping lives in one place.
func FromRateLimited(reason string, retryAfterSeconds int) *RPCError {
	return RateLimited(reason, retryAfterSeconds)
}
