// Package handlers implements the six Outlook operations (C6) in terms of
// the pool, cache, and rate limiter (C1-C4). Each handler method mirrors the
// teacher's service-method shape (core/service/email/worker_email_service.go:
// a struct holding ports, one method per operation, constructed via
// NewXService) but built against this bridge's own ports.
package handlers

import (
	"net/mail"
	"os"

	"bridgify/core/domain"
	"bridgify/pkg/apperr"
)

const maxLimit = 1000

// defaultLimit is applied when limit is omitted from the request entirely
// (a nil *int). An explicit 0 is a distinct, invalid value (§9 "explicit
// optional fields") and must be rejected by validateLimit rather than
// silently rewritten.
const defaultLimit = 50

// ListEmailsParams backs both list_emails and (after inbox resolution)
// list_inbox_emails. Limit is a *int so an omitted limit (nil, defaulted to
// defaultLimit) is distinguishable from an explicit limit=0 (invalid).
type ListEmailsParams struct {
	FolderID   string `json:"folder_id"`
	UnreadOnly bool   `json:"unread_only"`
	Limit      *int   `json:"limit"`
}

func (p *ListEmailsParams) validate(requireFolder bool) error {
	if requireFolder && p.FolderID == "" {
		return apperr.InvalidParams("folder_id", "must not be empty")
	}
	return validateLimit(p.Limit)
}

// limitOrDefault returns the effective limit after validation: the caller's
// value if one was given, defaultLimit otherwise.
func (p *ListEmailsParams) limitOrDefault() int {
	return limitOrDefault(p.Limit)
}

type ListInboxEmailsParams struct {
	UnreadOnly bool `json:"unread_only"`
	Limit      *int `json:"limit"`
}

func (p *ListInboxEmailsParams) validate() error {
	return validateLimit(p.Limit)
}

type GetEmailParams struct {
	EmailID string `json:"email_id"`
}

func (p *GetEmailParams) validate() error {
	if p.EmailID == "" {
		return apperr.InvalidParams("email_id", "must not be empty")
	}
	return nil
}

type SearchEmailsParams struct {
	Query    string `json:"query"`
	FolderID string `json:"folder_id,omitempty"`
	Limit    *int   `json:"limit"`
}

func (p *SearchEmailsParams) validate() error {
	if p.Query == "" {
		return apperr.InvalidParams("query", "must not be empty")
	}
	return validateLimit(p.Limit)
}

func (p *SearchEmailsParams) limitOrDefault() int {
	return limitOrDefault(p.Limit)
}

type SendEmailParams struct {
	domain.OutgoingEmail
}

func (p *SendEmailParams) validate() error {
	if p.RecipientCount() < 1 {
		return apperr.InvalidParams("to", "at least one recipient (to/cc/bcc) is required")
	}
	for _, addr := range allRecipients(p.OutgoingEmail) {
		if _, err := mail.ParseAddress(addr.Email); err != nil {
			return apperr.InvalidParams("to", "not a syntactically valid address: "+addr.Email)
		}
	}
	switch p.BodyFormat {
	case domain.BodyFormatText, domain.BodyFormatHTML, domain.BodyFormatRTF, "":
	default:
		return apperr.InvalidParams("body_format", "must be one of text, html, rtf")
	}
	for _, path := range p.Attachments {
		info, err := os.Stat(path)
		if err != nil {
			return apperr.InvalidParams("attachments", "not readable: "+path)
		}
		if info.IsDir() {
			return apperr.InvalidParams("attachments", "is a directory: "+path)
		}
	}
	return nil
}

func allRecipients(o domain.OutgoingEmail) []domain.EmailAddress {
	out := make([]domain.EmailAddress, 0, o.RecipientCount())
	out = append(out, o.To...)
	out = append(out, o.CC...)
	out = append(out, o.BCC...)
	return out
}

// validateLimit rejects anything the caller explicitly sent outside
// [1, maxLimit]; a nil limit (omitted entirely) is left for limitOrDefault
// to fill in and is never an error here.
func validateLimit(limit *int) error {
	if limit == nil {
		return nil
	}
	if *limit < 1 || *limit > maxLimit {
		return apperr.InvalidParams("limit", "must be in [1, 1000]")
	}
	return nil
}

func limitOrDefault(limit *int) int {
	if limit == nil {
		return defaultLimit
	}
	return *limit
}
