// Package outlook implements the MailAdapter contract (core/port/out)
// against Microsoft Graph. HTTPAdapter talks to Graph's REST surface
// directly over net/http + oauth2, the same way the pack's raw Outlook
// provider does; SDKAdapter (sdk_adapter.go) wraps the official Graph SDK
// instead. Both satisfy the same interface so the rest of the bridge does
// not know which one it was given.
package outlook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"bridgify/core/domain"
	"bridgify/core/port/out"
	"bridgify/pkg/httputil"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// OAuthSettings are the Azure AD app registration values needed to build an
// oauth2.Config for the Graph scopes this bridge uses.
type OAuthSettings struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewOAuthConfig builds the oauth2.Config shared by every HTTPAdapter handle.
// Falls back to the "common" multi-tenant endpoint when TenantID is blank.
func NewOAuthConfig(s OAuthSettings) *oauth2.Config {
	tenantID := s.TenantID
	if tenantID == "" {
		tenantID = "common"
	}
	return &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURL:  s.RedirectURL,
		Scopes: []string{
			"https://graph.microsoft.com/Mail.ReadWrite",
			"https://graph.microsoft.com/Mail.Send",
			"https://graph.microsoft.com/User.Read",
			"offline_access",
		},
		Endpoint: microsoft.AzureADEndpoint(tenantID),
	}
}

// HTTPAdapter is a MailAdapter backed by plain Graph REST calls.
type HTTPAdapter struct {
	client *http.Client
}

// HTTPAdapterFactory builds one HTTPAdapter per pool handle, each holding
// its own oauth2-managed http.Client so token refresh is independent per
// handle (mirrors the pool's "handle owns its connection" invariant).
type HTTPAdapterFactory struct {
	oauthConfig *oauth2.Config
	token       *oauth2.Token
	baseClient  *http.Client
}

func NewHTTPAdapterFactory(oauthConfig *oauth2.Config, token *oauth2.Token) *HTTPAdapterFactory {
	return &HTTPAdapterFactory{
		oauthConfig: oauthConfig,
		token:       token,
		baseClient:  httputil.NewClient(httputil.OutlookClientConfig()),
	}
}

func (f *HTTPAdapterFactory) NewHandle(ctx context.Context) (out.MailAdapter, error) {
	// Every handle's oauth2-wrapped client shares the factory's tuned
	// transport instead of building its own http.DefaultTransport-backed
	// one, so all pool handles draw from one connection pool sized for
	// Graph's throttling rather than one per handle.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.baseClient)
	client := f.oauthConfig.Client(ctx, f.token)
	return &HTTPAdapter{client: client}, nil
}

func (a *HTTPAdapter) Probe(ctx context.Context) error {
	var user graphUser
	return a.get(ctx, "/me?$select=id", &user)
}

func (a *HTTPAdapter) ListFolders(ctx context.Context) ([]domain.Folder, error) {
	var resp struct {
		Value []graphMailFolder `json:"value"`
	}
	if err := a.get(ctx, "/me/mailFolders?$top=200", &resp); err != nil {
		return nil, err
	}

	folders := make([]domain.Folder, len(resp.Value))
	for i, f := range resp.Value {
		folders[i] = convertFolder(&f)
	}
	return folders, nil
}

func (a *HTTPAdapter) ResolveInbox(ctx context.Context) (string, error) {
	var folder graphMailFolder
	if err := a.get(ctx, "/me/mailFolders/inbox", &folder); err != nil {
		return "", err
	}
	return folder.ID, nil
}

func (a *HTTPAdapter) ListEmails(ctx context.Context, folderID string, unreadOnly bool, limit int) ([]domain.EmailSummary, error) {
	params := url.Values{}
	params.Set("$top", fmt.Sprintf("%d", limit))
	params.Set("$orderby", "receivedDateTime desc")
	if unreadOnly {
		params.Set("$filter", "isRead eq false")
	}

	path := fmt.Sprintf("/me/mailFolders/%s/messages?", url.PathEscape(folderID)) + params.Encode()

	var resp struct {
		Value []graphMessage `json:"value"`
	}
	if err := a.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	summaries := make([]domain.EmailSummary, len(resp.Value))
	for i, m := range resp.Value {
		summaries[i] = convertSummary(&m, folderID)
	}
	return summaries, nil
}

func (a *HTTPAdapter) GetEmail(ctx context.Context, emailID string) (*domain.EmailFull, error) {
	var msg graphMessage
	if err := a.get(ctx, fmt.Sprintf("/me/messages/%s", url.PathEscape(emailID)), &msg); err != nil {
		return nil, err
	}

	full := convertFull(&msg)

	if msg.HasAttachments {
		attachments, err := a.listAttachments(ctx, emailID)
		if err != nil {
			return nil, err
		}
		full.Attachments = attachments
	}

	return &full, nil
}

func (a *HTTPAdapter) Search(ctx context.Context, query string, folderID string, limit int) ([]domain.EmailSummary, error) {
	params := url.Values{}
	params.Set("$top", fmt.Sprintf("%d", limit))
	params.Set("$search", fmt.Sprintf("%q", query))

	path := "/me/messages?"
	if folderID != "" {
		path = fmt.Sprintf("/me/mailFolders/%s/messages?", url.PathEscape(folderID))
	}
	path += params.Encode()

	var resp struct {
		Value []graphMessage `json:"value"`
	}
	if err := a.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	summaries := make([]domain.EmailSummary, len(resp.Value))
	for i, m := range resp.Value {
		summaries[i] = convertSummary(&m, folderID)
	}
	return summaries, nil
}

func (a *HTTPAdapter) Send(ctx context.Context, msg domain.OutgoingEmail) (string, error) {
	graphMsg := buildOutgoingMessage(msg)

	body := struct {
		Message         graphMessage `json:"message"`
		SaveToSentItems bool         `json:"saveToSentItems"`
	}{
		Message:         graphMsg,
		SaveToSentItems: msg.SaveToSent,
	}

	if err := a.post(ctx, "/me/sendMail", body, nil); err != nil {
		return "", err
	}

	// Graph's sendMail endpoint returns 202 Accepted with no body; there is
	// no message id to hand back until the item lands in Sent Items, so the
	// bridge synthesizes a correlation id for the caller instead.
	return fmt.Sprintf("sent-%d", time.Now().UnixNano()), nil
}

func (a *HTTPAdapter) listAttachments(ctx context.Context, emailID string) ([]domain.Attachment, error) {
	var resp struct {
		Value []graphAttachment `json:"value"`
	}
	path := fmt.Sprintf("/me/messages/%s/attachments?$select=name,size,contentType", url.PathEscape(emailID))
	if err := a.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	attachments := make([]domain.Attachment, len(resp.Value))
	for i, att := range resp.Value {
		attachments[i] = domain.Attachment{
			Name:      att.Name,
			SizeBytes: att.Size,
			MimeType:  att.ContentType,
		}
	}
	return attachments, nil
}

// HTTP plumbing

func (a *HTTPAdapter) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, graphBaseURL+path, nil)
	if err != nil {
		return out.NewAdapterError(out.FailureInvalidArgument, "build request", err)
	}
	return a.do(req, result)
}

func (a *HTTPAdapter) post(ctx context.Context, path string, body, result interface{}) error {
	data, err := marshalJSON(body)
	if err != nil {
		return out.NewAdapterError(out.FailureInvalidArgument, "encode body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, graphBaseURL+path, bytes.NewReader(data))
	if err != nil {
		return out.NewAdapterError(out.FailureInvalidArgument, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, result)
}

func (a *HTTPAdapter) do(req *http.Request, result interface{}) error {
	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return out.NewAdapterError(out.FailureTimeout, "graph request timed out", err)
		}
		return out.NewAdapterError(out.FailureUnavailable, "graph request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(resp.Body)
		return classifyGraphError(resp.StatusCode, string(payload))
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		return decodeJSON(resp.Body, result)
	}
	return nil
}

func classifyGraphError(status int, body string) error {
	msg := fmt.Sprintf("graph API error: %d - %s", status, strings.TrimSpace(body))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return out.NewAdapterError(out.FailurePermissionDenied, msg, nil)
	case status == http.StatusNotFound:
		return out.NewAdapterError(out.FailureNotFound, msg, nil)
	case status == http.StatusTooManyRequests:
		return out.NewAdapterError(out.FailureTransient, msg, nil)
	case status >= 500:
		return out.NewAdapterError(out.FailureTransient, msg, nil)
	case status == http.StatusBadRequest:
		return out.NewAdapterError(out.FailureInvalidArgument, msg, nil)
	default:
		return out.NewAdapterError(out.FailurePermanent, msg, nil)
	}
}

var _ out.MailAdapter = (*HTTPAdapter)(nil)
