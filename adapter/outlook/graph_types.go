package outlook

import (
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"bridgify/core/domain"
)

// Wire types mirror Microsoft Graph's v1.0 JSON shapes. Only the fields the
// bridge actually projects into core/domain are declared.

type graphUser struct {
	ID string `json:"id"`
}

type graphEmailAddressWrapper struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

type graphItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphMailFolder struct {
	ID               string `json:"id"`
	DisplayName      string `json:"displayName"`
	ParentFolderID   string `json:"parentFolderId,omitempty"`
	ChildFolderCount int    `json:"childFolderCount"`
	TotalItemCount   int    `json:"totalItemCount"`
	UnreadItemCount  int    `json:"unreadItemCount"`
}

type graphMessage struct {
	ID               string                      `json:"id"`
	Subject          string                      `json:"subject"`
	From             *graphEmailAddressWrapper   `json:"from,omitempty"`
	ToRecipients     []graphEmailAddressWrapper  `json:"toRecipients,omitempty"`
	CcRecipients     []graphEmailAddressWrapper  `json:"ccRecipients,omitempty"`
	BccRecipients    []graphEmailAddressWrapper  `json:"bccRecipients,omitempty"`
	ReceivedDateTime string                      `json:"receivedDateTime,omitempty"`
	SentDateTime     string                      `json:"sentDateTime,omitempty"`
	IsRead           bool                        `json:"isRead"`
	HasAttachments   bool                        `json:"hasAttachments"`
	Importance       string                      `json:"importance,omitempty"`
	ParentFolderID   string                      `json:"parentFolderId,omitempty"`
	BodyPreview      string                      `json:"bodyPreview,omitempty"`
	Body             *graphItemBody              `json:"body,omitempty"`
}

type graphAttachment struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

func convertFolder(f *graphMailFolder) domain.Folder {
	folder := domain.Folder{
		ID:            f.ID,
		Name:          f.DisplayName,
		FullPath:      f.DisplayName,
		ItemCount:     f.TotalItemCount,
		UnreadCount:   f.UnreadItemCount,
		FolderType:    domain.FolderTypeMail,
		Accessible:    true,
		HasSubfolders: f.ChildFolderCount > 0,
	}
	if f.ParentFolderID != "" {
		parent := f.ParentFolderID
		folder.ParentID = &parent
	}
	return folder
}

func convertImportance(raw string) domain.Importance {
	switch strings.ToLower(raw) {
	case "high":
		return domain.ImportanceHigh
	case "low":
		return domain.ImportanceLow
	default:
		return domain.ImportanceNormal
	}
}

func convertAddress(w graphEmailAddressWrapper) domain.EmailAddress {
	return domain.EmailAddress{Name: w.EmailAddress.Name, Email: w.EmailAddress.Address}
}

func convertAddresses(ws []graphEmailAddressWrapper) []domain.EmailAddress {
	out := make([]domain.EmailAddress, len(ws))
	for i, w := range ws {
		out[i] = convertAddress(w)
	}
	return out
}

func convertSummary(m *graphMessage, fallbackFolderID string) domain.EmailSummary {
	summary := domain.EmailSummary{
		ID:             m.ID,
		Subject:        m.Subject,
		Recipients:     convertAddresses(m.ToRecipients),
		IsRead:         m.IsRead,
		HasAttachments: m.HasAttachments,
		Importance:     convertImportance(m.Importance),
		FolderID:       m.ParentFolderID,
		BodyPreview:    m.BodyPreview,
	}
	if summary.FolderID == "" {
		summary.FolderID = fallbackFolderID
	}
	if m.From != nil {
		summary.SenderName = m.From.EmailAddress.Name
		summary.SenderEmail = m.From.EmailAddress.Address
	}
	summary.ReceivedTime = parseGraphTime(m.ReceivedDateTime)
	summary.SentTime = parseGraphTime(m.SentDateTime)
	return summary
}

func convertFull(m *graphMessage) domain.EmailFull {
	full := domain.EmailFull{
		EmailSummary: convertSummary(m, ""),
		CC:           convertAddresses(m.CcRecipients),
		BCC:          convertAddresses(m.BccRecipients),
	}
	if m.Body != nil {
		if strings.EqualFold(m.Body.ContentType, "html") {
			full.BodyHTML = m.Body.Content
		} else {
			full.BodyText = m.Body.Content
		}
	}
	return full
}

func buildOutgoingMessage(msg domain.OutgoingEmail) graphMessage {
	contentType := "Text"
	if msg.BodyFormat == domain.BodyFormatHTML {
		contentType = "HTML"
	}

	importance := "normal"
	switch msg.Importance {
	case domain.ImportanceHigh:
		importance = "high"
	case domain.ImportanceLow:
		importance = "low"
	}

	toWrappers := make([]graphEmailAddressWrapper, len(msg.To))
	for i, addr := range msg.To {
		toWrappers[i] = graphEmailAddressWrapper{graphEmailAddress{Name: addr.Name, Address: addr.Email}}
	}
	ccWrappers := make([]graphEmailAddressWrapper, len(msg.CC))
	for i, addr := range msg.CC {
		ccWrappers[i] = graphEmailAddressWrapper{graphEmailAddress{Name: addr.Name, Address: addr.Email}}
	}
	bccWrappers := make([]graphEmailAddressWrapper, len(msg.BCC))
	for i, addr := range msg.BCC {
		bccWrappers[i] = graphEmailAddressWrapper{graphEmailAddress{Name: addr.Name, Address: addr.Email}}
	}

	return graphMessage{
		Subject:       msg.Subject,
		ToRecipients:  toWrappers,
		CcRecipients:  ccWrappers,
		BccRecipients: bccWrappers,
		Importance:    importance,
		Body: &graphItemBody{
			ContentType: contentType,
			Content:     msg.Body,
		},
	}
}

// parseGraphTime parses Graph's ISO-8601 timestamps, returning the zero
// time for blank or malformed values rather than failing the whole message.
func parseGraphTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func marshalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func decodeJSON(r io.Reader, v interface{}) error {
	return json.NewDecoder(r).Decode(v)
}
