package outlook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	abstractions "github.com/microsoft/kiota-abstractions-go"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"github.com/microsoftgraph/msgraph-sdk-go/users"
	"golang.org/x/oauth2"

	"bridgify/core/domain"
	"bridgify/core/port/out"
)

// SDKAdapter is a MailAdapter backed by the official Graph SDK instead of
// raw REST calls. Which one a handle uses is a config knob (outlook_client:
// http|sdk); both satisfy the same port so the pool and handlers are
// indifferent to the choice.
type SDKAdapter struct {
	client *msgraphsdk.GraphServiceClient
}

// SDKAdapterFactory builds one SDKAdapter per pool handle, each with its own
// bearer-token authentication provider.
type SDKAdapterFactory struct {
	oauthConfig *oauth2.Config
	token       *oauth2.Token
}

func NewSDKAdapterFactory(oauthConfig *oauth2.Config, token *oauth2.Token) *SDKAdapterFactory {
	return &SDKAdapterFactory{oauthConfig: oauthConfig, token: token}
}

func (f *SDKAdapterFactory) NewHandle(ctx context.Context) (out.MailAdapter, error) {
	httpClient := f.oauthConfig.Client(ctx, f.token)
	authProvider := &bearerTokenProvider{token: f.token, httpClient: httpClient}

	adapter, err := msgraphsdk.NewGraphRequestAdapter(authProvider)
	if err != nil {
		return nil, out.NewAdapterError(out.FailureUnavailable, "create graph request adapter", err)
	}

	return &SDKAdapter{client: msgraphsdk.NewGraphServiceClient(adapter)}, nil
}

// bearerTokenProvider implements Kiota's authentication provider interface
// over a pre-obtained oauth2 token, for delegated-permission Graph calls.
type bearerTokenProvider struct {
	token      *oauth2.Token
	httpClient *http.Client
}

func (p *bearerTokenProvider) AuthenticateRequest(ctx context.Context, request *abstractions.RequestInformation, additionalAuthenticationContext map[string]interface{}) error {
	if p.token == nil {
		return fmt.Errorf("no token available")
	}
	request.Headers.Add("Authorization", "Bearer "+p.token.AccessToken)
	return nil
}

func (a *SDKAdapter) Probe(ctx context.Context) error {
	selectFields := []string{"id"}
	_, err := a.client.Me().Get(ctx, &users.UserItemRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.UserItemRequestBuilderGetQueryParameters{Select: selectFields},
	})
	return wrapODataError(err, "probe")
}

func (a *SDKAdapter) ListFolders(ctx context.Context) ([]domain.Folder, error) {
	result, err := a.client.Me().MailFolders().Get(ctx, nil)
	if err != nil {
		return nil, wrapODataError(err, "list folders")
	}

	values := result.GetValue()
	folders := make([]domain.Folder, len(values))
	for i, f := range values {
		folders[i] = convertSDKFolder(f)
	}
	return folders, nil
}

func (a *SDKAdapter) ResolveInbox(ctx context.Context) (string, error) {
	folder, err := a.client.Me().MailFolders().ByMailFolderId("inbox").Get(ctx, nil)
	if err != nil {
		return "", wrapODataError(err, "resolve inbox")
	}
	return derefSDKString(folder.GetId()), nil
}

func (a *SDKAdapter) ListEmails(ctx context.Context, folderID string, unreadOnly bool, limit int) ([]domain.EmailSummary, error) {
	top := int32(limit)
	queryParams := &users.ItemMailFoldersItemMessagesRequestBuilderGetQueryParameters{
		Top:     &top,
		Orderby: []string{"receivedDateTime desc"},
	}
	if unreadOnly {
		filter := "isRead eq false"
		queryParams.Filter = &filter
	}
	config := &users.ItemMailFoldersItemMessagesRequestBuilderGetRequestConfiguration{QueryParameters: queryParams}

	result, err := a.client.Me().MailFolders().ByMailFolderId(folderID).Messages().Get(ctx, config)
	if err != nil {
		return nil, wrapODataError(err, "list emails")
	}

	messages := result.GetValue()
	summaries := make([]domain.EmailSummary, len(messages))
	for i, m := range messages {
		summaries[i] = convertSDKSummary(m, folderID)
	}
	return summaries, nil
}

func (a *SDKAdapter) GetEmail(ctx context.Context, emailID string) (*domain.EmailFull, error) {
	msg, err := a.client.Me().Messages().ByMessageId(emailID).Get(ctx, nil)
	if err != nil {
		return nil, wrapODataError(err, "get email")
	}

	full := convertSDKFull(msg)

	if hasAtt := msg.GetHasAttachments(); hasAtt != nil && *hasAtt {
		attachments, err := a.listSDKAttachments(ctx, emailID)
		if err != nil {
			return nil, err
		}
		full.Attachments = attachments
	}

	return &full, nil
}

func (a *SDKAdapter) Search(ctx context.Context, query string, folderID string, limit int) ([]domain.EmailSummary, error) {
	top := int32(limit)
	search := fmt.Sprintf("%q", query)

	if folderID != "" {
		config := &users.ItemMailFoldersItemMessagesRequestBuilderGetRequestConfiguration{
			QueryParameters: &users.ItemMailFoldersItemMessagesRequestBuilderGetQueryParameters{
				Top: &top, Search: &search,
			},
		}
		result, err := a.client.Me().MailFolders().ByMailFolderId(folderID).Messages().Get(ctx, config)
		if err != nil {
			return nil, wrapODataError(err, "search emails")
		}
		return convertSDKSummaries(result.GetValue(), folderID), nil
	}

	config := &users.ItemMessagesRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.ItemMessagesRequestBuilderGetQueryParameters{
			Top: &top, Search: &search,
		},
	}
	result, err := a.client.Me().Messages().Get(ctx, config)
	if err != nil {
		return nil, wrapODataError(err, "search emails")
	}
	return convertSDKSummaries(result.GetValue(), ""), nil
}

func (a *SDKAdapter) Send(ctx context.Context, msg domain.OutgoingEmail) (string, error) {
	body := users.NewItemSendMailPostRequestBody()
	body.SetMessage(buildSDKMessage(msg))
	saveToSent := msg.SaveToSent
	body.SetSaveToSentItems(&saveToSent)

	if err := a.client.Me().SendMail().Post(ctx, body, nil); err != nil {
		return "", wrapODataError(err, "send email")
	}

	return fmt.Sprintf("sent-%d", time.Now().UnixNano()), nil
}

func (a *SDKAdapter) listSDKAttachments(ctx context.Context, emailID string) ([]domain.Attachment, error) {
	result, err := a.client.Me().Messages().ByMessageId(emailID).Attachments().Get(ctx, nil)
	if err != nil {
		return nil, wrapODataError(err, "list attachments")
	}

	values := result.GetValue()
	attachments := make([]domain.Attachment, len(values))
	for i, att := range values {
		var size int64
		if s := att.GetSize(); s != nil {
			size = int64(*s)
		}
		attachments[i] = domain.Attachment{
			Name:      derefSDKString(att.GetName()),
			SizeBytes: size,
			MimeType:  derefSDKString(att.GetContentType()),
		}
	}
	return attachments, nil
}

// wrapODataError turns a Graph OData error into an AdapterError, following
// the same {code, message} unwrapping the SDK's own error type exposes.
func wrapODataError(err error, action string) error {
	if err == nil {
		return nil
	}

	var odataErr *odataerrors.ODataError
	if errors.As(err, &odataErr) {
		code := ""
		message := err.Error()
		if terr := odataErr.GetErrorEscaped(); terr != nil {
			if terr.GetCode() != nil {
				code = *terr.GetCode()
			}
			if terr.GetMessage() != nil {
				message = *terr.GetMessage()
			}
		}
		return out.NewAdapterError(classifyODataCode(code), fmt.Sprintf("%s: %s", action, message), err)
	}

	return out.NewAdapterError(out.FailureUnavailable, action, err)
}

func classifyODataCode(code string) out.FailureKind {
	switch code {
	case "ErrorAccessDenied", "ErrorItemPermanentlyDeleted", "Forbidden", "ErrorInvalidUser":
		return out.FailurePermissionDenied
	case "ErrorItemNotFound", "ErrorSyncFolderNotFound", "NotFound":
		return out.FailureNotFound
	case "ErrorThrottled", "TooManyRequests":
		return out.FailureTransient
	case "ErrorInvalidRequest", "BadRequest":
		return out.FailureInvalidArgument
	default:
		return out.FailurePermanent
	}
}

var _ out.MailAdapter = (*SDKAdapter)(nil)

func derefSDKString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func convertSDKFolder(f models.MailFolderable) domain.Folder {
	folder := domain.Folder{
		ID:         derefSDKString(f.GetId()),
		Name:       derefSDKString(f.GetDisplayName()),
		FullPath:   derefSDKString(f.GetDisplayName()),
		FolderType: domain.FolderTypeMail,
		Accessible: true,
	}
	if total := f.GetTotalItemCount(); total != nil {
		folder.ItemCount = int(*total)
	}
	if unread := f.GetUnreadItemCount(); unread != nil {
		folder.UnreadCount = int(*unread)
	}
	if childCount := f.GetChildFolderCount(); childCount != nil {
		folder.HasSubfolders = *childCount > 0
	}
	if parent := f.GetParentFolderId(); parent != nil {
		folder.ParentID = parent
	}
	return folder
}

func convertSDKAddress(addr models.Recipientable) domain.EmailAddress {
	if addr == nil {
		return domain.EmailAddress{}
	}
	if emailAddr := addr.GetEmailAddress(); emailAddr != nil {
		return domain.EmailAddress{
			Name:  derefSDKString(emailAddr.GetName()),
			Email: derefSDKString(emailAddr.GetAddress()),
		}
	}
	return domain.EmailAddress{}
}

func convertSDKAddresses(addrs []models.Recipientable) []domain.EmailAddress {
	out := make([]domain.EmailAddress, len(addrs))
	for i, a := range addrs {
		out[i] = convertSDKAddress(a)
	}
	return out
}

func convertSDKImportance(imp *models.Importance) domain.Importance {
	if imp == nil {
		return domain.ImportanceNormal
	}
	switch *imp {
	case models.HIGH_IMPORTANCE:
		return domain.ImportanceHigh
	case models.LOW_IMPORTANCE:
		return domain.ImportanceLow
	default:
		return domain.ImportanceNormal
	}
}

func convertSDKSummary(msg models.Messageable, fallbackFolderID string) domain.EmailSummary {
	summary := domain.EmailSummary{
		ID:          derefSDKString(msg.GetId()),
		Subject:     derefSDKString(msg.GetSubject()),
		Recipients:  convertSDKAddresses(msg.GetToRecipients()),
		BodyPreview: derefSDKString(msg.GetBodyPreview()),
		Importance:  convertSDKImportance(msg.GetImportance()),
	}
	if from := msg.GetFrom(); from != nil {
		if emailAddr := from.GetEmailAddress(); emailAddr != nil {
			summary.SenderName = derefSDKString(emailAddr.GetName())
			summary.SenderEmail = derefSDKString(emailAddr.GetAddress())
		}
	}
	if isRead := msg.GetIsRead(); isRead != nil {
		summary.IsRead = *isRead
	}
	if hasAtt := msg.GetHasAttachments(); hasAtt != nil {
		summary.HasAttachments = *hasAtt
	}
	if received := msg.GetReceivedDateTime(); received != nil {
		summary.ReceivedTime = *received
	}
	if sent := msg.GetSentDateTime(); sent != nil {
		summary.SentTime = *sent
	}
	summary.FolderID = derefSDKString(msg.GetParentFolderId())
	if summary.FolderID == "" {
		summary.FolderID = fallbackFolderID
	}
	return summary
}

func convertSDKSummaries(msgs []models.Messageable, folderID string) []domain.EmailSummary {
	summaries := make([]domain.EmailSummary, len(msgs))
	for i, m := range msgs {
		summaries[i] = convertSDKSummary(m, folderID)
	}
	return summaries
}

func convertSDKFull(msg models.Messageable) domain.EmailFull {
	full := domain.EmailFull{
		EmailSummary: convertSDKSummary(msg, ""),
		CC:           convertSDKAddresses(msg.GetCcRecipients()),
		BCC:          convertSDKAddresses(msg.GetBccRecipients()),
	}
	if body := msg.GetBody(); body != nil {
		content := derefSDKString(body.GetContent())
		if contentType := body.GetContentType(); contentType != nil && *contentType == models.HTML_BODYTYPE {
			full.BodyHTML = content
		} else {
			full.BodyText = content
		}
	}
	return full
}

func buildSDKMessage(msg domain.OutgoingEmail) models.Messageable {
	m := models.NewMessage()
	m.SetSubject(&msg.Subject)

	body := models.NewItemBody()
	content := msg.Body
	body.SetContent(&content)
	bodyType := models.TEXT_BODYTYPE
	if msg.BodyFormat == domain.BodyFormatHTML {
		bodyType = models.HTML_BODYTYPE
	}
	body.SetContentType(&bodyType)
	m.SetBody(body)

	m.SetToRecipients(buildSDKRecipients(msg.To))
	m.SetCcRecipients(buildSDKRecipients(msg.CC))
	m.SetBccRecipients(buildSDKRecipients(msg.BCC))

	importance := models.NORMAL_IMPORTANCE
	switch msg.Importance {
	case domain.ImportanceHigh:
		importance = models.HIGH_IMPORTANCE
	case domain.ImportanceLow:
		importance = models.LOW_IMPORTANCE
	}
	m.SetImportance(&importance)

	return m
}

func buildSDKRecipients(addrs []domain.EmailAddress) []models.Recipientable {
	recipients := make([]models.Recipientable, len(addrs))
	for i, a := range addrs {
		r := models.NewRecipient()
		email := models.NewEmailAddress()
		name, addr := a.Name, a.Email
		email.SetName(&name)
		email.SetAddress(&addr)
		r.SetEmailAddress(email)
		recipients[i] = r
	}
	return recipients
}
