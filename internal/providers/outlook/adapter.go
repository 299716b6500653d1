package outlook

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"github.com/inboxd/inboxd/internal/sync"
)

// Adapter implements sync.MailProvider for Outlook via Microsoft Graph.
//
// Graph has no Gmail-style history log; the cursor is the identifier of
// the newest message seen, and ListHistory walks the recent listing
// until it reappears. The fallback listing the delta fetcher always
// unions in covers the case where the cursor message was deleted.
type Adapter struct {
	client *msgraphsdk.GraphServiceClient
	userID string
}

// New creates an Outlook adapter from a bearer token.
func New(ctx context.Context, accessToken, userID string) (*Adapter, error) {
	cred := &staticTokenCredential{token: accessToken}

	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Graph client: %w", err)
	}

	return &Adapter{client: client, userID: userID}, nil
}

// ListHistory returns message identifiers newer than the cursor.
func (a *Adapter) ListHistory(ctx context.Context, cursor string) (*sync.HistoryPage, error) {
	ids, err := a.listIDs(ctx, 100)
	if err != nil {
		return nil, err
	}

	page := &sync.HistoryPage{NewToken: cursor}
	if len(ids) > 0 {
		page.NewToken = ids[0]
	}
	for _, id := range ids {
		if id == cursor {
			break
		}
		page.MessageIDs = append(page.MessageIDs, id)
	}
	return page, nil
}

// ListRecent returns the newest message identifiers, bounded by window.
func (a *Adapter) ListRecent(ctx context.Context, window int64) ([]string, error) {
	return a.listIDs(ctx, int32(window))
}

func (a *Adapter) listIDs(ctx context.Context, top int32) ([]string, error) {
	requestConfig := &users.ItemMessagesRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.ItemMessagesRequestBuilderGetQueryParameters{
			Top:     &top,
			Select:  []string{"id"},
			Orderby: []string{"receivedDateTime desc"},
		},
	}

	result, err := a.client.Users().ByUserId(a.userID).Messages().Get(ctx, requestConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	var ids []string
	for _, msg := range result.GetValue() {
		if id := msg.GetId(); id != nil {
			ids = append(ids, *id)
		}
	}
	return ids, nil
}

// GetFullMessage fetches a message and synthesizes a part tree from its
// body and attachment manifest.
func (a *Adapter) GetFullMessage(ctx context.Context, id string) (*sync.FullMessage, error) {
	requestConfig := &users.ItemMessagesMessageItemRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.ItemMessagesMessageItemRequestBuilderGetQueryParameters{
			Select: []string{"id", "conversationId", "subject", "body", "receivedDateTime", "internetMessageHeaders", "hasAttachments"},
		},
	}

	msg, err := a.client.Users().ByUserId(a.userID).Messages().ByMessageId(id).Get(ctx, requestConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	if msg == nil || msg.GetId() == nil {
		return nil, nil
	}

	full := &sync.FullMessage{ID: *msg.GetId()}
	if convID := msg.GetConversationId(); convID != nil {
		full.ThreadID = *convID
	}
	if rcvd := msg.GetReceivedDateTime(); rcvd != nil {
		full.InternalDate = rcvd.UnixMilli()
	}
	for _, h := range msg.GetInternetMessageHeaders() {
		if h.GetName() != nil && h.GetValue() != nil {
			full.Headers = append(full.Headers, sync.Header{Name: *h.GetName(), Value: *h.GetValue()})
		}
	}

	full.Payload = a.buildTree(ctx, id, msg)
	return full, nil
}

// buildTree assembles a MimePart tree: one body part plus one part per
// attachment, under a multipart root. Part data is base64url encoded to
// match what the parser expects from any provider.
func (a *Adapter) buildTree(ctx context.Context, id string, msg models.Messageable) *sync.MimePart {
	root := &sync.MimePart{MimeType: "multipart/mixed"}

	if body := msg.GetBody(); body != nil && body.GetContent() != nil {
		mimeType := "text/plain"
		if ct := body.GetContentType(); ct != nil && *ct == models.HTML_BODYTYPE {
			mimeType = "text/html"
		}
		root.Parts = append(root.Parts, &sync.MimePart{
			MimeType: mimeType,
			Data:     base64.URLEncoding.EncodeToString([]byte(*body.GetContent())),
		})
	}

	if has := msg.GetHasAttachments(); has == nil || !*has {
		return root
	}

	result, err := a.client.Users().ByUserId(a.userID).Messages().ByMessageId(id).Attachments().Get(ctx, nil)
	if err != nil {
		// The message is still usable without its attachment manifest.
		return root
	}

	for _, att := range result.GetValue() {
		part := &sync.MimePart{}
		if attID := att.GetId(); attID != nil {
			part.AttachmentID = *attID
		}
		if name := att.GetName(); name != nil {
			part.Filename = *name
		}
		if ct := att.GetContentType(); ct != nil {
			part.MimeType = *ct
		}
		if size := att.GetSize(); size != nil {
			part.Size = int64(*size)
		}
		if part.Filename != "" && part.AttachmentID != "" {
			root.Parts = append(root.Parts, part)
		}
	}
	return root
}

// GetAttachment fetches one attachment's content bytes.
func (a *Adapter) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	att, err := a.client.Users().ByUserId(a.userID).Messages().ByMessageId(messageID).Attachments().ByAttachmentId(attachmentID).Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}

	file, ok := att.(models.FileAttachmentable)
	if !ok {
		return nil, fmt.Errorf("attachment %s is not a file attachment", attachmentID)
	}
	return file.GetContentBytes(), nil
}

// CurrentWatermark returns the newest message identifier, which serves
// as this provider's cursor.
func (a *Adapter) CurrentWatermark(ctx context.Context) (string, error) {
	ids, err := a.listIDs(ctx, 1)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

// staticTokenCredential implements the Azure credential interface over
// an already-issued access token.
type staticTokenCredential struct {
	token string
}

func (c *staticTokenCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{
		Token:     c.token,
		ExpiresOn: time.Now().Add(1 * time.Hour),
	}, nil
}
