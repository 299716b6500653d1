package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/inboxd/inboxd/internal/sync"
)

const user = "me"

// Adapter implements sync.MailProvider for Gmail.
type Adapter struct {
	svc *gmail.Service
}

// New creates a Gmail adapter from an OAuth token.
func New(ctx context.Context, config *oauth2.Config, tok *oauth2.Token) (*Adapter, error) {
	httpClient := config.Client(ctx, tok)

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Adapter{svc: svc}, nil
}

// NewWithClient creates an adapter over a prebuilt HTTP client.
func NewWithClient(ctx context.Context, httpClient *http.Client) (*Adapter, error) {
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &Adapter{svc: svc}, nil
}

// ListHistory returns identifiers of messages added after the cursor,
// along with the newest history token observed.
func (a *Adapter) ListHistory(ctx context.Context, cursor string) (*sync.HistoryPage, error) {
	startHistoryID, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid history token %q: %w", cursor, err)
	}

	call := a.svc.Users.History.List(user).
		StartHistoryId(startHistoryID).
		HistoryTypes("messageAdded").
		MaxResults(100)

	page := &sync.HistoryPage{}
	latest := startHistoryID

	err = call.Pages(ctx, func(resp *gmail.ListHistoryResponse) error {
		if resp.HistoryId > latest {
			latest = resp.HistoryId
		}
		for _, history := range resp.History {
			if history.Id > latest {
				latest = history.Id
			}
			for _, record := range history.MessagesAdded {
				if record.Message != nil {
					page.MessageIDs = append(page.MessageIDs, record.Message.Id)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	page.NewToken = strconv.FormatUint(latest, 10)
	return page, nil
}

// ListRecent returns the newest inbox message identifiers, bounded by
// window.
func (a *Adapter) ListRecent(ctx context.Context, window int64) ([]string, error) {
	resp, err := a.svc.Users.Messages.List(user).
		Q("in:inbox").
		MaxResults(window).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// GetFullMessage fetches a message with its full part tree. A message
// Gmail no longer has returns (nil, nil).
func (a *Adapter) GetFullMessage(ctx context.Context, id string) (*sync.FullMessage, error) {
	msg, err := a.svc.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		if apiErr, ok := err.(*googleapi.Error); ok && apiErr.Code == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	if msg.Payload == nil {
		return nil, nil
	}

	full := &sync.FullMessage{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		InternalDate: msg.InternalDate,
		Payload:      convertPart(msg.Payload),
	}
	for _, h := range msg.Payload.Headers {
		full.Headers = append(full.Headers, sync.Header{Name: h.Name, Value: h.Value})
	}
	return full, nil
}

// GetAttachment fetches and decodes one attachment body.
func (a *Adapter) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	att, err := a.svc.Users.Messages.Attachments.Get(user, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}

	data, err := base64.URLEncoding.DecodeString(att.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment: %w", err)
	}
	return data, nil
}

// CurrentWatermark returns the profile's newest history token.
func (a *Adapter) CurrentWatermark(ctx context.Context) (string, error) {
	profile, err := a.svc.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get profile: %w", err)
	}
	return strconv.FormatUint(profile.HistoryId, 10), nil
}

// convertPart maps Gmail's part tree onto the engine's MimePart tree.
// Inline data stays in Gmail's base64url encoding; the parser decodes.
func convertPart(p *gmail.MessagePart) *sync.MimePart {
	part := &sync.MimePart{
		MimeType: p.MimeType,
		Filename: p.Filename,
	}
	if p.Body != nil {
		part.Data = p.Body.Data
		part.Size = p.Body.Size
		part.AttachmentID = p.Body.AttachmentId
	}
	for _, child := range p.Parts {
		part.Parts = append(part.Parts, convertPart(child))
	}
	return part
}
