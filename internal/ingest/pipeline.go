// Package ingest normalizes fetched messages and persists them exactly
// once.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inboxd/inboxd/internal/events"
	"github.com/inboxd/inboxd/internal/mime"
	"github.com/inboxd/inboxd/internal/relay"
	"github.com/inboxd/inboxd/internal/store"
	"github.com/inboxd/inboxd/internal/sync"
)

// EventPublisher receives an event after each successful insert.
type EventPublisher interface {
	Publish(subject string, payload []byte, msgID string) error
}

// Pipeline deduplicates, parses and stores one message at a time.
// Attachments are relayed serially within each message; a failed relay
// leaves that attachment's link empty and never fails the message.
type Pipeline struct {
	mailbox   string
	records   store.RecordStore
	relay     *relay.Relay
	publisher EventPublisher
}

// NewPipeline creates an ingestion pipeline for a mailbox. publisher
// may be nil, in which case no events are emitted.
func NewPipeline(mailbox string, records store.RecordStore, rel *relay.Relay, publisher EventPublisher) *Pipeline {
	return &Pipeline{
		mailbox:   mailbox,
		records:   records,
		relay:     rel,
		publisher: publisher,
	}
}

// Ingest persists a fetched message unless a record with the same
// external identifier already exists. Storage failures propagate; the
// pipeline takes no compensating action for attachments already
// relayed.
func (p *Pipeline) Ingest(ctx context.Context, msg *sync.FullMessage) (sync.IngestOutcome, error) {
	existing, err := p.records.FindByExternalID(ctx, msg.ID)
	if err != nil {
		return sync.IngestOutcome{}, fmt.Errorf("dedup check: %w", err)
	}
	if existing != nil {
		return sync.IngestOutcome{Skipped: true}, nil
	}

	headers := foldHeaders(msg.Headers)
	body := mime.ExtractBody(msg.Payload)
	attachments := mime.ExtractAttachments(msg.Payload)

	for i := range attachments {
		att := &attachments[i]

		data, err := p.relay.Fetch(ctx, msg.ID, att.AttachmentID)
		if err != nil {
			log.Printf("ingest %s: relay %s: %v", msg.ID, att.Filename, err)
			continue
		}

		link, err := p.relay.Upload(ctx, att.Filename, data, att.MimeType)
		if err != nil {
			log.Printf("ingest %s: upload %s: %v", msg.ID, att.Filename, err)
			continue
		}
		att.RelayedLink = link
	}

	email := &store.StoredEmail{
		ExternalID: msg.ID,
		ThreadID:   msg.ThreadID,
		Subject:    headers["subject"],
		Sender:     headers["from"],
		Recipients: headers["to"],
		Cc:         headers["cc"],
		Bcc:        headers["bcc"],
		Body:       body,
		ReceivedAt: time.UnixMilli(msg.InternalDate),
	}
	// Only the first attachment's link is denormalized onto the record;
	// the schema carries a single optional link column.
	for _, att := range attachments {
		if att.RelayedLink != "" {
			email.AttachmentLink = att.RelayedLink
			break
		}
	}

	if err := p.records.Insert(ctx, email); err != nil {
		return sync.IngestOutcome{}, err
	}

	p.publish(email)
	return sync.IngestOutcome{Stored: true}, nil
}

// foldHeaders lowercases header names into a map, last value winning
// for repeated names.
func foldHeaders(headers []sync.Header) map[string]string {
	folded := make(map[string]string, len(headers))
	for _, h := range headers {
		folded[strings.ToLower(h.Name)] = h.Value
	}
	return folded
}

// publish emits an email.ingested event, best effort.
func (p *Pipeline) publish(email *store.StoredEmail) {
	if p.publisher == nil {
		return
	}

	event := map[string]interface{}{
		"event_id":    uuid.NewString(),
		"ts":          time.Now().Unix(),
		"mailbox":     p.mailbox,
		"external_id": email.ExternalID,
		"thread_id":   email.ThreadID,
		"subject":     email.Subject,
		"sender":      email.Sender,
		"received_at": email.ReceivedAt.UnixMilli(),
	}

	payload, _ := json.Marshal(event)
	subject := events.IngestedSubject(p.mailbox)
	msgID := fmt.Sprintf("email.ingested|%s", email.ExternalID)

	if err := p.publisher.Publish(subject, payload, msgID); err != nil {
		log.Printf("ingest %s: publish event: %v", email.ExternalID, err)
	}
}
