package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxd/inboxd/internal/relay"
	"github.com/inboxd/inboxd/internal/store"
	"github.com/inboxd/inboxd/internal/sync"
)

type stubProvider struct {
	sync.MailProvider

	attachments map[string][]byte
	fetchErr    map[string]error
}

func (p *stubProvider) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	if err := p.fetchErr[attachmentID]; err != nil {
		return nil, err
	}
	return p.attachments[attachmentID], nil
}

type stubBlobs struct {
	links    map[string]string
	storeErr error
	uploads  []string
}

func (b *stubBlobs) Store(ctx context.Context, filename string, data []byte, mimeType string) (string, error) {
	if b.storeErr != nil {
		return "", b.storeErr
	}
	b.uploads = append(b.uploads, filename)
	return b.links[filename], nil
}

type capturedEvent struct {
	subject string
	payload []byte
	msgID   string
}

type stubPublisher struct {
	events []capturedEvent
}

func (p *stubPublisher) Publish(subject string, payload []byte, msgID string) error {
	p.events = append(p.events, capturedEvent{subject, payload, msgID})
	return nil
}

func enc(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func sampleMessage() *sync.FullMessage {
	return &sync.FullMessage{
		ID:           "msg-1",
		ThreadID:     "thread-1",
		InternalDate: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
		Headers: []sync.Header{
			{Name: "Subject", Value: "Quarterly report"},
			{Name: "From", Value: "alice@example.com"},
			{Name: "To", Value: "bob@example.com"},
			{Name: "Cc", Value: "carol@example.com"},
		},
		Payload: &sync.MimePart{
			MimeType: "multipart/mixed",
			Parts: []*sync.MimePart{
				{MimeType: "text/html", Data: enc("<p>see attached</p>")},
				{MimeType: "application/pdf", Filename: "report.pdf", AttachmentID: "att1", Size: 4},
			},
		},
	}
}

func newTestPipeline(records store.RecordStore, provider *stubProvider, blobs *stubBlobs, pub EventPublisher) *Pipeline {
	return NewPipeline("alice@example.com", records, relay.New(provider, blobs), pub)
}

func TestIngest_StoresNormalizedRecord(t *testing.T) {
	records := store.NewMemoryStore()
	provider := &stubProvider{attachments: map[string][]byte{"att1": []byte("%PDF")}}
	blobs := &stubBlobs{links: map[string]string{"report.pdf": "https://blobs/report"}}
	pipeline := newTestPipeline(records, provider, blobs, nil)

	outcome, err := pipeline.Ingest(context.Background(), sampleMessage())
	require.NoError(t, err)
	assert.True(t, outcome.Stored)

	saved, err := records.FindByExternalID(context.Background(), "msg-1")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "Quarterly report", saved.Subject)
	assert.Equal(t, "alice@example.com", saved.Sender)
	assert.Equal(t, "bob@example.com", saved.Recipients)
	assert.Equal(t, "carol@example.com", saved.Cc)
	assert.Equal(t, "<p>see attached</p>", saved.Body)
	assert.Equal(t, "https://blobs/report", saved.AttachmentLink)
	assert.Equal(t, sampleMessage().InternalDate, saved.ReceivedAt.UnixMilli())
}

func TestIngest_SkipsExistingRecord(t *testing.T) {
	records := store.NewMemoryStore()
	provider := &stubProvider{attachments: map[string][]byte{"att1": []byte("%PDF")}}
	blobs := &stubBlobs{}
	pipeline := newTestPipeline(records, provider, blobs, nil)

	_, err := pipeline.Ingest(context.Background(), sampleMessage())
	require.NoError(t, err)

	outcome, err := pipeline.Ingest(context.Background(), sampleMessage())
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
	assert.False(t, outcome.Stored)
	assert.Equal(t, 1, records.Count())
	// Attachments are not re-relayed for a duplicate.
	assert.Len(t, blobs.uploads, 1)
}

func TestIngest_RelayFailureStillPersistsMessage(t *testing.T) {
	records := store.NewMemoryStore()
	provider := &stubProvider{fetchErr: map[string]error{"att1": errors.New("attachment endpoint down")}}
	blobs := &stubBlobs{}
	pipeline := newTestPipeline(records, provider, blobs, nil)

	outcome, err := pipeline.Ingest(context.Background(), sampleMessage())
	require.NoError(t, err)
	assert.True(t, outcome.Stored)

	saved, err := records.FindByExternalID(context.Background(), "msg-1")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Empty(t, saved.AttachmentLink)
	assert.Empty(t, blobs.uploads)
}

func TestIngest_UploadFailureStillPersistsMessage(t *testing.T) {
	records := store.NewMemoryStore()
	provider := &stubProvider{attachments: map[string][]byte{"att1": []byte("%PDF")}}
	blobs := &stubBlobs{storeErr: errors.New("blob store down")}
	pipeline := newTestPipeline(records, provider, blobs, nil)

	outcome, err := pipeline.Ingest(context.Background(), sampleMessage())
	require.NoError(t, err)
	assert.True(t, outcome.Stored)

	saved, err := records.FindByExternalID(context.Background(), "msg-1")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Empty(t, saved.AttachmentLink)
}

func TestIngest_FirstAttachmentLinkWins(t *testing.T) {
	msg := sampleMessage()
	msg.Payload.Parts = append(msg.Payload.Parts,
		&sync.MimePart{MimeType: "image/png", Filename: "chart.png", AttachmentID: "att2", Size: 4},
	)

	records := store.NewMemoryStore()
	provider := &stubProvider{attachments: map[string][]byte{
		"att1": []byte("%PDF"),
		"att2": []byte("PNG!"),
	}}
	blobs := &stubBlobs{links: map[string]string{
		"report.pdf": "https://blobs/report",
		"chart.png":  "https://blobs/chart",
	}}
	pipeline := newTestPipeline(records, provider, blobs, nil)

	_, err := pipeline.Ingest(context.Background(), msg)
	require.NoError(t, err)

	saved, err := records.FindByExternalID(context.Background(), "msg-1")
	require.NoError(t, err)
	// Both relayed, first link denormalized.
	assert.Equal(t, []string{"report.pdf", "chart.png"}, blobs.uploads)
	assert.Equal(t, "https://blobs/report", saved.AttachmentLink)
}

func TestIngest_HeaderFoldingLastValueWins(t *testing.T) {
	msg := sampleMessage()
	msg.Headers = []sync.Header{
		{Name: "Subject", Value: "first"},
		{Name: "SUBJECT", Value: "second"},
		{Name: "from", Value: "mixed@example.com"},
	}

	records := store.NewMemoryStore()
	pipeline := newTestPipeline(records, &stubProvider{}, &stubBlobs{}, nil)

	_, err := pipeline.Ingest(context.Background(), msg)
	require.NoError(t, err)

	saved, err := records.FindByExternalID(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "second", saved.Subject)
	assert.Equal(t, "mixed@example.com", saved.Sender)
}

func TestIngest_PublishesEventAfterInsert(t *testing.T) {
	records := store.NewMemoryStore()
	provider := &stubProvider{attachments: map[string][]byte{"att1": []byte("%PDF")}}
	pub := &stubPublisher{}
	pipeline := newTestPipeline(records, provider, &stubBlobs{}, pub)

	_, err := pipeline.Ingest(context.Background(), sampleMessage())
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "mailbox.alice@example_com.email.ingested", pub.events[0].subject)
	assert.Equal(t, "email.ingested|msg-1", pub.events[0].msgID)

	// Duplicate ingest emits nothing.
	_, err = pipeline.Ingest(context.Background(), sampleMessage())
	require.NoError(t, err)
	assert.Len(t, pub.events, 1)
}

type failingStore struct {
	*store.MemoryStore
	insertErr error
}

func (s *failingStore) Insert(ctx context.Context, email *store.StoredEmail) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	return s.MemoryStore.Insert(ctx, email)
}

func TestIngest_InsertFailurePropagates(t *testing.T) {
	records := &failingStore{MemoryStore: store.NewMemoryStore(), insertErr: errors.New("disk full")}
	pipeline := newTestPipeline(records, &stubProvider{}, &stubBlobs{}, nil)

	_, err := pipeline.Ingest(context.Background(), sampleMessage())
	assert.Error(t, err)
}
