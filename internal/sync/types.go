package sync

import (
	"context"
	"time"
)

// Header is a single message header as delivered by the provider.
// Name casing and repeats are preserved; consumers decide folding rules.
type Header struct {
	Name  string
	Value string
}

// MimePart is one node of a message's MIME structure. Data holds the
// part's inline payload in the provider's base64url encoding; parts
// without inline data (multipart containers, detached attachments)
// leave it empty.
type MimePart struct {
	MimeType     string
	Filename     string
	Data         string
	Size         int64
	AttachmentID string
	Parts        []*MimePart
}

// FullMessage is a provider message fetched in full, structural tree
// included. InternalDate is epoch milliseconds.
type FullMessage struct {
	ID           string
	ThreadID     string
	InternalDate int64
	Headers      []Header
	Payload      *MimePart
}

// AttachmentDescriptor describes one attachment found in a part tree.
// RelayedLink is filled in after the attachment has been copied to
// blob storage; it stays empty when relaying fails.
type AttachmentDescriptor struct {
	Filename     string
	MimeType     string
	SizeBytes    int64
	AttachmentID string
	RelayedLink  string
}

// EnrichedMessage is the per-message projection returned by Sync.
type EnrichedMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    string `json:"from"`
	Date    string `json:"date"`
	IsFresh bool   `json:"isFresh"`
}

// HistoryPage is the result of a change-log query: the identifiers of
// messages added since the cursor, and the provider's newest token.
type HistoryPage struct {
	MessageIDs []string
	NewToken   string
}

// MailProvider is the remote mailbox the engine syncs from. None of
// these calls are retried here; transport failures surface to the
// caller unchanged.
type MailProvider interface {
	// ListHistory returns message-added identifiers recorded after cursor.
	ListHistory(ctx context.Context, cursor string) (*HistoryPage, error)

	// ListRecent returns identifiers of the newest window messages in the inbox.
	ListRecent(ctx context.Context, window int64) ([]string, error)

	// GetFullMessage fetches a message with its full part tree. A message
	// the provider no longer has returns (nil, nil).
	GetFullMessage(ctx context.Context, id string) (*FullMessage, error)

	// GetAttachment fetches one attachment body. Attachment payloads are
	// served separately from the message for size reasons.
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)

	// CurrentWatermark returns the provider's newest history token.
	CurrentWatermark(ctx context.Context) (string, error)
}

// BlobStore receives relayed attachment payloads. An empty link with a
// nil error means the store accepted the bytes but offers no reference.
type BlobStore interface {
	Store(ctx context.Context, filename string, data []byte, mimeType string) (string, error)
}

// CursorStore persists the per-mailbox history token. GetCursor returns
// "" when no cursor exists yet.
type CursorStore interface {
	GetCursor(ctx context.Context, mailbox string) (string, error)
	UpsertCursor(ctx context.Context, mailbox, token string) error
}

// IngestOutcome reports what the ingestion pipeline did with a message.
type IngestOutcome struct {
	Stored  bool
	Skipped bool
}

// Ingestor normalizes and persists a fetched message.
type Ingestor interface {
	Ingest(ctx context.Context, msg *FullMessage) (IngestOutcome, error)
}

// Clock abstracts time.Now for freshness classification.
type Clock func() time.Time
