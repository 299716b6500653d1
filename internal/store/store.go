// Package store persists deduplicated email records and per-mailbox
// sync cursors.
package store

import (
	"context"
	"time"
)

// StoredEmail is the normalized, append-only email record. For a given
// ExternalID at most one record ever exists.
type StoredEmail struct {
	ID             int64     `json:"id"`
	ExternalID     string    `json:"external_id"`
	ThreadID       string    `json:"thread_id"`
	Subject        string    `json:"subject"`
	Sender         string    `json:"sender"`
	Recipients     string    `json:"recipients"`
	Cc             string    `json:"cc"`
	Bcc            string    `json:"bcc"`
	Body           string    `json:"body"`
	AttachmentLink string    `json:"attachment_link,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// SyncState is the durable cursor row for one mailbox, at most one per
// mailbox identity.
type SyncState struct {
	Mailbox      string    `json:"mailbox"`
	HistoryToken string    `json:"history_token"`
	Status       string    `json:"status"`
	LastSyncedAt time.Time `json:"last_synced_at"`
}

// RecordStore is the storage collaborator consumed by the ingestion
// pipeline and the sync coordinator. FindByExternalID and GetSyncState
// return (nil, nil) when no row exists; GetCursor returns "".
type RecordStore interface {
	FindByExternalID(ctx context.Context, externalID string) (*StoredEmail, error)
	Insert(ctx context.Context, email *StoredEmail) error

	GetCursor(ctx context.Context, mailbox string) (string, error)
	UpsertCursor(ctx context.Context, mailbox, token string) error
	GetSyncState(ctx context.Context, mailbox string) (*SyncState, error)
}
