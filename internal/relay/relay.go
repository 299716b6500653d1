// Package relay moves attachment payloads from the mail provider to
// external blob storage.
package relay

import (
	"context"
	"fmt"

	"github.com/inboxd/inboxd/internal/sync"
)

// Relay performs the two-step fetch-then-upload for one attachment.
type Relay struct {
	provider sync.MailProvider
	blobs    sync.BlobStore
}

// New creates a relay over the given provider and blob store.
func New(provider sync.MailProvider, blobs sync.BlobStore) *Relay {
	return &Relay{provider: provider, blobs: blobs}
}

// Fetch retrieves the raw attachment payload from the provider. This is
// a round trip separate from the full-message fetch; providers serve
// attachment bodies on their own endpoint for size reasons.
func (r *Relay) Fetch(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	data, err := r.provider.GetAttachment(ctx, messageID, attachmentID)
	if err != nil {
		return nil, fmt.Errorf("get attachment %s/%s: %w", messageID, attachmentID, err)
	}
	return data, nil
}

// Upload forwards decoded attachment bytes to blob storage and returns
// a dereferenceable link. A store that accepts the bytes but yields no
// link produces "", not an error; the owning message is persisted
// either way.
func (r *Relay) Upload(ctx context.Context, filename string, data []byte, mimeType string) (string, error) {
	if r.blobs == nil {
		return "", nil
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	link, err := r.blobs.Store(ctx, filename, data, mimeType)
	if err != nil {
		return "", fmt.Errorf("store %s: %w", filename, err)
	}
	return link, nil
}
