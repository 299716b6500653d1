package gmail

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DriveBlobStore implements sync.BlobStore on Google Drive. Relayed
// attachments land as individual files; the returned link is the
// file's web view link when Drive provides one.
type DriveBlobStore struct {
	svc *drive.Service
}

// NewDriveBlobStore creates a Drive-backed blob store sharing the
// adapter's authorized HTTP client.
func NewDriveBlobStore(ctx context.Context, httpClient *http.Client) (*DriveBlobStore, error) {
	svc, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	return &DriveBlobStore{svc: svc}, nil
}

// Store uploads attachment bytes and returns a dereferenceable link,
// or "" when Drive yields none.
func (s *DriveBlobStore) Store(ctx context.Context, filename string, data []byte, mimeType string) (string, error) {
	file := &drive.File{
		Name:     filename,
		MimeType: mimeType,
	}

	created, err := s.svc.Files.Create(file).
		Media(bytes.NewReader(data), googleapi.ContentType(mimeType)).
		Fields("id, webViewLink, webContentLink").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", filename, err)
	}

	if created.WebViewLink != "" {
		return created.WebViewLink, nil
	}
	return created.WebContentLink, nil
}
