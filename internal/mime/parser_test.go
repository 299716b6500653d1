package mime

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inboxd/inboxd/internal/sync"
)

func enc(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestExtractBody_InlinePayload(t *testing.T) {
	payload := &sync.MimePart{
		MimeType: "text/plain",
		Data:     enc("plain body"),
	}
	assert.Equal(t, "plain body", ExtractBody(payload))
}

func TestExtractBody_PrefersHTMLOverPlain(t *testing.T) {
	payload := &sync.MimePart{
		MimeType: "multipart/alternative",
		Parts: []*sync.MimePart{
			{MimeType: "text/plain", Data: enc("plain")},
			{MimeType: "text/html", Data: enc("<p>html</p>")},
		},
	}
	assert.Equal(t, "<p>html</p>", ExtractBody(payload))
}

func TestExtractBody_FallsBackToPlain(t *testing.T) {
	payload := &sync.MimePart{
		MimeType: "multipart/mixed",
		Parts: []*sync.MimePart{
			{MimeType: "text/plain", Data: enc("only plain")},
			{MimeType: "application/pdf", Filename: "a.pdf", AttachmentID: "att1"},
		},
	}
	assert.Equal(t, "only plain", ExtractBody(payload))
}

func TestExtractBody_RecursesNestedMultipart(t *testing.T) {
	payload := &sync.MimePart{
		MimeType: "multipart/mixed",
		Parts: []*sync.MimePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*sync.MimePart{
					{MimeType: "text/plain", Data: enc("nested plain")},
					{MimeType: "text/html", Data: enc("nested html")},
				},
			},
			{MimeType: "image/png", Filename: "pic.png", AttachmentID: "att1"},
		},
	}
	assert.Equal(t, "nested html", ExtractBody(payload))
}

func TestExtractBody_EmptyTree(t *testing.T) {
	assert.Equal(t, "", ExtractBody(nil))
	assert.Equal(t, "", ExtractBody(&sync.MimePart{MimeType: "multipart/mixed"}))
}

func TestExtractBody_UnpaddedEncoding(t *testing.T) {
	raw := base64.RawURLEncoding.EncodeToString([]byte("no padding"))
	payload := &sync.MimePart{MimeType: "text/plain", Data: raw}
	assert.Equal(t, "no padding", ExtractBody(payload))
}

func TestExtractAttachments_RequiresFilenameAndID(t *testing.T) {
	payload := &sync.MimePart{
		MimeType: "multipart/mixed",
		Parts: []*sync.MimePart{
			{MimeType: "text/html", Data: enc("body")},
			{MimeType: "application/pdf", Filename: "report.pdf", AttachmentID: "att1", Size: 2048},
			// Inline image with a content ID but no filename.
			{MimeType: "image/png", AttachmentID: "att2"},
			// Named part whose payload was inlined, no detached ID.
			{MimeType: "text/csv", Filename: "data.csv", Data: enc("a,b")},
		},
	}

	atts := ExtractAttachments(payload)
	assert.Len(t, atts, 1)
	assert.Equal(t, "report.pdf", atts[0].Filename)
	assert.Equal(t, "application/pdf", atts[0].MimeType)
	assert.Equal(t, "att1", atts[0].AttachmentID)
	assert.Equal(t, int64(2048), atts[0].SizeBytes)
}

func TestExtractAttachments_TraversalOrderAndDuplicates(t *testing.T) {
	payload := &sync.MimePart{
		MimeType: "multipart/mixed",
		Parts: []*sync.MimePart{
			{MimeType: "application/pdf", Filename: "dup.pdf", AttachmentID: "att1"},
			{
				MimeType: "multipart/related",
				Parts: []*sync.MimePart{
					{MimeType: "image/png", Filename: "inner.png", AttachmentID: "att2"},
				},
			},
			{MimeType: "application/pdf", Filename: "dup.pdf", AttachmentID: "att3"},
		},
	}

	atts := ExtractAttachments(payload)
	assert.Len(t, atts, 3)
	assert.Equal(t, "att1", atts[0].AttachmentID)
	assert.Equal(t, "att2", atts[1].AttachmentID)
	assert.Equal(t, "att3", atts[2].AttachmentID)
}

func TestExtractAttachments_EmptyTree(t *testing.T) {
	assert.Nil(t, ExtractAttachments(nil))
	assert.Empty(t, ExtractAttachments(&sync.MimePart{MimeType: "text/plain", Data: enc("x")}))
}
