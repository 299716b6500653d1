// Package mime decodes message bodies and attachment manifests from a
// provider part tree.
package mime

import (
	"encoding/base64"
	"strings"

	"github.com/inboxd/inboxd/internal/sync"
)

// ExtractBody returns the message body decoded from the part tree.
//
// Priority: inline data on the payload itself (non-multipart messages),
// then the first text/html part with inline data anywhere in the tree,
// then the first text/plain part, then nested multipart children. A
// message with no decodable body yields "".
func ExtractBody(payload *sync.MimePart) string {
	if payload == nil {
		return ""
	}
	if payload.Data != "" && len(payload.Parts) == 0 {
		return decode(payload.Data)
	}
	if body := findBody(payload, "text/html"); body != "" {
		return body
	}
	if body := findBody(payload, "text/plain"); body != "" {
		return body
	}
	if payload.Data != "" {
		return decode(payload.Data)
	}
	return ""
}

// findBody depth-first searches the tree for a part of the given
// content type carrying inline data.
func findBody(part *sync.MimePart, mimeType string) string {
	if part.MimeType == mimeType && part.Data != "" {
		return decode(part.Data)
	}
	for _, child := range part.Parts {
		if body := findBody(child, mimeType); body != "" {
			return body
		}
	}
	return ""
}

// ExtractAttachments walks the entire part tree depth-first and returns
// a descriptor for every part carrying both a filename and a
// provider-assigned attachment identifier. Duplicate filenames are kept;
// the attachment identifier is the uniqueness key.
func ExtractAttachments(payload *sync.MimePart) []sync.AttachmentDescriptor {
	if payload == nil {
		return nil
	}

	var descriptors []sync.AttachmentDescriptor
	walk(payload, &descriptors)
	return descriptors
}

func walk(part *sync.MimePart, out *[]sync.AttachmentDescriptor) {
	if part.Filename != "" && part.AttachmentID != "" {
		*out = append(*out, sync.AttachmentDescriptor{
			Filename:     part.Filename,
			MimeType:     part.MimeType,
			SizeBytes:    part.Size,
			AttachmentID: part.AttachmentID,
		})
	}
	for _, child := range part.Parts {
		walk(child, out)
	}
}

// decode unwraps the provider's base64url part encoding. Providers are
// inconsistent about padding, so both variants are tried.
func decode(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "=")); err == nil {
		return string(b)
	}
	return ""
}
