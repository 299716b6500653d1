package sync

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// FreshnessWindow classifies how recently a message arrived relative to
// the sync call. The boundary is inclusive.
const FreshnessWindow = 5 * time.Minute

// Coordinator runs one mailbox's incremental sync: discover candidate
// identifiers, paginate, fetch, ingest and advance the cursor. A
// coordinator is request-scoped; build one per sync run with the
// provider handle for that mailbox.
type Coordinator struct {
	mailbox  string
	provider MailProvider
	fetcher  *DeltaFetcher
	cursors  CursorStore
	ingestor Ingestor
	now      Clock
}

// CoordinatorOptions wires a Coordinator's collaborators.
type CoordinatorOptions struct {
	Mailbox        string
	Provider       MailProvider
	Cursors        CursorStore
	Ingestor       Ingestor
	FallbackWindow int64

	// Now overrides the clock used for freshness classification.
	Now Clock
}

// NewCoordinator creates a coordinator for a single mailbox.
func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	window := opts.FallbackWindow
	if window <= 0 {
		window = 100
	}
	return &Coordinator{
		mailbox:  opts.Mailbox,
		provider: opts.Provider,
		fetcher:  NewDeltaFetcher(opts.Provider, window),
		cursors:  cursorStoreOrNoop(opts.Cursors),
		ingestor: opts.Ingestor,
		now:      now,
	}
}

func cursorStoreOrNoop(s CursorStore) CursorStore {
	if s == nil {
		return noopCursors{}
	}
	return s
}

type noopCursors struct{}

func (noopCursors) GetCursor(context.Context, string) (string, error) { return "", nil }
func (noopCursors) UpsertCursor(context.Context, string, string) error {
	return nil
}

// Sync performs one incremental sync cycle and returns the requested
// page of enriched messages.
//
// Candidate identifiers keep their discovery order, so repeated calls
// against an unchanged candidate set page through the same ordered
// sequence. The cursor advances exactly once, after page processing,
// even when individual identifiers failed to fetch: a poison identifier
// costs at most its own messages, never a stuck cursor.
func (c *Coordinator) Sync(ctx context.Context, pageSize, pageNumber int) ([]EnrichedMessage, error) {
	if pageSize <= 0 {
		return nil, ErrInvalidPageSize
	}
	if pageNumber < 1 {
		return nil, ErrInvalidPageNumber
	}

	cursor, err := c.cursors.GetCursor(ctx, c.mailbox)
	if err != nil {
		return nil, fmt.Errorf("load cursor: %w", err)
	}

	delta, err := c.fetcher.Fetch(ctx, cursor)
	if err != nil {
		return nil, fmt.Errorf("fetch delta: %w", err)
	}

	page := slicePage(delta.CandidateIDs, pageSize, pageNumber)
	now := c.now()

	enriched := make([]EnrichedMessage, 0, len(page))
	var pageErr error

	for _, id := range page {
		msg, err := c.provider.GetFullMessage(ctx, id)
		if err != nil {
			log.Printf("sync %s: fetch %s: %v", c.mailbox, id, err)
			continue
		}
		if !usable(msg) {
			log.Printf("sync %s: skipping unusable message %s", c.mailbox, id)
			continue
		}

		if _, err := c.ingestor.Ingest(ctx, msg); err != nil {
			// Persistence failures are not recoverable per item; stop
			// processing the rest of the page.
			pageErr = fmt.Errorf("ingest %s: %w", msg.ID, err)
			break
		}

		enriched = append(enriched, c.enrich(msg, now))
	}

	// The cursor advances once the history/fallback fetch succeeded,
	// regardless of per-item outcomes above.
	if delta.NewHistoryToken != "" {
		if err := c.cursors.UpsertCursor(ctx, c.mailbox, delta.NewHistoryToken); err != nil {
			return nil, fmt.Errorf("advance cursor: %w", err)
		}
	}

	if pageErr != nil {
		return nil, pageErr
	}
	return enriched, nil
}

// slicePage returns the half-open slice [start, start+size) of ids,
// clamped to the sequence end.
func slicePage(ids []string, size, number int) []string {
	start := (number - 1) * size
	if start >= len(ids) {
		return nil
	}
	end := start + size
	if end > len(ids) {
		end = len(ids)
	}
	return ids[start:end]
}

// usable reports whether a fetched message carries the fields the
// pipeline requires.
func usable(msg *FullMessage) bool {
	return msg != nil && msg.ID != "" && msg.ThreadID != "" && msg.InternalDate > 0 && msg.Payload != nil
}

func (c *Coordinator) enrich(msg *FullMessage, now time.Time) EnrichedMessage {
	age := now.UnixMilli() - msg.InternalDate
	return EnrichedMessage{
		ID:      msg.ID,
		Subject: headerValue(msg.Headers, "Subject"),
		From:    headerValue(msg.Headers, "From"),
		Date:    headerValue(msg.Headers, "Date"),
		IsFresh: age <= FreshnessWindow.Milliseconds(),
	}
}

// headerValue returns the first header matching name, case-insensitively.
func headerValue(headers []Header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
