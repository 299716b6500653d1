package sync

import (
	"context"
	"fmt"
)

// Delta is the merged candidate set for one sync cycle. CandidateIDs
// keeps discovery order: change-log results first, fallback listing
// appended, first occurrence wins.
type Delta struct {
	CandidateIDs    []string
	NewHistoryToken string
}

// DeltaFetcher discovers message identifiers changed since a cursor.
// Providers may prune their change log beyond a retention horizon, so a
// bounded recent-inbox listing is always unioned in as a safety net.
type DeltaFetcher struct {
	provider MailProvider
	window   int64
}

// NewDeltaFetcher creates a fetcher with the given fallback window size.
func NewDeltaFetcher(provider MailProvider, window int64) *DeltaFetcher {
	return &DeltaFetcher{provider: provider, window: window}
}

// Fetch returns the deduplicated candidate identifiers for a mailbox.
// With a cursor it queries the change log and unions the fallback
// window; without one it lists the fallback window only and seeds the
// token from the provider's current watermark. Any provider failure
// surfaces unchanged and must abort the sync cycle without advancing
// the cursor.
func (f *DeltaFetcher) Fetch(ctx context.Context, cursor string) (*Delta, error) {
	if cursor == "" {
		ids, err := f.provider.ListRecent(ctx, f.window)
		if err != nil {
			return nil, fmt.Errorf("list recent: %w", err)
		}

		token, err := f.provider.CurrentWatermark(ctx)
		if err != nil {
			return nil, fmt.Errorf("current watermark: %w", err)
		}

		return &Delta{CandidateIDs: dedupe(ids), NewHistoryToken: token}, nil
	}

	page, err := f.provider.ListHistory(ctx, cursor)
	if err != nil {
		return nil, fmt.Errorf("list history from %s: %w", cursor, err)
	}

	fallback, err := f.provider.ListRecent(ctx, f.window)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}

	merged := make([]string, 0, len(page.MessageIDs)+len(fallback))
	merged = append(merged, page.MessageIDs...)
	merged = append(merged, fallback...)

	return &Delta{CandidateIDs: dedupe(merged), NewHistoryToken: page.NewToken}, nil
}

// dedupe removes duplicate identifiers keeping the first occurrence.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
