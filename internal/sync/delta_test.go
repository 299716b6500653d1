package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeProvider is a scriptable MailProvider for tests.
type fakeProvider struct {
	historyIDs   []string
	historyToken string
	historyErr   error

	recentIDs []string
	recentErr error

	watermark    string
	watermarkErr error

	messages map[string]*FullMessage
	fetchErr map[string]error

	attachments map[string][]byte

	historyCalls int
	recentCalls  int
	fetchCalls   int
}

func (p *fakeProvider) ListHistory(ctx context.Context, cursor string) (*HistoryPage, error) {
	p.historyCalls++
	if p.historyErr != nil {
		return nil, p.historyErr
	}
	return &HistoryPage{MessageIDs: p.historyIDs, NewToken: p.historyToken}, nil
}

func (p *fakeProvider) ListRecent(ctx context.Context, window int64) ([]string, error) {
	p.recentCalls++
	if p.recentErr != nil {
		return nil, p.recentErr
	}
	if int64(len(p.recentIDs)) > window {
		return p.recentIDs[:window], nil
	}
	return p.recentIDs, nil
}

func (p *fakeProvider) GetFullMessage(ctx context.Context, id string) (*FullMessage, error) {
	p.fetchCalls++
	if err := p.fetchErr[id]; err != nil {
		return nil, err
	}
	return p.messages[id], nil
}

func (p *fakeProvider) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	return p.attachments[attachmentID], nil
}

func (p *fakeProvider) CurrentWatermark(ctx context.Context) (string, error) {
	if p.watermarkErr != nil {
		return "", p.watermarkErr
	}
	return p.watermark, nil
}

func TestDeltaFetcher_FirstRunUsesFallbackAndWatermark(t *testing.T) {
	provider := &fakeProvider{
		recentIDs: []string{"m3", "m2", "m1"},
		watermark: "500",
	}
	fetcher := NewDeltaFetcher(provider, 100)

	delta, err := fetcher.Fetch(context.Background(), "")
	assert.NoError(t, err)
	assert.Equal(t, []string{"m3", "m2", "m1"}, delta.CandidateIDs)
	assert.Equal(t, "500", delta.NewHistoryToken)
	assert.Equal(t, 0, provider.historyCalls)
}

func TestDeltaFetcher_MergesHistoryBeforeFallback(t *testing.T) {
	provider := &fakeProvider{
		historyIDs:   []string{"m5", "m4"},
		historyToken: "510",
		recentIDs:    []string{"m5", "m3", "m2"},
	}
	fetcher := NewDeltaFetcher(provider, 100)

	delta, err := fetcher.Fetch(context.Background(), "500")
	assert.NoError(t, err)
	assert.Equal(t, []string{"m5", "m4", "m3", "m2"}, delta.CandidateIDs)
	assert.Equal(t, "510", delta.NewHistoryToken)
	assert.Equal(t, 1, provider.historyCalls)
	assert.Equal(t, 1, provider.recentCalls)
}

func TestDeltaFetcher_WindowBoundsFallback(t *testing.T) {
	provider := &fakeProvider{
		recentIDs: []string{"m5", "m4", "m3", "m2", "m1"},
		watermark: "500",
	}
	fetcher := NewDeltaFetcher(provider, 2)

	delta, err := fetcher.Fetch(context.Background(), "")
	assert.NoError(t, err)
	assert.Equal(t, []string{"m5", "m4"}, delta.CandidateIDs)
}

func TestDeltaFetcher_HistoryErrorAborts(t *testing.T) {
	provider := &fakeProvider{historyErr: errors.New("boom")}
	fetcher := NewDeltaFetcher(provider, 100)

	_, err := fetcher.Fetch(context.Background(), "500")
	assert.Error(t, err)
}

func TestDeltaFetcher_FallbackErrorAborts(t *testing.T) {
	provider := &fakeProvider{
		historyIDs: []string{"m1"},
		recentErr:  errors.New("boom"),
	}
	fetcher := NewDeltaFetcher(provider, 100)

	_, err := fetcher.Fetch(context.Background(), "500")
	assert.Error(t, err)
}

func TestDedupeKeepsFirstOccurrence(t *testing.T) {
	out := dedupe([]string{"a", "b", "a", "", "c", "b"})
	assert.Equal(t, []string{"a", "b", "c"}, out)
}
