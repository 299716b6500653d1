package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory RecordStore, primarily for tests.
type MemoryStore struct {
	mu     sync.RWMutex
	emails map[string]*StoredEmail
	states map[string]*SyncState
	nextID int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		emails: make(map[string]*StoredEmail),
		states: make(map[string]*SyncState),
		nextID: 1,
	}
}

// FindByExternalID returns the stored email or (nil, nil) when absent.
func (s *MemoryStore) FindByExternalID(ctx context.Context, externalID string) (*StoredEmail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email, ok := s.emails[externalID]
	if !ok {
		return nil, nil
	}
	copied := *email
	return &copied, nil
}

// Insert persists a new record, failing on a duplicate external ID.
func (s *MemoryStore) Insert(ctx context.Context, email *StoredEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.emails[email.ExternalID]; exists {
		return fmt.Errorf("email %s already exists", email.ExternalID)
	}

	email.ID = s.nextID
	s.nextID++
	if email.CreatedAt.IsZero() {
		email.CreatedAt = time.Now()
	}

	copied := *email
	s.emails[email.ExternalID] = &copied
	return nil
}

// GetCursor returns the mailbox's history token, "" when absent.
func (s *MemoryStore) GetCursor(ctx context.Context, mailbox string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[mailbox]
	if !ok {
		return "", nil
	}
	return state.HistoryToken, nil
}

// UpsertCursor creates or overwrites the mailbox's cursor row.
func (s *MemoryStore) UpsertCursor(ctx context.Context, mailbox, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[mailbox] = &SyncState{
		Mailbox:      mailbox,
		HistoryToken: token,
		Status:       "SYNCED",
		LastSyncedAt: time.Now(),
	}
	return nil
}

// GetSyncState returns the full cursor row, (nil, nil) when absent.
func (s *MemoryStore) GetSyncState(ctx context.Context, mailbox string) (*SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[mailbox]
	if !ok {
		return nil, nil
	}
	copied := *state
	return &copied, nil
}

// Count returns the number of stored emails.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.emails)
}
