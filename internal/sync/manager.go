package sync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// CoordinatorFactory builds a request-scoped coordinator for a mailbox.
// The factory is where provider credentials are resolved, so a stale
// token is refreshed on every run rather than cached for the worker's
// lifetime.
type CoordinatorFactory func(ctx context.Context, mailbox string) (*Coordinator, error)

// Manager schedules periodic sync runs, one worker goroutine per
// mailbox. Runs for the same mailbox never overlap: the worker invokes
// Sync, waits for it to finish, then sleeps until the next tick.
type Manager struct {
	factory  CoordinatorFactory
	interval time.Duration
	pageSize int

	mu      sync.RWMutex
	workers map[string]context.CancelFunc
}

// NewManager creates a sync manager.
func NewManager(factory CoordinatorFactory, interval time.Duration, pageSize int) *Manager {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Manager{
		factory:  factory,
		interval: interval,
		pageSize: pageSize,
		workers:  make(map[string]context.CancelFunc),
	}
}

// Start launches the periodic worker for a mailbox. The first run
// happens immediately.
func (m *Manager) Start(ctx context.Context, mailbox string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.workers[mailbox]; exists {
		return fmt.Errorf("sync already running for %s", mailbox)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	m.workers[mailbox] = cancel

	go func() {
		log.Printf("sync start: %s", mailbox)
		m.run(workerCtx, mailbox)

		m.mu.Lock()
		delete(m.workers, mailbox)
		m.mu.Unlock()
		log.Printf("sync stop: %s", mailbox)
	}()

	return nil
}

func (m *Manager) run(ctx context.Context, mailbox string) {
	m.runOnce(ctx, mailbox)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runOnce(ctx, mailbox)
		}
	}
}

func (m *Manager) runOnce(ctx context.Context, mailbox string) {
	coord, err := m.factory(ctx, mailbox)
	if err != nil {
		log.Printf("sync %s: build coordinator: %v", mailbox, err)
		return
	}

	msgs, err := coord.Sync(ctx, m.pageSize, 1)
	if err != nil {
		log.Printf("sync %s: %v", mailbox, err)
		return
	}

	fresh := 0
	for _, msg := range msgs {
		if msg.IsFresh {
			fresh++
		}
	}
	log.Printf("sync %s: %d messages, %d fresh", mailbox, len(msgs), fresh)
}

// Stop cancels the worker for a mailbox.
func (m *Manager) Stop(mailbox string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cancel, exists := m.workers[mailbox]
	if !exists {
		return fmt.Errorf("no sync running for %s", mailbox)
	}

	cancel()
	delete(m.workers, mailbox)
	return nil
}

// IsRunning reports whether a worker exists for the mailbox.
func (m *Manager) IsRunning(mailbox string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.workers[mailbox]
	return exists
}

// StopAll cancels every running worker.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for mailbox, cancel := range m.workers {
		log.Printf("stopping sync for %s", mailbox)
		cancel()
	}
	m.workers = make(map[string]context.CancelFunc)
}

// Running returns the mailboxes with active workers.
func (m *Manager) Running() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var mailboxes []string
	for mailbox := range m.workers {
		mailboxes = append(mailboxes, mailbox)
	}
	return mailboxes
}
