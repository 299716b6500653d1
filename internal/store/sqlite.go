package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore is the RecordStore backed by a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens or creates the mail database at dbPath.
func Open(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FindByExternalID returns the stored email for a provider identifier,
// or (nil, nil) when none exists.
func (s *SQLiteStore) FindByExternalID(ctx context.Context, externalID string) (*StoredEmail, error) {
	var (
		email      StoredEmail
		link       sql.NullString
		receivedAt int64
		createdAt  int64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, thread_id, subject, sender, recipients, cc, bcc, body,
		       attachment_link, received_at, created_at
		FROM emails WHERE external_id = ?
	`, externalID).Scan(
		&email.ID, &email.ExternalID, &email.ThreadID, &email.Subject, &email.Sender,
		&email.Recipients, &email.Cc, &email.Bcc, &email.Body,
		&link, &receivedAt, &createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find email %s: %w", externalID, err)
	}

	email.AttachmentLink = link.String
	email.ReceivedAt = time.UnixMilli(receivedAt)
	email.CreatedAt = time.Unix(createdAt, 0)
	return &email, nil
}

// Insert persists a new email record. The UNIQUE constraint on
// external_id makes a duplicate insert fail rather than overwrite.
func (s *SQLiteStore) Insert(ctx context.Context, email *StoredEmail) error {
	if email.CreatedAt.IsZero() {
		email.CreatedAt = time.Now()
	}

	var link interface{}
	if email.AttachmentLink != "" {
		link = email.AttachmentLink
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO emails
		(external_id, thread_id, subject, sender, recipients, cc, bcc, body, attachment_link, received_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, email.ExternalID, email.ThreadID, email.Subject, email.Sender,
		email.Recipients, email.Cc, email.Bcc, email.Body, link,
		email.ReceivedAt.UnixMilli(), email.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert email %s: %w", email.ExternalID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		email.ID = id
	}
	return nil
}

// GetCursor loads the history token for a mailbox, "" when absent.
func (s *SQLiteStore) GetCursor(ctx context.Context, mailbox string) (string, error) {
	var token sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT history_token FROM sync_state WHERE mailbox = ?
	`, mailbox).Scan(&token)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to load cursor: %w", err)
	}
	return token.String, nil
}

// UpsertCursor creates or overwrites the single cursor row for a
// mailbox.
func (s *SQLiteStore) UpsertCursor(ctx context.Context, mailbox, token string) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (mailbox, history_token, status, last_synced_at, updated_at)
		VALUES (?, ?, 'SYNCED', ?, ?)
		ON CONFLICT(mailbox) DO UPDATE SET
			history_token = excluded.history_token,
			status = excluded.status,
			last_synced_at = excluded.last_synced_at,
			updated_at = excluded.updated_at
	`, mailbox, token, now, now)
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// GetSyncState returns the full cursor row, (nil, nil) when absent.
func (s *SQLiteStore) GetSyncState(ctx context.Context, mailbox string) (*SyncState, error) {
	var (
		state        SyncState
		lastSyncedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT mailbox, history_token, status, last_synced_at FROM sync_state WHERE mailbox = ?
	`, mailbox).Scan(&state.Mailbox, &state.HistoryToken, &state.Status, &lastSyncedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}
	state.LastSyncedAt = time.Unix(lastSyncedAt, 0)
	return &state, nil
}
