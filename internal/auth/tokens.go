package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/oauth2"
)

const tokenSchema = `
CREATE TABLE IF NOT EXISTS oauth_tokens (
	mailbox    TEXT PRIMARY KEY,
	provider   TEXT NOT NULL,
	token      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// TokenStore persists OAuth tokens per mailbox in its own SQLite
// database, separate from the mail records.
type TokenStore struct {
	db *sql.DB
}

// OpenTokenStore opens (and if needed initializes) the token database.
func OpenTokenStore(dbPath string) (*TokenStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open token database: %w", err)
	}

	if _, err := db.Exec(tokenSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize token schema: %w", err)
	}

	return &TokenStore{db: db}, nil
}

// Save stores or replaces the token for a mailbox.
func (s *TokenStore) Save(ctx context.Context, mailbox, provider string, tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO oauth_tokens (mailbox, provider, token, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(mailbox) DO UPDATE SET
			provider = excluded.provider,
			token = excluded.token,
			updated_at = excluded.updated_at
	`, mailbox, provider, string(raw), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save token for %s: %w", mailbox, err)
	}
	return nil
}

// Get returns the stored token and provider for a mailbox, or
// (nil, "", nil) when none is stored.
func (s *TokenStore) Get(ctx context.Context, mailbox string) (*oauth2.Token, string, error) {
	var raw, provider string
	err := s.db.QueryRowContext(ctx,
		`SELECT token, provider FROM oauth_tokens WHERE mailbox = ?`, mailbox,
	).Scan(&raw, &provider)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load token for %s: %w", mailbox, err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil, "", fmt.Errorf("failed to decode token for %s: %w", mailbox, err)
	}
	return &tok, provider, nil
}

// Delete removes a mailbox's token.
func (s *TokenStore) Delete(ctx context.Context, mailbox string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE mailbox = ?`, mailbox)
	if err != nil {
		return fmt.Errorf("failed to delete token for %s: %w", mailbox, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *TokenStore) Close() error {
	return s.db.Close()
}
