package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// LoadSessionCookies returns the serialized cookies saved for an account, or
// nil when none were saved.
func (db *DB) LoadSessionCookies(ctx context.Context, account string) ([]string, error) {
	var cookies []string
	err := db.pool.QueryRow(ctx,
		`SELECT cookies FROM publish_sessions WHERE account = $1`, account,
	).Scan(&cookies)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, &StoreError{Op: "load session", Cause: err}
	}
	return cookies, nil
}

// SaveSessionCookies replaces the saved cookies for an account.
func (db *DB) SaveSessionCookies(ctx context.Context, account string, cookies []string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO publish_sessions (account, cookies, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (account) DO UPDATE SET cookies = EXCLUDED.cookies, updated_at = NOW()`,
		account, cookies,
	)
	if err != nil {
		return &StoreError{Op: "save session", Cause: err}
	}
	return nil
}
