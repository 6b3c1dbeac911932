package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/menubox/auth-service/internal/auth"
)

// OneTimeTokenRepo persists email verification and password reset
// tokens in the 'one_time_tokens' table and implements
// auth.OneTimeTokenStore.
type OneTimeTokenRepo struct{ DB *sql.DB }

func NewOneTimeTokenRepo(db *sql.DB) *OneTimeTokenRepo { return &OneTimeTokenRepo{DB: db} }

// Create inserts a token row after consuming any prior live token of
// the same purpose for the user, keeping at most one outstanding.
// Both statements run in one transaction so a resend can never leave
// two usable links in flight.
func (r *OneTimeTokenRepo) Create(ctx context.Context, userID uint64, purpose, tokenHash string, expiresAt time.Time) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"UPDATE one_time_tokens SET consumed_at=NOW() WHERE user_id=? AND purpose=? AND consumed_at IS NULL",
		userID, purpose); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO one_time_tokens (user_id, purpose, token_hash, expires_at) VALUES (?,?,?,?)",
		userID, purpose, tokenHash, expiresAt); err != nil {
		return err
	}
	return tx.Commit()
}

// Consume marks a token used and returns its owner. The UPDATE's
// WHERE clause only matches a live, unexpired token of the right
// purpose, so a token can be consumed at most once; absent, spent,
// and expired all come back as one auth.ErrNotFoundOrExpired.
func (r *OneTimeTokenRepo) Consume(ctx context.Context, purpose, tokenHash string) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE one_time_tokens SET consumed_at=NOW() WHERE purpose=? AND token_hash=? AND consumed_at IS NULL AND expires_at > NOW()",
		purpose, tokenHash)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, auth.ErrNotFoundOrExpired
	}
	var userID uint64
	err = r.DB.QueryRowContext(ctx,
		"SELECT user_id FROM one_time_tokens WHERE purpose=? AND token_hash=? LIMIT 1",
		purpose, tokenHash).Scan(&userID)
	if err == sql.ErrNoRows {
		return 0, auth.ErrNotFoundOrExpired
	}
	return userID, err
}
