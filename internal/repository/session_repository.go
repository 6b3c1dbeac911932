package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/menubox/auth-service/internal/auth"
	"github.com/menubox/auth-service/internal/model"
)

// SessionRepo persists device sessions (one 'refresh_token_hash'
// column per row) and implements auth.SessionStore.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// Create inserts a session row and returns its id.
func (r *SessionRepo) Create(ctx context.Context, userID uint64, tokenHash, deviceInfo string, expiresAt time.Time) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO sessions (user_id, refresh_token_hash, device_info, expires_at) VALUES (?,?,?,?)",
		userID, tokenHash, deviceInfo, expiresAt)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Rotate atomically swaps oldHash for newHash on a live session. The
// UPDATE's WHERE clause is the compare-and-swap: it matches only a
// non-revoked, non-expired row still holding oldHash, so of two
// simultaneous rotations of the same token exactly one reports a row
// affected. The loser gets auth.ErrUnauthorized, same as a token that
// never existed.
func (r *SessionRepo) Rotate(ctx context.Context, oldHash, newHash string) (model.Session, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET refresh_token_hash=? WHERE refresh_token_hash=? AND revoked_at IS NULL AND expires_at > NOW()",
		newHash, oldHash)
	if err != nil {
		return model.Session{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Session{}, err
	}
	if n != 1 {
		return model.Session{}, auth.ErrUnauthorized
	}
	var s model.Session
	var revoked sql.NullTime
	err = r.DB.QueryRowContext(ctx,
		"SELECT id,user_id,refresh_token_hash,device_info,expires_at,revoked_at,created_at FROM sessions WHERE refresh_token_hash=? LIMIT 1",
		newHash).Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.DeviceInfo, &s.ExpiresAt, &revoked, &s.CreatedAt)
	if err != nil {
		return model.Session{}, err
	}
	if revoked.Valid {
		t := revoked.Time
		s.RevokedAt = &t
	}
	return s, nil
}

// RevokeByTokenHash marks the session holding the hash as revoked.
// Zero rows affected is fine; logout is idempotent.
func (r *SessionRepo) RevokeByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET revoked_at=NOW() WHERE refresh_token_hash=? AND revoked_at IS NULL",
		tokenHash)
	return err
}

// Revoke marks one session revoked if it belongs to userID. The
// ownership check and the update are one statement; a foreign or
// unknown id affects no rows and comes back auth.ErrForbidden.
func (r *SessionRepo) Revoke(ctx context.Context, sessionID, userID uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET revoked_at=NOW() WHERE id=? AND user_id=? AND revoked_at IS NULL",
		sessionID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return auth.ErrForbidden
	}
	return nil
}

// RevokeAll revokes every active session of the user.
func (r *SessionRepo) RevokeAll(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET revoked_at=NOW() WHERE user_id=? AND revoked_at IS NULL",
		userID)
	return err
}

// ListActive returns the user's live sessions most-recent-first.
// Expired rows are filtered out here rather than deleted; expiry is
// enforced lazily everywhere.
func (r *SessionRepo) ListActive(ctx context.Context, userID uint64) ([]model.Session, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,user_id,refresh_token_hash,device_info,expires_at,revoked_at,created_at FROM sessions WHERE user_id=? AND revoked_at IS NULL AND expires_at > NOW() ORDER BY created_at DESC, id DESC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var s model.Session
		var revoked sql.NullTime
		if err := rows.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.DeviceInfo, &s.ExpiresAt, &revoked, &s.CreatedAt); err != nil {
			return nil, err
		}
		if revoked.Valid {
			t := revoked.Time
			s.RevokedAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
