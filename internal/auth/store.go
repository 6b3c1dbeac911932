package auth

import (
	"context"
	"time"

	"github.com/menubox/auth-service/internal/model"
)

// UserStore persists user identities. Implementations must report
// duplicate emails as ErrEmailExists and missing users as
// ErrUnauthorized so the service never leaks which lookup failed.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	MarkVerified(ctx context.Context, id uint64) error
	UpdatePassword(ctx context.Context, id uint64, passwordHash string) error
}

// SessionStore owns the per-user session sets backing refresh tokens.
//
// Rotate is the shared-resource boundary of the whole subsystem: it
// must atomically check that a session row with the provided hash is
// neither revoked nor expired and swap in the new hash, as a single
// compare-and-swap. When two callers race with the same token exactly
// one Rotate succeeds; the other returns ErrUnauthorized.
type SessionStore interface {
	Create(ctx context.Context, userID uint64, tokenHash, deviceInfo string, expiresAt time.Time) (uint64, error)
	// Rotate swaps oldHash for newHash in place and returns the
	// session, extending nothing: expiry and identity are unchanged so
	// the sid claim stays stable across rotations.
	Rotate(ctx context.Context, oldHash, newHash string) (model.Session, error)
	// RevokeByTokenHash revokes the session holding the hash. Missing
	// or already-revoked hashes are not an error; logout is idempotent.
	RevokeByTokenHash(ctx context.Context, tokenHash string) error
	// Revoke marks one session revoked, but only if it belongs to
	// userID; a foreign or unknown id returns ErrForbidden.
	Revoke(ctx context.Context, sessionID, userID uint64) error
	RevokeAll(ctx context.Context, userID uint64) error
	// ListActive returns the user's live sessions most-recent-first.
	// Revoked and expired rows are excluded (lazy expiry).
	ListActive(ctx context.Context, userID uint64) ([]model.Session, error)
}

// OneTimeTokenStore persists email verification and password reset
// tokens. Create invalidates any prior unconsumed token of the same
// purpose for the user, keeping at most one outstanding. Consume is a
// one-shot compare-and-swap: it succeeds at most once per token and
// returns ErrNotFoundOrExpired for absent, consumed, or expired ones.
type OneTimeTokenStore interface {
	Create(ctx context.Context, userID uint64, purpose, tokenHash string, expiresAt time.Time) error
	Consume(ctx context.Context, purpose, tokenHash string) (userID uint64, err error)
}

// Notifier delivers account emails. Failures must never roll back the
// token creation they accompany; the service logs and swallows them so
// a transient delivery outage cannot lock a user out of retrying.
type Notifier interface {
	SendVerification(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
	SendWelcome(ctx context.Context, email string) error
}
