package model

import "time"

// Session models an entry in the `sessions` table. A session is a
// refresh-token-backed device login: it is created at login, its
// token hash is swapped in place on every refresh rotation, and it
// dies at expiry, explicit revocation, or password reset. The plain
// refresh token is never stored; only its SHA‑256 hash.
//
// Fields:
//  ID               – primary key identifier, also the `sid` claim of
//                     access tokens minted against this session.
//  UserID           – owner of the session.
//  RefreshTokenHash – SHA‑256 hex digest of the current refresh token.
//  DeviceInfo       – free-form device description (User-Agent at login).
//  ExpiresAt        – expiration timestamp of the refresh token.
//  RevokedAt        – when the session was revoked (null if still active).
//  CreatedAt        – timestamp of creation.
type Session struct {
    ID               uint64     // sessions.id
    UserID           uint64     // sessions.user_id
    RefreshTokenHash string     // sessions.refresh_token_hash
    DeviceInfo       string     // sessions.device_info
    ExpiresAt        time.Time  // sessions.expires_at
    RevokedAt        *time.Time // sessions.revoked_at (nullable)
    CreatedAt        time.Time  // sessions.created_at
}

// Active reports whether the session can still back a refresh at the
// given instant. Expiry is enforced lazily: an expired row is treated
// exactly like a revoked one.
func (s Session) Active(now time.Time) bool {
    return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
