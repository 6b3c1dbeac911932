package model

import "time"

// Token purposes stored in one_time_tokens.purpose. Email
// verification and password reset tokens share a table and a
// lifecycle (minted, consumed once, or expired); the purpose column
// keeps the two populations separate so consuming a verification
// token can never reset a password and vice versa.
const (
    PurposeVerifyEmail   = "verify_email"
    PurposeResetPassword = "reset_password"
)

// OneTimeToken models a row in the `one_time_tokens` table. The raw
// token value is handed to the user exactly once (inside an emailed
// link) and persisted only as a SHA‑256 hash. Minting a new token
// for a user invalidates any prior unconsumed token of the same
// purpose, so at most one is outstanding at a time.
//
// Fields:
//  ID         – primary key identifier.
//  UserID     – owner of the token.
//  Purpose    – PurposeVerifyEmail or PurposeResetPassword.
//  TokenHash  – SHA‑256 hex digest of the token value.
//  ExpiresAt  – expiration timestamp (24h verification, 1h reset).
//  ConsumedAt – when the token was used (null if still live).
//  CreatedAt  – timestamp of creation.
type OneTimeToken struct {
    ID         uint64     // one_time_tokens.id
    UserID     uint64     // one_time_tokens.user_id
    Purpose    string     // one_time_tokens.purpose
    TokenHash  string     // one_time_tokens.token_hash
    ExpiresAt  time.Time  // one_time_tokens.expires_at
    ConsumedAt *time.Time // one_time_tokens.consumed_at (nullable)
    CreatedAt  time.Time  // one_time_tokens.created_at
}
