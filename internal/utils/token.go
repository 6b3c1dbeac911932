package utils // package utils provides helper functions for token creation and hashing

import (
    "crypto/rand"   // secure random number generation
    "crypto/sha256" // SHA‑256 hashing for opaque tokens
    "encoding/hex"  // hex encoding and decoding functions
    "errors"        // sentinel error for rejected access tokens
    "time"          // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// ErrInvalidAccessToken is returned by ParseAccessToken for any token
// that fails signature, structure, or expiry checks. Callers do not
// need to distinguish the reasons; every one of them means the bearer
// must refresh or log in again.
var ErrInvalidAccessToken = errors.New("invalid access token")

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string. Exp stores the expiration
// timestamp as a time.Time. Access tokens are short‑lived, encoded in the
// Authorization header when calling protected endpoints, and never
// persisted server-side.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// AccessClaims carries the identity claims extracted from a valid
// access token: the user it authenticates and the session it was
// minted against. Tracking the session id in the token makes "which
// session is the current device" explicit instead of being inferred
// from list order.
type AccessClaims struct {
    UserID    uint64
    SessionID uint64
}

// OpaqueToken represents a long‑lived random credential (refresh,
// email verification, or password reset). The Raw field contains the
// value returned to the caller exactly once; only the SHA‑256 hash of
// it is ever stored.
type OpaqueToken struct {
    Raw string    // raw token string returned to the caller
    Exp time.Time // UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for a user session. It
// takes the signing secret, the user ID, the backing session ID, and a
// TTL in minutes. The JWT includes the subject (sub), session (sid),
// expiration (exp) and issued at (iat) claims.
func NewAccessToken(secret string, userID, sessionID uint64, ttlMin int) (AccessToken, error) {
    exp := time.Now().UTC().Add(time.Duration(ttlMin) * time.Minute)
    claims := jwt.MapClaims{
        "sub": userID,
        "sid": sessionID,
        "exp": exp.Unix(),
        "iat": time.Now().UTC().Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken validates a signed access token and returns its
// claims. Only HMAC-signed tokens are accepted; anything else, or an
// expired or malformed token, yields ErrInvalidAccessToken.
func ParseAccessToken(secret, raw string) (AccessClaims, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrInvalidAccessToken
        }
        return []byte(secret), nil
    })
    if err != nil || !tok.Valid {
        return AccessClaims{}, ErrInvalidAccessToken
    }
    claims, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return AccessClaims{}, ErrInvalidAccessToken
    }
    sub, ok := claims["sub"].(float64)
    if !ok {
        return AccessClaims{}, ErrInvalidAccessToken
    }
    sid, ok := claims["sid"].(float64)
    if !ok {
        return AccessClaims{}, ErrInvalidAccessToken
    }
    return AccessClaims{UserID: uint64(sub), SessionID: uint64(sid)}, nil
}

// NewOpaqueToken returns a cryptographically secure random token (raw)
// and its expiration time. The same shape backs refresh tokens and the
// one-time email tokens; only the TTL differs.
func NewOpaqueToken(ttl time.Duration) (OpaqueToken, error) {
    raw, err := randomHex(48) // 48 bytes -> 96 hex chars
    if err != nil {
        return OpaqueToken{}, err
    }
    return OpaqueToken{
        Raw: raw,
        Exp: time.Now().UTC().Add(ttl),
    }, nil
}

// HashTokenRaw returns the SHA‑256 hash of a raw opaque token as a hex
// string. Storing only the hash prevents attackers from using stolen
// database rows to hijack sessions or consume emailed links.
func HashTokenRaw(raw string) string {
    sum := sha256.Sum256([]byte(raw))
    return hex.EncodeToString(sum[:])
}

// randomHex returns a hex‑encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
