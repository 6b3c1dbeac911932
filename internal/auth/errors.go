// Package auth implements the authentication and session lifecycle
// core: credential issuance, refresh token rotation, multi-device
// session management, email verification gating, and password reset.
// It is transport-agnostic; handlers translate its error taxonomy
// into HTTP status codes and clients translate status codes back.
package auth

import "errors"

// Sentinel errors forming the taxonomy shared by every operation in
// this package. Handlers should dispatch with errors.Is so wrapped
// detail (via fmt.Errorf %w) survives.
var (
	// ErrInvalidInput covers malformed requests: empty or malformed
	// email, too-short password. The wrapping message is safe to
	// surface verbatim.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized covers bad credentials and absent, revoked,
	// expired, or already-rotated refresh tokens. Losing a rotation
	// race is this error too: the loser observes the token as already
	// invalid even though it was valid microseconds earlier.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnverified is returned for a correct credential pair whose
	// account has not confirmed its email. It is a Forbidden, not an
	// Unauthorized: the caller should offer "resend verification"
	// rather than "wrong password".
	ErrUnverified = errors.New("email not verified")

	// ErrForbidden is returned when an authenticated caller targets a
	// resource it does not own, such as another user's session id.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFoundOrExpired is returned for verification and reset
	// token lookups. Absence, prior consumption, and expiry are
	// deliberately indistinguishable to the caller.
	ErrNotFoundOrExpired = errors.New("token not found or expired")

	// ErrEmailExists signals duplicate registration.
	ErrEmailExists = errors.New("email already exists")
)
