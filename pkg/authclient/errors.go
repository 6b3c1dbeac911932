package authclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrLoggedOut is returned once a refresh cycle has failed for good.
// The client is in a terminal logged-out state: no request will be
// retried or queued until Login succeeds again with fresh credentials.
var ErrLoggedOut = errors.New("authclient: logged out, fresh credentials required")

// Kind classifies API failures independently of their wire encoding.
// The HTTP status code is just one possible encoding of this taxonomy;
// call sites should switch on Kind, never on Status.
type Kind int

const (
	KindServer Kind = iota // 5xx or undecodable response
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFoundOrExpired
	KindConflict
)

// APIError is a decoded error response from the auth service.
type APIError struct {
	Kind    Kind
	Status  int
	Message string
	// Reason carries the machine-readable detail for Forbidden
	// responses, e.g. "email_not_verified" to drive a resend prompt.
	Reason string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("authclient: %s (status %d)", e.Message, e.Status)
}

// IsUnverified reports whether err is the Forbidden(unverified) case,
// so UIs can offer "resend verification" instead of "wrong password".
func IsUnverified(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Kind == KindForbidden && ae.Reason == "email_not_verified"
}

// decodeError turns a non-2xx response into an APIError.
func decodeError(status int, body []byte) *APIError {
	var payload struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	_ = json.Unmarshal(body, &payload)
	if payload.Error == "" {
		payload.Error = http.StatusText(status)
	}

	kind := KindServer
	switch status {
	case http.StatusBadRequest:
		kind = KindValidation
	case http.StatusUnauthorized:
		kind = KindUnauthorized
	case http.StatusForbidden:
		kind = KindForbidden
	case http.StatusNotFound:
		kind = KindNotFoundOrExpired
	case http.StatusConflict:
		kind = KindConflict
	}
	return &APIError{Kind: kind, Status: status, Message: payload.Error, Reason: payload.Reason}
}
