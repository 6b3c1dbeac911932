// Package notifier delivers account emails through the message
// broker. The auth service publishes an event per email and returns
// immediately; a background consumer picks the events up. Delivery
// failure therefore never rolls back the token issuance that
// triggered the email.
package notifier

// Email kinds carried in EmailEvent.Kind.
const (
	KindVerification  = "verification"
	KindPasswordReset = "password_reset"
	KindWelcome       = "welcome"
)

// EmailEvent is the payload published to the auth.email queue. Link
// carries the full frontend URL including the one-time token; the
// consumer never needs to reconstruct it.
type EmailEvent struct {
	Kind    string `json:"kind"`
	Email   string `json:"email"`
	Link    string `json:"link,omitempty"`
	SentAt  string `json:"sent_at"`
	Subject string `json:"subject"`
}
