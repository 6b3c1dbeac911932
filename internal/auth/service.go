package auth

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/menubox/auth-service/internal/model"
	"github.com/menubox/auth-service/internal/utils"
)

// Config carries the knobs the service needs to mint credentials.
type Config struct {
	JWTSecret      string        // HS256 signing secret for access tokens
	AccessTTLMin   int           // access token lifetime in minutes
	RefreshTTLDays int           // session / refresh token lifetime in days
	VerifyTTL      time.Duration // verification token lifetime (24h)
	ResetTTL       time.Duration // reset token lifetime (~1h)
	BcryptCost     int           // bcrypt cost factor
}

// TokenPair is what a successful login or refresh hands back: a signed
// access token plus the raw refresh token whose hash now backs the
// session. The raw value crosses this boundary exactly once.
type TokenPair struct {
	Access  utils.AccessToken
	Refresh utils.OpaqueToken
}

// Service wires the credential store, session registry, one-time token
// stores and notifier into the lifecycle operations. All state lives
// behind the store interfaces; Service itself is stateless and safe
// for concurrent use.
type Service struct {
	cfg      Config
	users    UserStore
	sessions SessionStore
	tokens   OneTimeTokenStore
	notifier Notifier
}

func NewService(cfg Config, users UserStore, sessions SessionStore, tokens OneTimeTokenStore, n Notifier) *Service {
	return &Service{
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		notifier: n,
	}
}

// Register creates an unverified user and mails a verification link.
// No tokens are returned; the account is unusable until verified.
func (s *Service) Register(ctx context.Context, email, password string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	uid, err := s.users.Create(ctx, email, hash)
	if err != nil {
		return err
	}
	s.mintVerification(ctx, uid, email)
	return nil
}

// Login validates credentials and, for verified accounts only, opens a
// new session and issues a token pair. Both unknown email and bad
// password come back as ErrUnauthorized; the unverified check happens
// after the password check so the error never confirms a password for
// a foreign account.
func (s *Service) Login(ctx context.Context, email, password, deviceInfo string) (model.User, TokenPair, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return model.User{}, TokenPair{}, err
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return model.User{}, TokenPair{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return model.User{}, TokenPair{}, ErrUnauthorized
	}
	if !u.EmailVerified {
		return model.User{}, TokenPair{}, ErrUnverified
	}
	pair, err := s.issueTokens(ctx, u, deviceInfo)
	if err != nil {
		return model.User{}, TokenPair{}, err
	}
	return u, pair, nil
}

// issueTokens opens a session for a verified user and mints the pair.
// The unverified check is repeated here so no future call path can
// hand a usable session to an unverified account.
func (s *Service) issueTokens(ctx context.Context, u model.User, deviceInfo string) (TokenPair, error) {
	if !u.EmailVerified {
		return TokenPair{}, ErrUnverified
	}
	refresh, err := utils.NewOpaqueToken(time.Duration(s.cfg.RefreshTTLDays) * 24 * time.Hour)
	if err != nil {
		return TokenPair{}, err
	}
	sid, err := s.sessions.Create(ctx, u.ID, utils.HashTokenRaw(refresh.Raw), deviceInfo, refresh.Exp)
	if err != nil {
		return TokenPair{}, err
	}
	access, err := utils.NewAccessToken(s.cfg.JWTSecret, u.ID, sid, s.cfg.AccessTTLMin)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh rotates a refresh token: the presented value is atomically
// replaced by a fresh one on the same session and a new access token
// is minted. A value that has already been rotated, revoked, or has
// expired fails ErrUnauthorized. Under a race on the same value
// exactly one caller wins; the session store's compare-and-swap
// decides which.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, fmt.Errorf("%w: refresh_token required", ErrInvalidInput)
	}
	next, err := utils.NewOpaqueToken(0)
	if err != nil {
		return TokenPair{}, err
	}
	sess, err := s.sessions.Rotate(ctx, utils.HashTokenRaw(refreshToken), utils.HashTokenRaw(next.Raw))
	if err != nil {
		return TokenPair{}, err
	}
	// Rotation swaps the hash in place; the session keeps its expiry.
	next.Exp = sess.ExpiresAt
	access, err := utils.NewAccessToken(s.cfg.JWTSecret, sess.UserID, sess.ID, s.cfg.AccessTTLMin)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: next}, nil
}

// Logout revokes the session backing the given refresh token. Unknown
// or already-dead tokens are a no-op: logging out twice is fine.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return fmt.Errorf("%w: refresh_token required", ErrInvalidInput)
	}
	return s.sessions.RevokeByTokenHash(ctx, utils.HashTokenRaw(refreshToken))
}

// LogoutAll revokes every session of the user ("logout everywhere").
func (s *Service) LogoutAll(ctx context.Context, userID uint64) error {
	return s.sessions.RevokeAll(ctx, userID)
}

// ListSessions enumerates the user's live device sessions, most
// recent first. Token material never leaves the store.
func (s *Service) ListSessions(ctx context.Context, userID uint64) ([]model.Session, error) {
	return s.sessions.ListActive(ctx, userID)
}

// RevokeSession revokes one session by id. The requester must own it;
// a foreign id fails ErrForbidden, invalidating nothing.
func (s *Service) RevokeSession(ctx context.Context, sessionID, userID uint64) error {
	return s.sessions.Revoke(ctx, sessionID, userID)
}

// VerifyEmail consumes a verification token and flips the account to
// verified. Absent, consumed, and expired tokens are one
// indistinguishable ErrNotFoundOrExpired.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	uid, err := s.tokens.Consume(ctx, model.PurposeVerifyEmail, utils.HashTokenRaw(strings.TrimSpace(token)))
	if err != nil {
		return err
	}
	if err := s.users.MarkVerified(ctx, uid); err != nil {
		return err
	}
	if u, err := s.users.GetByID(ctx, uid); err == nil {
		if err := s.notifier.SendWelcome(ctx, u.Email); err != nil {
			log.Printf("auth: welcome email to %s failed: %v", u.Email, err)
		}
	}
	return nil
}

// ResendVerification mints a fresh verification token for an existing
// unverified account. The response shape is identical whether or not
// the email exists or is already verified, so the endpoint cannot be
// used to probe accounts. Minting invalidates the prior token.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil || u.EmailVerified {
		return nil // success-shaped either way
	}
	s.mintVerification(ctx, u.ID, u.Email)
	return nil
}

// ForgotPassword mints a reset token for the account if it exists.
// It always reports success; email existence must stay unobservable.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil
	}
	reset, err := utils.NewOpaqueToken(s.cfg.ResetTTL)
	if err != nil {
		return err
	}
	if err := s.tokens.Create(ctx, u.ID, model.PurposeResetPassword, utils.HashTokenRaw(reset.Raw), reset.Exp); err != nil {
		return err
	}
	if err := s.notifier.SendPasswordReset(ctx, u.Email, reset.Raw); err != nil {
		log.Printf("auth: reset email to %s failed: %v", u.Email, err)
	}
	return nil
}

// ResetPassword consumes a reset token, installs the new password
// hash, and revokes every session of the user before returning. A
// caller can never observe "password changed" while an old session
// still refreshes.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	uid, err := s.tokens.Consume(ctx, model.PurposeResetPassword, utils.HashTokenRaw(strings.TrimSpace(token)))
	if err != nil {
		return err
	}
	hash, err := utils.HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, uid, hash); err != nil {
		return err
	}
	return s.sessions.RevokeAll(ctx, uid)
}

// User loads a user by id for the /me endpoint and the identity
// consumer contract: downstream features get the id and profile,
// never password or token material.
func (s *Service) User(ctx context.Context, userID uint64) (model.User, error) {
	return s.users.GetByID(ctx, userID)
}

// mintVerification creates a verification token (invalidating any
// prior one) and mails the link. Notifier failure is logged and
// swallowed so the user can always retry via resend.
func (s *Service) mintVerification(ctx context.Context, userID uint64, email string) {
	tok, err := utils.NewOpaqueToken(s.cfg.VerifyTTL)
	if err != nil {
		log.Printf("auth: minting verification token for %s failed: %v", email, err)
		return
	}
	if err := s.tokens.Create(ctx, userID, model.PurposeVerifyEmail, utils.HashTokenRaw(tok.Raw), tok.Exp); err != nil {
		log.Printf("auth: storing verification token for %s failed: %v", email, err)
		return
	}
	if err := s.notifier.SendVerification(ctx, email, tok.Raw); err != nil {
		log.Printf("auth: verification email to %s failed: %v", email, err)
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: valid email required", ErrInvalidInput)
	}
	return email, nil
}
