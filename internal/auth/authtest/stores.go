// Package authtest provides in-memory implementations of the auth
// store interfaces plus a recording notifier. Service and handler
// tests run against these instead of MySQL; the semantics mirror the
// SQL repositories, in particular the compare-and-swap behavior of
// session rotation and one-time token consumption.
package authtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/menubox/auth-service/internal/auth"
	"github.com/menubox/auth-service/internal/model"
)

// UserStore is an in-memory auth.UserStore.
type UserStore struct {
	mu    sync.Mutex
	seq   uint64
	users map[uint64]*model.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[uint64]*model.User)}
}

func (s *UserStore) Create(ctx context.Context, email, passwordHash string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return 0, auth.ErrEmailExists
		}
	}
	s.seq++
	now := time.Now().UTC()
	s.users[s.seq] = &model.User{
		ID:           s.seq,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return s.seq, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return model.User{}, auth.ErrUnauthorized
}

func (s *UserStore) GetByID(ctx context.Context, id uint64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return *u, nil
	}
	return model.User{}, auth.ErrUnauthorized
}

func (s *UserStore) MarkVerified(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.EmailVerified = true
	}
	return nil
}

func (s *UserStore) UpdatePassword(ctx context.Context, id uint64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

// SessionStore is an in-memory auth.SessionStore. The mutex makes
// Rotate an atomic check-and-swap, matching the SQL UPDATE's
// single-statement guarantee.
type SessionStore struct {
	mu       sync.Mutex
	seq      uint64
	sessions map[uint64]*model.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uint64]*model.Session)}
}

func (s *SessionStore) Create(ctx context.Context, userID uint64, tokenHash, deviceInfo string, expiresAt time.Time) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.sessions[s.seq] = &model.Session{
		ID:               s.seq,
		UserID:           userID,
		RefreshTokenHash: tokenHash,
		DeviceInfo:       deviceInfo,
		ExpiresAt:        expiresAt,
		CreatedAt:        time.Now().UTC(),
	}
	return s.seq, nil
}

func (s *SessionStore) Rotate(ctx context.Context, oldHash, newHash string) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, sess := range s.sessions {
		if sess.RefreshTokenHash == oldHash && sess.Active(now) {
			sess.RefreshTokenHash = newHash
			return *sess, nil
		}
	}
	return model.Session{}, auth.ErrUnauthorized
}

func (s *SessionStore) RevokeByTokenHash(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, sess := range s.sessions {
		if sess.RefreshTokenHash == tokenHash && sess.RevokedAt == nil {
			sess.RevokedAt = &now
		}
	}
	return nil
}

func (s *SessionStore) Revoke(ctx context.Context, sessionID, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.UserID != userID || sess.RevokedAt != nil {
		return auth.ErrForbidden
	}
	now := time.Now().UTC()
	sess.RevokedAt = &now
	return nil
}

func (s *SessionStore) RevokeAll(ctx context.Context, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.RevokedAt == nil {
			sess.RevokedAt = &now
		}
	}
	return nil
}

func (s *SessionStore) ListActive(ctx context.Context, userID uint64) ([]model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var out []model.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Active(now) {
			out = append(out, *sess)
		}
	}
	// Most recent first; ids are monotonic so they break ties between
	// sessions created within the same tick.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// TokenStore is an in-memory auth.OneTimeTokenStore.
type TokenStore struct {
	mu     sync.Mutex
	seq    uint64
	tokens []*model.OneTimeToken
}

func NewTokenStore() *TokenStore { return &TokenStore{} }

func (s *TokenStore) Create(ctx context.Context, userID uint64, purpose, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, t := range s.tokens {
		if t.UserID == userID && t.Purpose == purpose && t.ConsumedAt == nil {
			consumed := now
			t.ConsumedAt = &consumed
		}
	}
	s.seq++
	s.tokens = append(s.tokens, &model.OneTimeToken{
		ID:        s.seq,
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	})
	return nil
}

func (s *TokenStore) Consume(ctx context.Context, purpose, tokenHash string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, t := range s.tokens {
		if t.Purpose == purpose && t.TokenHash == tokenHash {
			if t.ConsumedAt != nil || now.After(t.ExpiresAt) {
				return 0, auth.ErrNotFoundOrExpired
			}
			t.ConsumedAt = &now
			return t.UserID, nil
		}
	}
	return 0, auth.ErrNotFoundOrExpired
}

// Notifier records every send so tests can fish out the raw tokens
// that would have been emailed. Setting Fail makes every send return
// an error while still recording, mimicking a provider outage after
// the token was minted.
type Notifier struct {
	mu            sync.Mutex
	Fail          error
	verifications map[string][]string // email -> raw tokens, oldest first
	resets        map[string][]string
	welcomes      []string
}

func NewNotifier() *Notifier {
	return &Notifier{
		verifications: make(map[string][]string),
		resets:        make(map[string][]string),
	}
}

func (n *Notifier) SendVerification(ctx context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifications[email] = append(n.verifications[email], token)
	return n.Fail
}

func (n *Notifier) SendPasswordReset(ctx context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets[email] = append(n.resets[email], token)
	return n.Fail
}

func (n *Notifier) SendWelcome(ctx context.Context, email string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.welcomes = append(n.welcomes, email)
	return n.Fail
}

// LastVerification returns the most recent verification token sent to
// email, or "" when none was sent.
func (n *Notifier) LastVerification(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	toks := n.verifications[email]
	if len(toks) == 0 {
		return ""
	}
	return toks[len(toks)-1]
}

// Verifications returns every verification token sent to email.
func (n *Notifier) Verifications(email string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.verifications[email]...)
}

// LastReset returns the most recent reset token sent to email.
func (n *Notifier) LastReset(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	toks := n.resets[email]
	if len(toks) == 0 {
		return ""
	}
	return toks[len(toks)-1]
}

// ResetCount reports how many reset emails went to email.
func (n *Notifier) ResetCount(email string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.resets[email])
}

// Welcomes returns the addresses that received a welcome email.
func (n *Notifier) Welcomes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.welcomes...)
}
