package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/menubox/auth-service/internal/auth"
	"github.com/menubox/auth-service/internal/auth/authtest"
	"github.com/menubox/auth-service/internal/utils"
)

func testConfig() auth.Config {
	return auth.Config{
		JWTSecret:      "test-secret",
		AccessTTLMin:   15,
		RefreshTTLDays: 30,
		VerifyTTL:      24 * time.Hour,
		ResetTTL:       time.Hour,
		BcryptCost:     4, // bcrypt.MinCost; keep the suite fast
	}
}

type fixture struct {
	svc      *auth.Service
	users    *authtest.UserStore
	sessions *authtest.SessionStore
	tokens   *authtest.TokenStore
	notifier *authtest.Notifier
}

func newFixture(cfg auth.Config) *fixture {
	f := &fixture{
		users:    authtest.NewUserStore(),
		sessions: authtest.NewSessionStore(),
		tokens:   authtest.NewTokenStore(),
		notifier: authtest.NewNotifier(),
	}
	f.svc = auth.NewService(cfg, f.users, f.sessions, f.tokens, f.notifier)
	return f
}

// registerVerified registers and verifies a user in one step for
// tests that start past the verification gate.
func (f *fixture) registerVerified(t *testing.T, email, password string) {
	t.Helper()
	ctx := context.Background()
	if err := f.svc.Register(ctx, email, password); err != nil {
		t.Fatalf("register: %v", err)
	}
	tok := f.notifier.LastVerification(email)
	if tok == "" {
		t.Fatalf("no verification token sent to %s", email)
	}
	if err := f.svc.VerifyEmail(ctx, tok); err != nil {
		t.Fatalf("verify email: %v", err)
	}
}

func TestVerificationGateThenLogin(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()

	if err := f.svc.Register(ctx, "a@x.com", "pw12345678"); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Correct credentials are blocked until the email is verified.
	if _, _, err := f.svc.Login(ctx, "a@x.com", "pw12345678", "test-device"); !errors.Is(err, auth.ErrUnverified) {
		t.Fatalf("login before verification: want ErrUnverified, got %v", err)
	}

	tok := f.notifier.LastVerification("a@x.com")
	if tok == "" {
		t.Fatal("no verification token sent")
	}
	if err := f.svc.VerifyEmail(ctx, tok); err != nil {
		t.Fatalf("verify email: %v", err)
	}

	u, pair, err := f.svc.Login(ctx, "a@x.com", "pw12345678", "test-device")
	if err != nil {
		t.Fatalf("login after verification: %v", err)
	}
	if pair.Access.Token == "" || pair.Refresh.Raw == "" {
		t.Fatal("login returned empty token pair")
	}
	claims, err := utils.ParseAccessToken("test-secret", pair.Access.Token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != u.ID {
		t.Fatalf("access token sub = %d, want %d", claims.UserID, u.ID)
	}
	if welcomes := f.notifier.Welcomes(); len(welcomes) != 1 || welcomes[0] != "a@x.com" {
		t.Fatalf("welcome emails = %v, want [a@x.com]", welcomes)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()

	if err := f.svc.Register(ctx, "dup@x.com", "pw12345678"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := f.svc.Register(ctx, "DUP@x.com", "pw12345678"); !errors.Is(err, auth.ErrEmailExists) {
		t.Fatalf("duplicate register: want ErrEmailExists, got %v", err)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()

	if err := f.svc.Register(ctx, "not-an-email", "pw12345678"); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("bad email: want ErrInvalidInput, got %v", err)
	}
	if err := f.svc.Register(ctx, "ok@x.com", "short"); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("short password: want ErrInvalidInput, got %v", err)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()
	f.registerVerified(t, "a@x.com", "pw12345678")

	// Unknown email and wrong password are the same error.
	if _, _, err := f.svc.Login(ctx, "ghost@x.com", "pw12345678", "d"); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("unknown email: want ErrUnauthorized, got %v", err)
	}
	if _, _, err := f.svc.Login(ctx, "a@x.com", "wrongpassword", "d"); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("wrong password: want ErrUnauthorized, got %v", err)
	}
}

func TestRefreshRotationIdempotentOnce(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()
	f.registerVerified(t, "a@x.com", "pw12345678")

	_, pair, err := f.svc.Login(ctx, "a@x.com", "pw12345678", "d")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	r1 := pair.Refresh.Raw

	next, err := f.svc.Refresh(ctx, r1)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	r2 := next.Refresh.Raw
	if r2 == r1 {
		t.Fatal("rotation returned the same refresh token")
	}

	// The spent value must never succeed again.
	if _, err := f.svc.Refresh(ctx, r1); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("replayed refresh: want ErrUnauthorized, got %v", err)
	}
	// The replacement still works.
	if _, err := f.svc.Refresh(ctx, r2); err != nil {
		t.Fatalf("rotated refresh: %v", err)
	}
}

func TestRefreshKeepsSessionIdentity(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()
	f.registerVerified(t, "a@x.com", "pw12345678")

	_, pair, err := f.svc.Login(ctx, "a@x.com", "pw12345678", "d")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	before, _ := utils.ParseAccessToken("test-secret", pair.Access.Token)

	next, err := f.svc.Refresh(ctx, pair.Refresh.Raw)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	after, _ := utils.ParseAccessToken("test-secret", next.Access.Token)
	if after.SessionID != before.SessionID {
		t.Fatalf("rotation changed session id: %d -> %d", before.SessionID, after.SessionID)
	}

	sessions, err := f.svc.ListSessions(ctx, before.UserID)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("rotation must not add sessions; have %d", len(sessions))
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()
	f.registerVerified(t, "a@x.com", "pw12345678")

	_, pair, err := f.svc.Login(ctx, "a@x.com", "pw12345678", "d")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := f.svc.Refresh(ctx, pair.Refresh.Raw)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success, fail := 0, 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, auth.ErrUnauthorized):
			fail++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one refresh winner, got %d", success)
	}
	if fail != n-1 {
		t.Fatalf("expected %d losers, got %d", n-1, fail)
	}
}

func TestRevokeSessionImmediate(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()
	f.registerVerified(t, "a@x.com", "pw12345678")

	u, pair, err := f.svc.Login(ctx, "a@x.com", "pw12345678", "phone")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, _ := utils.ParseAccessToken("test-secret", pair.Access.Token)

	if err := f.svc.RevokeSession(ctx, claims.SessionID, u.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	// Immediately rejected, long before expires_at.
	if _, err := f.svc.Refresh(ctx, pair.Refresh.Raw); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("refresh after revoke: want ErrUnauthorized, got %v", err)
	}
}

func TestRevokeSessionForeignOwner(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()
	f.registerVerified(t, "a@x.com", "pw12345678")
	f.registerVerified(t, "b@x.com", "pw12345678")

	_, pairA, err := f.svc.Login(ctx, "a@x.com", "pw12345678", "d")
	if err != nil {
		t.Fatalf("login a: %v", err)
	}
	uB, _, err := f.svc.Login(ctx, "b@x.com", "pw12345678", "d")
	if err != nil {
		t.Fatalf("login b: %v", err)
	}

	claimsA, _ := utils.ParseAccessToken("test-secret", pairA.Access.Token)
	if err := f.svc.RevokeSession(ctx, claimsA.SessionID, uB.ID); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("foreign revoke: want ErrForbidden, got %v", err)
	}
	// A's session is untouched.
	if _, err := f.svc.Refresh(ctx, pairA.Refresh.Raw); err != nil {
		t.Fatalf("refresh after failed foreign revoke: %v", err)
	}
}

func TestListSessionsMostRecentFirst(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()
	f.registerVerified(t, "a@x.com", "pw12345678")

	u, _, err := f.svc.Login(ctx, "a@x.com", "pw12345678", "laptop")
	if err != nil {
		t.Fatalf("login 1: %v", err)
	}
	if _, _, err := f.svc.Login(ctx, "a@x.com", "pw12345678", "phone"); err != nil {
		t.Fatalf("login 2: %v", err)
	}

	sessions, err := f.svc.ListSessions(ctx, u.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	if sessions[0].DeviceInfo != "phone" || sessions[1].DeviceInfo != "laptop" {
		t.Fatalf("not most-recent-first: %q, %q", sessions[0].DeviceInfo, sessions[1].DeviceInfo)
	}
}

func TestExpiredSessionRefreshFails(t *testing.T) {
	cfg := testConfig()
	cfg.RefreshTTLDays = 0 // sessions expire the instant they are born
	f := newFixture(cfg)
	ctx := context.Background()
	f.registerVerified(t, "a@x.com", "pw12345678")

	_, pair, err := f.svc.Login(ctx, "a@x.com", "pw12345678", "d")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, pair.Refresh.Raw); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("expired refresh: want ErrUnauthorized, got %v", err)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()
	f.registerVerified(t, "a@x.com", "pw12345678")

	_, pair, err := f.svc.Login(ctx, "a@x.com", "pw12345678", "d")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := f.svc.Logout(ctx, pair.Refresh.Raw); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := f.svc.Logout(ctx, pair.Refresh.Raw); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, pair.Refresh.Raw); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("refresh after logout: want ErrUnauthorized, got %v", err)
	}
}

func TestResetPasswordRevokesAllSessions(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()
	f.registerVerified(t, "a@x.com", "pw12345678")

	_, pair1, err := f.svc.Login(ctx, "a@x.com", "pw12345678", "laptop")
	if err != nil {
		t.Fatalf("login 1: %v", err)
	}
	_, pair2, err := f.svc.Login(ctx, "a@x.com", "pw12345678", "phone")
	if err != nil {
		t.Fatalf("login 2: %v", err)
	}

	if err := f.svc.ForgotPassword(ctx, "a@x.com"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	reset := f.notifier.LastReset("a@x.com")
	if reset == "" {
		t.Fatal("no reset token sent")
	}
	if err := f.svc.ResetPassword(ctx, reset, "newpw12345678"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	// Every pre-reset session is dead the moment reset returns.
	if _, err := f.svc.Refresh(ctx, pair1.Refresh.Raw); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("session 1 after reset: want ErrUnauthorized, got %v", err)
	}
	if _, err := f.svc.Refresh(ctx, pair2.Refresh.Raw); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("session 2 after reset: want ErrUnauthorized, got %v", err)
	}

	// Old password is gone, new one works.
	if _, _, err := f.svc.Login(ctx, "a@x.com", "pw12345678", "d"); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("old password after reset: want ErrUnauthorized, got %v", err)
	}
	if _, _, err := f.svc.Login(ctx, "a@x.com", "newpw12345678", "d"); err != nil {
		t.Fatalf("new password after reset: %v", err)
	}

	// The reset token was consumed; replaying it fails.
	if err := f.svc.ResetPassword(ctx, reset, "anotherpw123"); !errors.Is(err, auth.ErrNotFoundOrExpired) {
		t.Fatalf("replayed reset token: want ErrNotFoundOrExpired, got %v", err)
	}
}

func TestForgotPasswordEnumerationSafe(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()
	f.registerVerified(t, "real@x.com", "pw12345678")

	// Identical outcome for ghost and real addresses.
	if err := f.svc.ForgotPassword(ctx, "ghost@x.com"); err != nil {
		t.Fatalf("forgot ghost: %v", err)
	}
	if err := f.svc.ForgotPassword(ctx, "real@x.com"); err != nil {
		t.Fatalf("forgot real: %v", err)
	}
	if n := f.notifier.ResetCount("ghost@x.com"); n != 0 {
		t.Fatalf("ghost got %d reset emails", n)
	}
	if n := f.notifier.ResetCount("real@x.com"); n != 1 {
		t.Fatalf("real got %d reset emails, want 1", n)
	}
}

func TestForgotPasswordInvalidatesPriorResetToken(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()
	f.registerVerified(t, "a@x.com", "pw12345678")

	if err := f.svc.ForgotPassword(ctx, "a@x.com"); err != nil {
		t.Fatalf("forgot 1: %v", err)
	}
	first := f.notifier.LastReset("a@x.com")
	if err := f.svc.ForgotPassword(ctx, "a@x.com"); err != nil {
		t.Fatalf("forgot 2: %v", err)
	}
	second := f.notifier.LastReset("a@x.com")

	if err := f.svc.ResetPassword(ctx, first, "newpw12345678"); !errors.Is(err, auth.ErrNotFoundOrExpired) {
		t.Fatalf("superseded reset token: want ErrNotFoundOrExpired, got %v", err)
	}
	if err := f.svc.ResetPassword(ctx, second, "newpw12345678"); err != nil {
		t.Fatalf("current reset token: %v", err)
	}
}

func TestResendInvalidatesPriorVerificationToken(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()

	if err := f.svc.Register(ctx, "a@x.com", "pw12345678"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.svc.ResendVerification(ctx, "a@x.com"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	toks := f.notifier.Verifications("a@x.com")
	if len(toks) != 2 {
		t.Fatalf("verification emails = %d, want 2", len(toks))
	}

	if err := f.svc.VerifyEmail(ctx, toks[0]); !errors.Is(err, auth.ErrNotFoundOrExpired) {
		t.Fatalf("superseded verification token: want ErrNotFoundOrExpired, got %v", err)
	}
	if err := f.svc.VerifyEmail(ctx, toks[1]); err != nil {
		t.Fatalf("current verification token: %v", err)
	}
}

func TestResendForVerifiedOrUnknownIsSilent(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()
	f.registerVerified(t, "done@x.com", "pw12345678")

	if err := f.svc.ResendVerification(ctx, "ghost@x.com"); err != nil {
		t.Fatalf("resend ghost: %v", err)
	}
	before := len(f.notifier.Verifications("done@x.com"))
	if err := f.svc.ResendVerification(ctx, "done@x.com"); err != nil {
		t.Fatalf("resend verified: %v", err)
	}
	if after := len(f.notifier.Verifications("done@x.com")); after != before {
		t.Fatalf("verified account got another verification email")
	}
}

func TestExpiredVerificationToken(t *testing.T) {
	cfg := testConfig()
	cfg.VerifyTTL = -time.Minute // minted already expired
	f := newFixture(cfg)
	ctx := context.Background()

	if err := f.svc.Register(ctx, "a@x.com", "pw12345678"); err != nil {
		t.Fatalf("register: %v", err)
	}
	tok := f.notifier.LastVerification("a@x.com")
	if err := f.svc.VerifyEmail(ctx, tok); !errors.Is(err, auth.ErrNotFoundOrExpired) {
		t.Fatalf("expired verification token: want ErrNotFoundOrExpired, got %v", err)
	}
}

func TestNotifierFailureDoesNotBlockIssuance(t *testing.T) {
	f := newFixture(testConfig())
	f.notifier.Fail = errors.New("smtp down")
	ctx := context.Background()

	// Registration succeeds despite the delivery failure...
	if err := f.svc.Register(ctx, "a@x.com", "pw12345678"); err != nil {
		t.Fatalf("register with failing notifier: %v", err)
	}
	// ...and the minted token is still usable once it reaches the user.
	tok := f.notifier.LastVerification("a@x.com")
	if tok == "" {
		t.Fatal("token was not minted")
	}
	if err := f.svc.VerifyEmail(ctx, tok); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestLogoutAll(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()
	f.registerVerified(t, "a@x.com", "pw12345678")

	u, pair1, err := f.svc.Login(ctx, "a@x.com", "pw12345678", "laptop")
	if err != nil {
		t.Fatalf("login 1: %v", err)
	}
	_, pair2, err := f.svc.Login(ctx, "a@x.com", "pw12345678", "phone")
	if err != nil {
		t.Fatalf("login 2: %v", err)
	}

	if err := f.svc.LogoutAll(ctx, u.ID); err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, pair1.Refresh.Raw); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("session 1 after logout-all: want ErrUnauthorized, got %v", err)
	}
	if _, err := f.svc.Refresh(ctx, pair2.Refresh.Raw); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("session 2 after logout-all: want ErrUnauthorized, got %v", err)
	}
	sessions, err := f.svc.ListSessions(ctx, u.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("sessions after logout-all = %d, want 0", len(sessions))
	}
}
