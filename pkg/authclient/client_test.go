package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// upstream is a scripted auth service. It accepts exactly one access
// token at a time and rotates refresh tokens on each refresh call;
// counters expose how often each surface was hit.
type upstream struct {
	mu           sync.Mutex
	goodAccess   string
	goodRefresh  string
	refreshDelay time.Duration
	refreshFail  bool

	refreshCalls atomic.Int64
	meCalls      atomic.Int64
	meOKCalls    atomic.Int64
}

func (u *upstream) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.goodAccess = "access-login"
		u.goodRefresh = "refresh-login"
		u.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"user":    map[string]any{"id": 1, "email": "a@x.com", "email_verified": true},
			"access":  map[string]any{"token": "access-login"},
			"refresh": map[string]any{"token": "refresh-login"},
		})
	})
	mux.HandleFunc("POST /v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		n := u.refreshCalls.Add(1)
		time.Sleep(u.refreshDelay)

		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		u.mu.Lock()
		defer u.mu.Unlock()
		if u.refreshFail || body.RefreshToken != u.goodRefresh {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid credentials"})
			return
		}
		// Rotation: the presented value is spent.
		u.goodAccess = "access-" + strconv.FormatInt(n, 10)
		u.goodRefresh = "refresh-" + strconv.FormatInt(n, 10)
		writeJSON(w, http.StatusOK, map[string]any{
			"access":  map[string]any{"token": u.goodAccess},
			"refresh": map[string]any{"token": u.goodRefresh},
		})
	})
	mux.HandleFunc("GET /v1/me", func(w http.ResponseWriter, r *http.Request) {
		u.meCalls.Add(1)
		u.mu.Lock()
		access := u.goodAccess
		u.mu.Unlock()
		if access == "" || r.Header.Get("Authorization") != "Bearer "+access {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid token"})
			return
		}
		u.meOKCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "email": "a@x.com", "email_verified": true})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestPair(t *testing.T, up *upstream) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(up.handler())
	t.Cleanup(srv.Close)
	c := New(srv.URL, WithRefreshTimeout(2*time.Second))
	return c, srv
}

func TestConcurrentExpiryTriggersOneRefresh(t *testing.T) {
	up := &upstream{goodRefresh: "r1", goodAccess: "server-good", refreshDelay: 300 * time.Millisecond}
	c, _ := newTestPair(t, up)
	// The locally stored access token is stale; the refresh token is
	// the live one.
	c.tokens.Set("stale-access", "r1")

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := c.Me(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("caller failed: %v", err)
		}
	}
	if got := up.refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want exactly 1", got)
	}
	// Every caller retried its original request once with the new
	// token: n failed first attempts plus n successful retries.
	if got := up.meOKCalls.Load(); got != n {
		t.Fatalf("successful /v1/me calls = %d, want %d", got, n)
	}
	if got := up.meCalls.Load(); got != 2*n {
		t.Fatalf("total /v1/me calls = %d, want %d", got, 2*n)
	}
}

func TestRefreshFailureReleasesAllAndLogsOut(t *testing.T) {
	up := &upstream{goodRefresh: "r1", goodAccess: "server-good", refreshDelay: 200 * time.Millisecond, refreshFail: true}
	c, _ := newTestPair(t, up)
	c.tokens.Set("stale-access", "r1")

	const n = 5
	var wg sync.WaitGroup
	wg.Add(n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := c.Me(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	// Everyone fails with the refresh error (or the logged-out latch
	// if they arrived after it settled); nobody hangs, nobody loops.
	for err := range errs {
		if err == nil {
			t.Fatal("caller succeeded despite refresh failure")
		}
		var ae *APIError
		if !errors.As(err, &ae) && !errors.Is(err, ErrLoggedOut) {
			t.Fatalf("unexpected error type: %v", err)
		}
	}
	if got := up.refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want exactly 1", got)
	}

	// Terminal state: no further network traffic until a new login.
	before := up.meCalls.Load()
	if _, err := c.Me(context.Background()); !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("post-failure call: want ErrLoggedOut, got %v", err)
	}
	if up.meCalls.Load() != before {
		t.Fatal("logged-out client still sent a request")
	}
	if access, refresh := c.tokens.Get(); access != "" || refresh != "" {
		t.Fatal("token store not cleared after failed refresh")
	}

	// Fresh credentials clear the latch.
	up.mu.Lock()
	up.refreshFail = false
	up.mu.Unlock()
	if _, err := c.Login(context.Background(), "a@x.com", "pw12345678"); err != nil {
		t.Fatalf("login after logout: %v", err)
	}
	if _, err := c.Me(context.Background()); err != nil {
		t.Fatalf("me after re-login: %v", err)
	}
}

func TestRetryExactlyOnceStopsLoops(t *testing.T) {
	// The server rejects every /v1/me call no matter the token, while
	// refresh keeps succeeding. A single request must do one refresh
	// and one retry, then surface the 401 instead of looping.
	var meCalls, refreshCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{
			"access":  map[string]any{"token": "fresh"},
			"refresh": map[string]any{"token": "fresh-r"},
		})
	})
	mux.HandleFunc("GET /v1/me", func(w http.ResponseWriter, r *http.Request) {
		meCalls.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid token"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	c.tokens.Set("a1", "r1")

	_, err := c.Me(context.Background())
	var ae *APIError
	if !errors.As(err, &ae) || ae.Kind != KindUnauthorized {
		t.Fatalf("want Unauthorized APIError, got %v", err)
	}
	if got := meCalls.Load(); got != 2 {
		t.Fatalf("/v1/me calls = %d, want 2 (original + one retry)", got)
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
}

func TestQueuedCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	var refreshCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		<-release
		writeJSON(w, http.StatusOK, map[string]any{
			"access":  map[string]any{"token": "fresh"},
			"refresh": map[string]any{"token": "fresh-r"},
		})
	})
	var good atomic.Value
	good.Store("Bearer never")
	mux.HandleFunc("GET /v1/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != good.Load().(string) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": 1})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, WithRefreshTimeout(5*time.Second))
	c.tokens.Set("stale", "r1")

	// Leader hits the 401 and blocks inside the refresh call.
	leaderDone := make(chan error, 1)
	go func() {
		_, err := c.Me(context.Background())
		leaderDone <- err
	}()

	// Wait until the refresh is actually in flight, then park a second
	// caller with a cancellable context.
	for refreshCalls.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	ctx, cancel := context.WithCancel(context.Background())
	parkedDone := make(chan error, 1)
	go func() {
		_, err := c.Me(ctx)
		parkedDone <- err
	}()
	time.Sleep(50 * time.Millisecond) // let it park
	cancel()

	select {
	case err := <-parkedDone:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("parked caller: want context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return while refresh was in flight")
	}

	// The in-flight refresh is undisturbed; let it finish and the
	// leader completes normally.
	good.Store("Bearer fresh")
	close(release)
	select {
	case err := <-leaderDone:
		if err != nil {
			t.Fatalf("leader failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("leader did not complete after refresh released")
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
}

func TestRefreshTimeoutFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second) // longer than the client's refresh budget
		writeJSON(w, http.StatusOK, map[string]any{
			"access":  map[string]any{"token": "late"},
			"refresh": map[string]any{"token": "late-r"},
		})
	})
	mux.HandleFunc("GET /v1/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid token"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, WithRefreshTimeout(100*time.Millisecond))
	c.tokens.Set("stale", "r1")

	start := time.Now()
	_, err := c.Me(context.Background())
	if err == nil {
		t.Fatal("want timeout error, got success")
	}
	if elapsed := time.Since(start); elapsed > 900*time.Millisecond {
		t.Fatalf("refresh timeout not enforced, took %s", elapsed)
	}
	// Timeout settles the cycle as failure: terminal logged-out.
	if _, err := c.Me(context.Background()); !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("after timeout: want ErrLoggedOut, got %v", err)
	}
}

func TestUnverifiedReasonDecoding(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":  "email not verified",
			"reason": "email_not_verified",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Login(context.Background(), "a@x.com", "pw12345678")
	if !IsUnverified(err) {
		t.Fatalf("IsUnverified = false for %v", err)
	}
}
