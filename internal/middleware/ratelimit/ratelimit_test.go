package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *fakeClock) {
	t.Helper()
	rl := NewLimiter(Config{RequestsPerMinute: perMinute, CleanupInterval: time.Hour})
	t.Cleanup(rl.Stop)
	clock := &fakeClock{t: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}
	rl.now = clock.now
	return rl, clock
}

func TestAllowWindow(t *testing.T) {
	rl, clock := newTestLimiter(t, 2)

	if !rl.Allow("u1") || !rl.Allow("u1") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("u1") {
		t.Fatal("third request inside the window should be limited")
	}
	if !rl.Allow("u2") {
		t.Fatal("other keys have their own bucket")
	}

	clock.t = clock.t.Add(time.Minute)
	if !rl.Allow("u1") {
		t.Fatal("new window should reset the count")
	}
}

func TestCleanupStaleEntries(t *testing.T) {
	rl, clock := newTestLimiter(t, 5)
	if rl.cfg.IdleTTL != 10*time.Minute {
		t.Fatalf("default idle TTL = %v", rl.cfg.IdleTTL)
	}
	rl.Allow("old")
	clock.t = clock.t.Add(11 * time.Minute)
	rl.Allow("fresh")

	if removed := rl.cleanupStaleEntries(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if rl.ActiveClients() != 1 {
		t.Errorf("ActiveClients = %d, want 1", rl.ActiveClients())
	}
}

func TestMiddlewareOnlyLimitsUnsafeMethods(t *testing.T) {
	rl, clock := newTestLimiter(t, 1)
	h := rl.Middleware(func(*http.Request) string { return "same" }, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Each request is five seconds after the previous one; the window opens
	// at the first POST.
	tests := []struct {
		method string
		want   int
		retry  string
	}{
		{http.MethodGet, http.StatusOK, ""},
		{http.MethodPost, http.StatusOK, ""},
		{http.MethodGet, http.StatusOK, ""},
		{http.MethodPost, http.StatusTooManyRequests, "50"},
		{http.MethodDelete, http.StatusTooManyRequests, "45"},
	}
	for i, tt := range tests {
		clock.t = clock.t.Add(5 * time.Second)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/expenses", nil))
		if rec.Code != tt.want {
			t.Errorf("request %d %s: status %d, want %d", i, tt.method, rec.Code, tt.want)
		}
		if rec.Code == http.StatusTooManyRequests && rec.Header().Get("Retry-After") != tt.retry {
			t.Errorf("request %d: Retry-After = %q, want %q", i, rec.Header().Get("Retry-After"), tt.retry)
		}
	}
}
