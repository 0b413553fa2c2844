package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lending/internal/logging"
)

func TestRateLimiterPerUser(t *testing.T) {
	limiter := NewRateLimiter(1, 2, logging.Discard())
	fixed := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return fixed }
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/borrow", nil)
		req = req.WithContext(WithUserID(req.Context(), user))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("alice"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := send("alice"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", code)
	}
	if code := send("bob"); code != http.StatusOK {
		t.Fatalf("other user: expected 200, got %d", code)
	}

	fixed = fixed.Add(time.Second)
	if code := send("alice"); code != http.StatusOK {
		t.Fatalf("after refill: expected 200, got %d", code)
	}
}

func TestCallerKeyFallsBackToAddress(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	if key := callerKey(req); key != "ip:10.0.0.7" {
		t.Fatalf("unexpected key %s", key)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if key := callerKey(req); key != "ip:203.0.113.9" {
		t.Fatalf("unexpected key %s", key)
	}
}
