package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
)

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	cfg := RateLimitConfig{
		RequestsPerSecond: 10,
		BurstSize:         5,
	}

	e := echo.New()
	handler := RateLimit(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	// Burst of 5 passes.
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, got)
		}
	}
}

func TestRateLimit_RemainingOnAllowedRequests(t *testing.T) {
	e := echo.New()
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 3})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for i, want := range []string{"2", "1", "0"} {
		rec := httptest.NewRecorder()
		if err := handler(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != want {
			t.Errorf("request %d: X-RateLimit-Remaining = %q, want %q", i+1, got, want)
		}
		if rec.Header().Get("Retry-After") != "" {
			t.Errorf("request %d: Retry-After set on an allowed request", i+1)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	cfg := RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         2,
	}

	e := echo.New()
	handler := RateLimit(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 2; i++ {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
	}

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	err := handler(c)
	if err == nil {
		t.Fatal("expected error for rate-limited request")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", httpErr.Code)
	}
}

func TestRateLimit_RetryAfterHeader(t *testing.T) {
	cfg := RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         1,
	}

	e := echo.New()
	handler := RateLimit(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	_ = handler(c)

	rec := httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := handler(c); err == nil {
		t.Fatal("expected error for rate-limited request")
	}

	retryAfter := rec.Header().Get("Retry-After")
	retryVal, parseErr := strconv.Atoi(retryAfter)
	if parseErr != nil {
		t.Fatalf("Retry-After header is not a valid integer: %q", retryAfter)
	}
	if retryVal < 1 {
		t.Errorf("expected Retry-After >= 1, got %d", retryVal)
	}
	if remaining := rec.Header().Get("X-RateLimit-Remaining"); remaining != "0" {
		t.Errorf("expected X-RateLimit-Remaining '0', got %q", remaining)
	}
}

func TestRateLimit_PerUserIsolation(t *testing.T) {
	cfg := RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         1,
	}

	e := echo.New()
	handler := RateLimit(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	asUser := func(id string) echo.Context {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(auth.WithUser(req.Context(), id, []string{auth.RoleStaff}))
		return e.NewContext(req, httptest.NewRecorder())
	}

	if err := handler(asUser("desk-a")); err != nil {
		t.Fatalf("desk-a first request: expected no error, got %v", err)
	}
	if err := handler(asUser("desk-a")); err == nil {
		t.Fatal("desk-a second request: expected rate limit error")
	}
	if err := handler(asUser("desk-b")); err != nil {
		t.Fatalf("desk-b first request: expected no error, got %v", err)
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 100 {
		t.Errorf("expected RequestsPerSecond 100, got %f", cfg.RequestsPerSecond)
	}
	if cfg.BurstSize != 200 {
		t.Errorf("expected BurstSize 200, got %d", cfg.BurstSize)
	}
}

func TestLimiterStore_ZeroRate(t *testing.T) {
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 0, BurstSize: 1})
	now := time.Now()

	if ok, _, _ := store.take("k", now); !ok {
		t.Fatal("expected the burst token to be available")
	}
	ok, _, retry := store.take("k", now)
	if ok {
		t.Fatal("expected zero rate to refuse once the burst is spent")
	}
	if retry != 1 {
		t.Errorf("expected retryAfter 1 for zero rate, got %d", retry)
	}
}

func TestLimiterStore_RemainingCountsDown(t *testing.T) {
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 3})
	now := time.Now()

	for _, want := range []int{2, 1, 0} {
		ok, remaining, _ := store.take("k", now)
		if !ok || remaining != want {
			t.Fatalf("take = %v, remaining %d; want true, %d", ok, remaining, want)
		}
	}
	ok, remaining, retry := store.take("k", now)
	if ok || remaining != 0 || retry != 1 {
		t.Errorf("refused take = %v, remaining %d, retry %d", ok, remaining, retry)
	}
	if _, remaining, _ := store.take("k", now.Add(2500*time.Millisecond)); remaining != 1 {
		t.Errorf("after 2.5s remaining = %d, want 1", remaining)
	}
}

func TestLimiterStore_SameKeySameLimiter(t *testing.T) {
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	l1 := store.get("key1")
	if l1 == nil {
		t.Fatal("expected non-nil limiter")
	}
	if l2 := store.get("key1"); l1 != l2 {
		t.Error("expected same limiter instance for same key")
	}
	if l3 := store.get("key2"); l1 == l3 {
		t.Error("expected different limiter for different key")
	}
}

func TestLimiterStore_RefusalDoesNotConsume(t *testing.T) {
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})
	now := time.Now()

	store.take("k", now)
	for i := 0; i < 3; i++ {
		if ok, _, _ := store.take("k", now); ok {
			t.Fatal("expected refusal")
		}
	}
	if ok, _, _ := store.take("k", now.Add(1100*time.Millisecond)); !ok {
		t.Error("expected a token after one second despite earlier refusals")
	}
}
