package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

type fakeRateLimitStore struct {
	allowed    bool
	retryAfter time.Duration
	err        error

	keys   []string
	limits []int
}

func (f *fakeRateLimitStore) Allow(_ context.Context, identifier string, limit int, _ time.Duration, _ time.Time) (bool, time.Duration, error) {
	f.keys = append(f.keys, identifier)
	f.limits = append(f.limits, limit)
	return f.allowed, f.retryAfter, f.err
}

func newRateLimitedRouter(t *testing.T, store *fakeRateLimitStore, rule RateLimitRule) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(store, zaptest.NewLogger(t))

	router := gin.New()
	router.Use(limiter.RateLimit(rule))
	router.GET("/", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func staticIdentifier(id string) IdentifierFunc {
	return func(*gin.Context) (string, bool) {
		return id, true
	}
}

func TestRateLimiterAllowsWhenBelowLimit(t *testing.T) {
	store := &fakeRateLimitStore{allowed: true}
	router := newRateLimitedRouter(t, store, RateLimitRule{
		Name:       "login",
		Limit:      5,
		Window:     time.Minute,
		Identifier: staticIdentifier("192.0.2.1"),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(store.keys) != 1 || store.keys[0] != "login:192.0.2.1" {
		t.Fatalf("expected scoped key login:192.0.2.1, got %v", store.keys)
	}
	if store.limits[0] != 5 {
		t.Fatalf("expected limit 5, got %d", store.limits[0])
	}
}

func TestRateLimiterBlocksWhenLimitExceeded(t *testing.T) {
	store := &fakeRateLimitStore{allowed: false, retryAfter: 42 * time.Second}
	router := newRateLimitedRouter(t, store, RateLimitRule{
		Name:       "login",
		Limit:      5,
		Window:     time.Minute,
		Identifier: staticIdentifier("192.0.2.1"),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "42" {
		t.Fatalf("expected Retry-After 42, got %q", got)
	}

	var problem ProblemDetails
	if err := json.Unmarshal(rr.Body.Bytes(), &problem); err != nil {
		t.Fatalf("decode problem details: %v", err)
	}
	if problem.Status != http.StatusTooManyRequests {
		t.Fatalf("expected problem status 429, got %d", problem.Status)
	}
	if problem.RetryAfter != 42 {
		t.Fatalf("expected retry_after 42, got %d", problem.RetryAfter)
	}
	if problem.Title != "Rate Limit Exceeded" {
		t.Fatalf("unexpected problem title %q", problem.Title)
	}
}

func TestRateLimiterDegradesOpenOnStoreError(t *testing.T) {
	store := &fakeRateLimitStore{err: errors.New("redis down")}
	router := newRateLimitedRouter(t, store, RateLimitRule{
		Name:       "login",
		Limit:      5,
		Window:     time.Minute,
		Identifier: staticIdentifier("192.0.2.1"),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected degraded-open 200, got %d", rr.Code)
	}
}

func TestRateLimiterSkipsWithoutIdentifier(t *testing.T) {
	store := &fakeRateLimitStore{allowed: false}
	router := newRateLimitedRouter(t, store, RateLimitRule{
		Name:   "login",
		Limit:  5,
		Window: time.Minute,
		Identifier: func(*gin.Context) (string, bool) {
			return "", false
		},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(store.keys) != 0 {
		t.Fatalf("expected store untouched, got keys %v", store.keys)
	}
}
