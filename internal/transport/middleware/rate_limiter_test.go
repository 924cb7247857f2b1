// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestRateLimiterRefillsOverTime(t *testing.T) {
	limiter := newInMemoryRateLimiter(2)
	now := time.Date(2024, 11, 20, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if d := limiter.Allow("10.0.0.1", now); !d.Allowed {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
	}

	denied := limiter.Allow("10.0.0.1", now)
	if denied.Allowed {
		t.Fatal("expected third request to be denied")
	}
	if denied.RetryAfterSeconds < 30 || denied.RetryAfterSeconds > 31 {
		t.Fatalf("expected retry after about 30s got %d", denied.RetryAfterSeconds)
	}

	if d := limiter.Allow("10.0.0.2", now); !d.Allowed {
		t.Fatal("expected a different client to have its own bucket")
	}

	if d := limiter.Allow("10.0.0.1", now.Add(31*time.Second)); !d.Allowed {
		t.Fatal("expected one token to refill after 31s")
	}
}

func TestRateLimiterPrunesFullBuckets(t *testing.T) {
	limiter := newInMemoryRateLimiter(60)
	now := time.Date(2024, 11, 20, 12, 0, 0, 0, time.UTC)

	for i := 0; i < pruneThreshold; i++ {
		limiter.Allow("client-"+strconv.Itoa(i), now)
	}
	limiter.Allow("late", now.Add(time.Minute))

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if len(limiter.buckets) != 1 {
		t.Fatalf("expected refilled buckets to be pruned, %d left", len(limiter.buckets))
	}
}

func TestRateLimitByClientIP(t *testing.T) {
	handler := RateLimitByClientIP(1, discardLogger())(okHandler())

	req1 := httptest.NewRequest(http.MethodPost, "/demos/rag/sessions", nil)
	req1.RemoteAddr = "192.0.2.10:50123"
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)

	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request status 200 got %d", rec1.Code)
	}
	if got := rec1.Header().Get(headerRateLimitLimit); got != "1" {
		t.Fatalf("expected %s header %q got %q", headerRateLimitLimit, "1", got)
	}
	if got := rec1.Header().Get(headerRateLimitRemaining); got != "0" {
		t.Fatalf("expected %s header %q got %q", headerRateLimitRemaining, "0", got)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/demos/rag/sessions", nil)
	req2.RemoteAddr = "192.0.2.10:50999"
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)

	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request from same IP status 429 got %d", rec2.Code)
	}
	retryAfter := rec2.Header().Get(headerRetryAfter)
	if _, err := strconv.Atoi(retryAfter); err != nil {
		t.Fatalf("expected numeric %s header, got %q", headerRetryAfter, retryAfter)
	}

	req3 := httptest.NewRequest(http.MethodPost, "/demos/rag/sessions", nil)
	req3.RemoteAddr = "198.51.100.7:40000"
	rec3 := httptest.NewRecorder()
	handler.ServeHTTP(rec3, req3)

	if rec3.Code != http.StatusOK {
		t.Fatalf("expected other client status 200 got %d", rec3.Code)
	}
}

func TestRateLimitPanicsWithoutLimiter(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected rateLimitWithLimiter to panic when limiter is nil")
		}
	}()

	rateLimitWithLimiter(nil, nil)
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "not-a-host-port"
	if got := clientIP(req); got != "not-a-host-port" {
		t.Fatalf("expected raw remote addr got %q", got)
	}
}
