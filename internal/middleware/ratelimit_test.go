package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenBucketRefillsEachSecond(t *testing.T) {
	now := time.Unix(100, 0)
	tb := NewTokenBucket(2)
	tb.now = func() time.Time { return now }
	tb.lastSec = now.Unix()
	if !tb.Allow() || !tb.Allow() {
		t.Fatal("first two requests should pass")
	}
	if tb.Allow() {
		t.Fatal("third request in the same second should be rejected")
	}
	now = now.Add(time.Second)
	if !tb.Allow() {
		t.Errorf("bucket should refill on the next second")
	}
}

func TestLimitReturns429(t *testing.T) {
	now := time.Unix(100, 0)
	tb := NewTokenBucket(1)
	tb.now = func() time.Time { return now }
	tb.lastSec = now.Unix()
	h := Limit(tb, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/chat", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/chat", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second = %d, want 429", rec.Code)
	}
}

func TestWrapFromEnvDisabled(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "")
	called := 0
	h := WrapFromEnv(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called++ }))
	for i := 0; i < 20; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/chat", nil))
	}
	if called != 20 {
		t.Errorf("called = %d", called)
	}
}
