package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLimiterGlobal(t *testing.T) {
	l := NewLimiter(3, 0)
	allowed := 0
	for i := 0; i < 10; i++ {
		if l.Allow("1.1.1.1") {
			allowed++
		}
	}
	if allowed != 3 {
		t.Fatalf("allowed %d requests, want burst of 3", allowed)
	}
}

func TestLimiterPerVisitor(t *testing.T) {
	l := NewLimiter(0, 2)
	for i := 0; i < 2; i++ {
		if !l.Allow("1.1.1.1") {
			t.Fatalf("request %d from first visitor rejected", i)
		}
	}
	if l.Allow("1.1.1.1") {
		t.Fatal("first visitor exceeded its burst")
	}
	if !l.Allow("2.2.2.2") {
		t.Fatal("second visitor limited by first visitor's budget")
	}
}

func TestMiddleware(t *testing.T) {
	h := NewLimiter(1, 0).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	codes := []int{}
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/ipcat", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}

func TestWrapDisabled(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "")
	next := http.NotFoundHandler()
	if h := Wrap(next); h == nil {
		t.Fatal("Wrap returned nil")
	}
}
