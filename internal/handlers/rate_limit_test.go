package handlers

import (
	"fmt"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, perSecond float64, burst int, trusted []string) *ClientLimiter {
	t.Helper()
	l, err := NewClientLimiter(perSecond, burst, trusted)
	if err != nil {
		t.Fatalf("NewClientLimiter failed: %v", err)
	}
	t.Cleanup(l.Stop)
	return l
}

func TestClientLimiter(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		l := newTestLimiter(t, 0, 5, nil)
		if l != nil {
			t.Fatal("Expected nil limiter for zero rate")
		}
		req := httptest.NewRequest("GET", "/", nil)
		for i := 0; i < 100; i++ {
			if !l.Allow(req) {
				t.Fatal("nil limiter should allow every request")
			}
		}
	})

	t.Run("per client burst", func(t *testing.T) {
		l := newTestLimiter(t, 0.001, 2, nil)

		a := httptest.NewRequest("GET", "/", nil)
		a.RemoteAddr = "10.0.0.1:5555"
		b := httptest.NewRequest("GET", "/", nil)
		b.RemoteAddr = "10.0.0.2:5555"

		if !l.Allow(a) || !l.Allow(a) {
			t.Fatal("Expected burst of 2 to be allowed")
		}
		if l.Allow(a) {
			t.Error("Expected third request to be limited")
		}
		if !l.Allow(b) {
			t.Error("Other clients should have their own budget")
		}
	})

	t.Run("forwarded header from untrusted peer ignored", func(t *testing.T) {
		l := newTestLimiter(t, 1, 1, nil)

		allowed := 0
		for i := 0; i < 1000; i++ {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = "198.51.100.9:4000"
			req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i%250))
			if l.Allow(req) {
				allowed++
			}
		}

		if allowed != 1 {
			t.Errorf("allowed %d requests from one socket, want 1", allowed)
		}
		if l.Len() != 1 {
			t.Errorf("Len = %d, want 1", l.Len())
		}
	})

	t.Run("invalid trusted proxy", func(t *testing.T) {
		if _, err := NewClientLimiter(1, 1, []string{"not-an-ip"}); err == nil {
			t.Error("expected error for invalid proxy")
		}
	})
}

func TestClientLimiter_Cleanup(t *testing.T) {
	l := newTestLimiter(t, 1, 1, nil)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = addr
		l.Allow(req)
	}

	now = now.Add(minClientIdle / 2)
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.2:1"
	l.Allow(req)

	now = now.Add(minClientIdle / 2)
	l.cleanup()

	if l.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after evicting the idle client", l.Len())
	}
	if _, ok := l.clients["10.0.0.2"]; !ok {
		t.Error("recently seen client should be kept")
	}
}

func TestClientIP(t *testing.T) {
	l := newTestLimiter(t, 1, 1, []string{"10.0.0.1", "172.16.0.0/12"})

	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"remote addr", "192.168.1.5:1234", "", "192.168.1.5"},
		{"untrusted peer keeps remote addr", "192.168.1.5:1234", "203.0.113.7", "192.168.1.5"},
		{"trusted proxy", "10.0.0.1:80", "203.0.113.7", "203.0.113.7"},
		{"trusted chain skips proxies", "10.0.0.1:80", "198.51.100.1, 203.0.113.7, 172.16.4.4", "203.0.113.7"},
		{"trusted proxy without header", "10.0.0.1:80", "", "10.0.0.1"},
		{"all hops trusted", "10.0.0.1:80", "172.16.0.9", "172.16.0.9"},
		{"no port", "192.168.1.5", "", "192.168.1.5"},
		{"ipv6", "[::1]:8080", "", "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := l.clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
