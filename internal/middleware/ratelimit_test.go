package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		realIP     string
		remoteAddr string
		want       string
	}{
		{name: "forwarded single", xff: "192.168.1.1", want: "192.168.1.1"},
		{name: "forwarded chain uses first hop", xff: "192.168.1.1, 10.0.0.1, 172.16.0.1", want: "192.168.1.1"},
		{name: "forwarded trimmed", xff: "  192.168.1.1  ,  10.0.0.1  ", want: "192.168.1.1"},
		{name: "real ip", realIP: "  10.0.0.7 ", want: "10.0.0.7"},
		{name: "forwarded wins over real ip", xff: "192.168.1.1", realIP: "10.0.0.1", remoteAddr: "127.0.0.1:1", want: "192.168.1.1"},
		{name: "remote addr without port", remoteAddr: "127.0.0.1:12345", want: "127.0.0.1"},
		{name: "remote addr ipv6", remoteAddr: "[::1]:8080", want: "::1"},
		{name: "remote addr unparseable", remoteAddr: "phone", want: "phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.remoteAddr != "" {
				req.RemoteAddr = tt.remoteAddr
			}
			if got := getIP(req); got != tt.want {
				t.Errorf("getIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

// hit sends one request from addr through h and returns the recorder.
func hit(h http.Handler, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/accounts", nil)
	req.RemoteAddr = addr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var okRateHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimiter_Limit(t *testing.T) {
	h := NewRateLimiter(0.1, 2).Limit(okRateHandler)

	for i := 0; i < 2; i++ {
		if rec := hit(h, "192.168.1.1:1000"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}

	// A new source port is the same client.
	rec := hit(h, "192.168.1.1:2000")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("after burst: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
		t.Errorf("body = %s, want JSON error", rec.Body.String())
	}

	if rec := hit(h, "192.168.1.2:1000"); rec.Code != http.StatusOK {
		t.Errorf("other client: status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRateLimiter_EvictsIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	limiter.getVisitor("192.168.1.1")
	limiter.getVisitor("192.168.1.2")

	if n := limiter.evict(time.Now()); n != 0 {
		t.Errorf("evict(now) = %d, want 0", n)
	}
	if n := limiter.evict(time.Now().Add(time.Hour)); n != 2 {
		t.Errorf("evict(+1h) = %d, want 2", n)
	}
	if len(limiter.visitors) != 0 {
		t.Errorf("visitors = %d, want 0", len(limiter.visitors))
	}
}

func TestStrictLimiter_BlocksAfterThree(t *testing.T) {
	h := NewStrictLimiter().Limit(okRateHandler)

	for i := 0; i < 3; i++ {
		if rec := hit(h, "192.168.1.1:1"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}
	if rec := hit(h, "192.168.1.1:1"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("fourth request: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
}
