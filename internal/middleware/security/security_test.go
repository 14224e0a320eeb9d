package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	d, err := NewDetector("203.0.113.0/24")
	require.NoError(t, err)

	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct", "198.51.100.7:4321", "", "", "198.51.100.7"},
		{"untrusted peer ignores headers", "198.51.100.7:4321", "1.1.1.1", "", "198.51.100.7"},
		{"trusted proxy uses first forwarded", "10.0.0.2:80", "1.1.1.1, 10.0.0.2", "", "1.1.1.1"},
		{"extra trusted proxy", "203.0.113.9:80", "8.8.8.8", "", "8.8.8.8"},
		{"real ip fallback", "127.0.0.1:80", "garbage", "9.9.9.9", "9.9.9.9"},
		{"unparseable forwarded", "127.0.0.1:80", "garbage", "", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, d.ClientIP(r))
		})
	}
}

func TestNewDetectorRejectsBadCIDR(t *testing.T) {
	_, err := NewDetector("not-a-cidr")
	assert.Error(t, err)
}

func TestIsSuspicious(t *testing.T) {
	d, err := NewDetector()
	require.NoError(t, err)

	clean := httptest.NewRequest(http.MethodGet, "/api/rankings", nil)
	assert.False(t, d.IsSuspicious(clean))

	scan := httptest.NewRequest(http.MethodGet, "/.env", nil)
	assert.True(t, d.IsSuspicious(scan))

	scanner := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	scanner.Header.Set("User-Agent", "sqlmap/1.7")
	assert.True(t, d.IsSuspicious(scanner))

	trace := httptest.NewRequest("TRACE", "/", nil)
	assert.True(t, d.IsSuspicious(trace))

	assert.Equal(t, int64(3), d.SuspiciousCount())
}

func TestHeaders(t *testing.T) {
	h := Headers(DefaultHeadersConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"), "plain HTTP")

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "https://example.com/", nil)
	h.ServeHTTP(rec, req)
	assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
}
