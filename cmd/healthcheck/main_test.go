package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddr(t *testing.T) {
	tests := []struct {
		raw, want string
	}{
		{"", defaultAddr},
		{"garbage", defaultAddr},
		{"0.0.0.0:9000", "127.0.0.1:9000"},
		{":9000", "127.0.0.1:9000"},
		{"[::]:9000", "[::1]:9000"},
		{"10.0.0.5:8080", "10.0.0.5:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeAddr(tt.raw))
		})
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    int
		wantOut string
	}{
		{"healthy", http.StatusOK, `{"status":"ok","time":"2026-10-19T10:00:00Z"}`, 0, ""},
		{"unavailable", http.StatusServiceUnavailable, ``, 1, "HTTP 503"},
		{"degraded status", http.StatusOK, `{"status":"degraded"}`, 1, `status "degraded"`},
		{"not json", http.StatusOK, `<html>proxy</html>`, 1, "decoding response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/v1/health" {
					http.NotFound(w, r)
					return
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(server.Close)

			var out bytes.Buffer
			got := check(strings.TrimPrefix(server.URL, "http://"), &out)

			assert.Equal(t, tt.want, got)
			if tt.wantOut == "" {
				assert.Empty(t, out.String())
				return
			}
			assert.Contains(t, out.String(), tt.wantOut)
		})
	}
}

func TestCheck_NothingListening(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(server.URL, "http://")
	server.Close()

	var out bytes.Buffer
	assert.Equal(t, 1, check(addr, &out))
	assert.Contains(t, out.String(), "healthcheck:")
}
