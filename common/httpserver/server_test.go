// common/httpserver/server_test.go

package httpserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/YaganovValera/detector-stream/common/logger"
)

func TestNew_RequiresAddr(t *testing.T) {
	if _, err := New(Config{}, nil, logger.NewNop()); err == nil {
		t.Fatal("expected error for empty Addr")
	}
}

func TestEndpoints(t *testing.T) {
	ready := errors.New("worker 0 not connected")
	srv, err := New(Config{Addr: ":0", CORS: true}, func() error { return ready }, logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := srv.Handler()

	tests := []struct {
		path string
		code int
		body string
	}{
		{"/healthz", http.StatusOK, "OK"},
		{"/readyz", http.StatusServiceUnavailable, "NOT READY"},
		{"/metrics", http.StatusOK, ""},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != tc.code {
			t.Errorf("%s: code=%d, want %d", tc.path, rec.Code, tc.code)
		}
		if !strings.Contains(rec.Body.String(), tc.body) {
			t.Errorf("%s: body %q does not contain %q", tc.path, rec.Body.String(), tc.body)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s: missing X-Request-ID", tc.path)
		}
	}

	ready = nil
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readyz after ready: code=%d", rec.Code)
	}
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(logger.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("code=%d, want 500", rec.Code)
	}
}
