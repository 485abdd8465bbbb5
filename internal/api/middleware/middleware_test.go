package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adaptation-atlas/atlas-assistant/internal/api/middleware"
	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
	pkgmw "github.com/adaptation-atlas/atlas-assistant/pkg/middleware"
)

type fakeChain struct {
	identity *contracts.Identity
	err      error
}

func (f fakeChain) Authenticate(context.Context, *http.Request) (*contracts.Identity, error) {
	return f.identity, f.err
}

func (f fakeChain) RegisterProvider(contracts.AuthProvider) {}

func subjectHandler(w http.ResponseWriter, r *http.Request) {
	if id := pkgmw.GetIdentity(r.Context()); id != nil {
		w.Write([]byte(id.Subject))
		return
	}
	w.Write([]byte("anonymous"))
}

func serve(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
	return w
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		chain    fakeChain
		require  bool
		path     string
		wantCode int
		wantBody string
	}{
		{"identity", fakeChain{identity: &contracts.Identity{Subject: "ada"}}, true, "/chat", http.StatusOK, "ada"},
		{"anonymous allowed", fakeChain{}, false, "/chat", http.StatusOK, "anonymous"},
		{"anonymous rejected", fakeChain{}, true, "/chat", http.StatusUnauthorized, ""},
		{"invalid credentials", fakeChain{err: errors.New("bad token")}, false, "/chat", http.StatusUnauthorized, ""},
		{"public path", fakeChain{err: errors.New("bad token")}, true, "/health", http.StatusOK, "anonymous"},
		{"token path", fakeChain{}, true, "/token", http.StatusOK, "anonymous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := middleware.NewAuthMiddleware(tt.chain, tt.require).Handler(http.HandlerFunc(subjectHandler))
			w := serve(h, tt.path)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
			if w.Code == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") != "Bearer" {
				t.Errorf("WWW-Authenticate = %q, want Bearer", w.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestLoggerKeepsFlusher(t *testing.T) {
	var flushed bool
	h := middleware.Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("wrapped writer is not an http.Flusher")
		}
		w.Write([]byte("x"))
		f.Flush()
		flushed = true
	}))
	w := serve(h, "/chat")
	if !flushed || !w.Flushed {
		t.Errorf("flushed = %v, recorder flushed = %v", flushed, w.Flushed)
	}
	if !bytes.Equal(w.Body.Bytes(), []byte("x")) {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestTelemetryPassesThrough(t *testing.T) {
	h := middleware.Telemetry(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	if w := serve(h, "/health"); w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTeapot)
	}
}
