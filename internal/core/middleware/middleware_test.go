package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	mylog "github.com/rmkenv/OS-ST-GIS/internal/logger"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestLogging_PropagatesRequestID(t *testing.T) {
	var seen string
	h := Logging(quiet())(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = mylog.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if seen != "abc-123" {
		t.Fatalf("ctx request id=%q", seen)
	}
	if rr.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("response header=%q", rr.Header().Get("X-Request-ID"))
	}
}

func TestLogging_MintsRequestID(t *testing.T) {
	var seen string
	h := Logging(quiet())(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = mylog.RequestID(r.Context())
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" || rr.Header().Get("X-Request-ID") != seen {
		t.Fatalf("ctx=%q header=%q", seen, rr.Header().Get("X-Request-ID"))
	}
}

func TestRecover(t *testing.T) {
	h := Recover(quiet())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/ingest", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", rr.Code)
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	h := CORS()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/ingest", nil))
	if rr.Code != http.StatusNoContent || called {
		t.Fatalf("status=%d called=%v", rr.Code, called)
	}
	if rr.Header().Get("Access-Control-Allow-Methods") != "GET,POST,OPTIONS" {
		t.Fatalf("methods=%q", rr.Header().Get("Access-Control-Allow-Methods"))
	}
}
