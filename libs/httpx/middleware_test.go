package httpx

import (
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func TestWithRequestIDGeneratesAndEchoes(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/acceptances", nil))
	if seen == "" {
		t.Fatal("no request id in context")
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header = %q, context = %q", got, seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/acceptances", nil)
	req.Header.Set(RequestIDHeader, "req-from-client")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "req-from-client" {
		t.Errorf("client-supplied id not propagated, got %q", seen)
	}
}

func TestStatusCapture(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusCapturingResponseWriter{ResponseWriter: rec}

	sw.WriteHeader(http.StatusConflict)
	if sw.status != http.StatusConflict {
		t.Errorf("status = %d, want 409", sw.status)
	}

	rec = httptest.NewRecorder()
	sw = &statusCapturingResponseWriter{ResponseWriter: rec}
	if _, err := sw.Write([]byte(`{"ok":true}`)); err != nil {
		t.Fatal(err)
	}
	if sw.status != http.StatusOK {
		t.Errorf("implicit status = %d, want 200", sw.status)
	}
	if sw.bytes != 11 {
		t.Errorf("bytes = %d, want 11", sw.bytes)
	}
}

func TestWithBodyLimit(t *testing.T) {
	h := WithBodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("short")))
	if rec.Code != http.StatusOK {
		t.Errorf("small body rejected: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("well over the limit")))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized body passed: %d", rec.Code)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mw("outer"), mw("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	want := []string{"outer", "inner", "handler"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}
