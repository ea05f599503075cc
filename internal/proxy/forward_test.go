package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestForwardPlainHTTP(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderAuthenticate) != "s3cr3t" {
			t.Errorf("missing auth header, got headers %v", r.Header)
		}
		if r.Header.Get(HeaderPort) != "8080" {
			t.Errorf("port header = %q", r.Header.Get(HeaderPort))
		}
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer upstream.Close()

	f := NewForwarder("s3cr3t")
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/some/path", nil)

	f.Forward(w, r, upstream.URL, "8080", false)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Body.String() != "hello" {
		t.Errorf("body = %q", w.Body.String())
	}
	if w.Header().Get("X-Upstream") != "yes" {
		t.Errorf("missing upstream header")
	}
}

func TestForwardRewritesRedirectWhenEnabled(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/elsewhere")
		w.WriteHeader(http.StatusFound)
	}))
	defer upstream.Close()

	f := NewForwarder("")
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/some/path", nil)

	f.Forward(w, r, upstream.URL, "", true)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want rewritten 200", w.Code)
	}
	if w.Header().Get("x-orig-location") != "/elsewhere" {
		t.Errorf("x-orig-location = %q", w.Header().Get("x-orig-location"))
	}
	if w.Header().Get("x-redirect-status") != "302" {
		t.Errorf("x-redirect-status = %q", w.Header().Get("x-redirect-status"))
	}
	if w.Header().Get("Location") != "" {
		t.Errorf("Location should be stripped, got %q", w.Header().Get("Location"))
	}
}

func TestForwardDoesNotRewriteRedirectWhenDisabled(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/elsewhere")
		w.WriteHeader(http.StatusFound)
	}))
	defer upstream.Close()

	f := NewForwarder("")
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/some/path", nil)

	f.Forward(w, r, upstream.URL, "", false)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want passthrough 302", w.Code)
	}
	if w.Header().Get("Location") != "/elsewhere" {
		t.Errorf("Location = %q", w.Header().Get("Location"))
	}
}

func TestForwardUpstreamUnreachable(t *testing.T) {
	f := NewForwarder("")
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/some/path", nil)

	f.Forward(w, r, "http://127.0.0.1:1", "", false)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
}
