package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"reproserver/internal/shortid"
)

type fakeResolver struct {
	origin     string
	portHeader string
	err        error
	gotRunID   int64
	gotPort    int
}

func (f *fakeResolver) ResolveUpstream(_ context.Context, runID int64, port int) (string, string, error) {
	f.gotRunID = runID
	f.gotPort = port
	if f.err != nil {
		return "", "", f.err
	}
	return f.origin, f.portHeader, nil
}

func newTestCodec(t *testing.T) *shortid.Codec {
	t.Helper()
	codec, err := shortid.New("test-salt")
	if err != nil {
		t.Fatalf("shortid.New: %v", err)
	}
	return codec
}

func TestExternalServesPathBasedRoute(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sub/page" {
			t.Errorf("upstream path = %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	codec := newTestCodec(t)
	shortID := codec.Encode(99)

	resolver := &fakeResolver{origin: upstream.URL}
	ext := NewExternal(codec, resolver, "", "")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/results/"+shortID+"/port/8080/sub/page", nil)
	ext.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resolver.gotRunID != 99 || resolver.gotPort != 8080 {
		t.Errorf("resolver got runID=%d port=%d", resolver.gotRunID, resolver.gotPort)
	}
}

func TestExternalRejectsBadShortID(t *testing.T) {
	codec := newTestCodec(t)
	ext := NewExternal(codec, &fakeResolver{}, "", "")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/results/not-a-valid-id/port/8080", nil)
	ext.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestExternalUnmatchedPathIs404(t *testing.T) {
	codec := newTestCodec(t)
	ext := NewExternal(codec, &fakeResolver{}, "", "")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/nothing/here", nil)
	ext.ServeHTTP(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestExternalHostnameBasedRoute(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	codec := newTestCodec(t)
	shortID := codec.Encode(7)

	resolver := &fakeResolver{origin: upstream.URL}
	ext := NewExternal(codec, resolver, "", "run.example.org")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Host = shortID + "-9000.run.example.org"
	ext.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resolver.gotRunID != 7 || resolver.gotPort != 9000 {
		t.Errorf("resolver got runID=%d port=%d", resolver.gotRunID, resolver.gotPort)
	}
}

func TestExternalResolveFailureReturns503(t *testing.T) {
	codec := newTestCodec(t)
	shortID := codec.Encode(1)
	ext := NewExternal(codec, &fakeResolver{err: context.DeadlineExceeded}, "", "")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/results/"+shortID+"/port/80", nil)
	ext.ServeHTTP(w, r)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
}
