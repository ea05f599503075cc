package health

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func probeRequest() *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set(ProbeHeader, "1")
	return r
}

func TestHealthyByDefault(t *testing.T) {
	h := New()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, probeRequest())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestDrainingReturns503(t *testing.T) {
	h := New()
	h.Drain()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, probeRequest())
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestNonProbeRequestGets404(t *testing.T) {
	h := New()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}
