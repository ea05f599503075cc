// Package health implements the control plane's liveness/readiness
// endpoint (spec §4.6): gated on the Kubernetes probe header, 503
// while the process is draining for shutdown, 200 otherwise.
package health

import (
	"net/http"
	"sync/atomic"
)

// ProbeHeader is the header Kubernetes' kubelet sets on probe
// requests; only requests carrying it are served by Handler — any
// other caller gets a plain 404, so the endpoint doesn't leak process
// state to arbitrary clients.
const ProbeHeader = "X-Kubernetes-Probe"

// Handler reports whether the process is ready to serve traffic.
type Handler struct {
	draining atomic.Bool
}

// New builds a Handler that starts out healthy.
func New() *Handler {
	return &Handler{}
}

// Drain marks the process as shutting down; subsequent probes fail so
// a load balancer stops routing new work here.
func (h *Handler) Drain() {
	h.draining.Store(true)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(ProbeHeader) == "" {
		http.NotFound(w, r)
		return
	}

	if h.draining.Load() {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
