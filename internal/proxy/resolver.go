package proxy

import "context"

// RunResolver maps a decoded run id and exposed port to an upstream
// origin. The local launch strategy resolves straight to
// "http://127.0.0.1:<port>"; the cluster strategy resolves to the
// run's service at the internal-proxy port 5597 and asks the caller to
// carry the real port in X-Reproserver-Port (spec §4.4, §4.5).
type RunResolver interface {
	// ResolveUpstream returns the upstream origin (scheme://host[:port])
	// to forward to, and a non-empty portHeader value when the
	// upstream is an internal proxy hop that needs the target port
	// carried out-of-band.
	ResolveUpstream(ctx context.Context, runID int64, port int) (origin string, portHeader string, err error)
}
