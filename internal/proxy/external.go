package proxy

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"reproserver/internal/logger"
	"reproserver/internal/shortid"

	"go.uber.org/zap"
)

// pathPattern matches the path-based addressing scheme (spec §4.5):
// /results/<run-short-id>/port/<port>[/...]
var pathPattern = regexp.MustCompile(`^/results/([^/]+)/port/(\d+)(/.*)?$`)

// hostLabelPattern matches the last two dash-separated segments of a
// hostname's first label: <run-short-id>-<port>.
var hostLabelPattern = regexp.MustCompile(`^(.+)-(\d+)$`)

// External is the public-facing reverse proxy: it decodes a run's
// short id from either the request hostname or its path, resolves the
// run's upstream via resolver, and forwards through Forwarder.
type External struct {
	codec     *shortid.Codec
	resolver  RunResolver
	forwarder *Forwarder
	domain    string
}

// NewExternal builds the external proxy. sharedSecret authenticates
// the hop to the internal proxy (cluster mode only; local mode talks
// straight to the container and ignores it). domain, if non-empty,
// restricts hostname-based routing to "<id>-<port>.<domain>"; an
// empty domain disables hostname-based routing, leaving only the
// path-based scheme.
func NewExternal(codec *shortid.Codec, resolver RunResolver, sharedSecret, domain string) *External {
	return &External{codec: codec, resolver: resolver, forwarder: NewForwarder(sharedSecret), domain: domain}
}

// ServeHTTP implements http.Handler.
func (e *External) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if shortID, port, ok := hostnameDestination(r.Host, e.domain); ok {
		e.serve(w, r, shortID, port, false)
		return
	}

	if m := pathPattern.FindStringSubmatch(r.URL.Path); m != nil {
		rest := m[3]
		if rest == "" {
			rest = "/"
		}
		r2 := r.Clone(r.Context())
		r2.URL.Path = rest
		e.serve(w, r2, m[1], m[2], true)
		return
	}

	http.NotFound(w, r)
}

func (e *External) serve(w http.ResponseWriter, r *http.Request, shortID, portStr string, rewriteRedirects bool) {
	runID, err := e.codec.Decode(shortID)
	if err != nil {
		recordFailure(protoFor(r))
		http.Error(w, "invalid run id", http.StatusForbidden)
		return
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		recordFailure(protoFor(r))
		http.Error(w, "invalid port", http.StatusForbidden)
		return
	}

	origin, portHeader, err := e.resolver.ResolveUpstream(r.Context(), runID, port)
	if err != nil {
		recordFailure(protoFor(r))
		logger.GetLogger(r.Context()).Warn("failed to resolve run upstream",
			zap.Int64("run_id", runID), zap.Int("port", port), zap.Error(err))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("run not reachable\n"))
		return
	}

	e.forwarder.Forward(w, r, origin, portHeader, rewriteRedirects)
}

func protoFor(r *http.Request) string {
	if isWebSocketUpgrade(r) {
		return "ws"
	}
	return "http"
}

// hostnameDestination extracts <run-short-id>-<port> from the first
// label of host (spec §4.5 step 1: "the last two dash-separated
// segments of the first hostname label"), requiring the remainder of
// host to match the configured domain.
func hostnameDestination(host, domain string) (shortID, port string, ok bool) {
	if domain == "" {
		return "", "", false
	}

	host = strings.SplitN(host, ":", 2)[0]
	suffix := "." + domain
	if !strings.HasSuffix(strings.ToLower(host), strings.ToLower(suffix)) {
		return "", "", false
	}
	label := strings.TrimSuffix(host, host[len(host)-len(suffix):])

	m := hostLabelPattern.FindStringSubmatch(label)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
