package proxy

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Internal is the in-pod proxy (spec §4.5 "Internal proxy"): it
// authenticates the shared secret and forwards every request to
// localhost on the port named by X-Reproserver-Port, falling back to
// the legacy hostname-embedded port for older callers (spec §9 Open
// Questions: "header preferred, host fallback").
type Internal struct {
	sharedSecret string
	forwarder    *Forwarder
}

// NewInternal builds the in-pod proxy. Requests are forwarded without
// re-authenticating the localhost hop (sharedSecret is only checked
// on the way in).
func NewInternal(sharedSecret string) *Internal {
	return &Internal{sharedSecret: sharedSecret, forwarder: NewForwarder("")}
}

// ServeHTTP implements http.Handler.
func (i *Internal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if i.sharedSecret == "" || r.Header.Get(HeaderAuthenticate) != i.sharedSecret {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	port, ok := targetPort(r)
	if !ok {
		http.Error(w, "no target port", http.StatusBadRequest)
		return
	}

	origin := fmt.Sprintf("http://127.0.0.1:%d", port)
	i.forwarder.Forward(w, r, origin, "", false)
}

func targetPort(r *http.Request) (int, bool) {
	if v := r.Header.Get(HeaderPort); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			return p, true
		}
	}

	// Legacy fallback: port embedded as the last dash-separated
	// segment of the first hostname label.
	label := strings.SplitN(strings.SplitN(r.Host, ":", 2)[0], ".", 2)[0]
	if m := hostLabelPattern.FindStringSubmatch(label); m != nil {
		if p, err := strconv.Atoi(m[2]); err == nil {
			return p, true
		}
	}
	return 0, false
}
