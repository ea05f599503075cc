// Package proxy implements the authenticating reverse proxy of
// spec.md §4.5: an external-facing proxy that routes by hostname or
// path to a run's exposed port, and an internal proxy running inside
// each worker pod that forwards to localhost. Both share one
// forwarding engine, generalized from the teacher's BotProxy
// (internal/proxy/bot_proxy.go: httputil.ReverseProxy with a
// customised Director/ErrorHandler) to also relay WebSocket upgrades
// and rewrite upstream redirects for path-based clients.
package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
)

// Header names shared between the external and internal proxy hops
// (spec §4.5, §6 GLOSSARY "Shared secret").
const (
	HeaderAuthenticate = "X-Reproserver-Authenticate"
	HeaderPort         = "X-Reproserver-Port"
)

// Forwarder proxies one request to an upstream origin, handling plain
// HTTP, WebSocket upgrades, and (optionally) the redirect-to-header
// rewrite used by path-based external routing.
type Forwarder struct {
	sharedSecret string
}

// NewForwarder builds a Forwarder that authenticates every forwarded
// request with sharedSecret (empty disables the header, used by the
// internal proxy's own upstream calls to localhost).
func NewForwarder(sharedSecret string) *Forwarder {
	return &Forwarder{sharedSecret: sharedSecret}
}

// Forward proxies r to upstreamOrigin (e.g. "http://host:5597"),
// preserving the original path and query. portHeader, if non-empty,
// is sent as X-Reproserver-Port — the internal proxy hop uses it to
// pick which localhost port to forward to. rewriteRedirects enables
// the location-rewrite mixin (spec §4.5 step 1) for path-based
// external routes.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, upstreamOrigin, portHeader string, rewriteRedirects bool) {
	if isWebSocketUpgrade(r) {
		f.forwardWebSocket(w, r, upstreamOrigin, portHeader)
		return
	}

	target, err := url.Parse(upstreamOrigin)
	if err != nil {
		recordFailure("http")
		http.Error(w, "proxy misconfigured", http.StatusInternalServerError)
		return
	}

	rp := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.Host = target.Host
			if f.sharedSecret != "" {
				req.Header.Set(HeaderAuthenticate, f.sharedSecret)
			}
			if portHeader != "" {
				req.Header.Set(HeaderPort, portHeader)
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Del("Content-Length")
			resp.Header.Del("Connection")
			resp.Header.Del("Transfer-Encoding")

			if rewriteRedirects && resp.StatusCode >= 300 && resp.StatusCode < 400 {
				loc := resp.Header.Get("Location")
				resp.Header.Set("x-redirect-status", strconv.Itoa(resp.StatusCode))
				resp.Header.Set("x-redirect-statusText", http.StatusText(resp.StatusCode))
				resp.Header.Set("x-orig-location", loc)
				resp.Header.Del("Location")
				resp.StatusCode = http.StatusOK
				resp.Status = "200 OK"
			}

			recordSuccess("http")
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			recordFailure("http")
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "upstream unreachable: %v\n", err)
		},
	}
	rp.ServeHTTP(w, r)
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

// forwardWebSocket dials upstreamOrigin as a WebSocket, upgrades the
// inbound connection, and relays frames in both directions until
// either side closes (spec §4.5 step 3).
func (f *Forwarder) forwardWebSocket(w http.ResponseWriter, r *http.Request, upstreamOrigin, portHeader string) {
	target, err := url.Parse(upstreamOrigin)
	if err != nil {
		recordFailure("ws")
		http.Error(w, "proxy misconfigured", http.StatusInternalServerError)
		return
	}

	wsScheme := "ws"
	if target.Scheme == "https" {
		wsScheme = "wss"
	}
	upstreamURL := url.URL{Scheme: wsScheme, Host: target.Host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}

	hdr := http.Header{}
	if f.sharedSecret != "" {
		hdr.Set(HeaderAuthenticate, f.sharedSecret)
	}
	if portHeader != "" {
		hdr.Set(HeaderPort, portHeader)
	}

	dialer := websocket.Dialer{}
	upstreamConn, resp, err := dialer.DialContext(r.Context(), upstreamURL.String(), hdr)
	if err != nil {
		recordFailure("ws")
		status := http.StatusBadGateway
		if resp != nil {
			status = resp.StatusCode
		}
		http.Error(w, fmt.Sprintf("upstream websocket connect failed: %v", err), status)
		return
	}
	defer upstreamConn.Close()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		recordFailure("ws")
		return
	}
	defer clientConn.Close()

	recordSuccess("ws")
	relayFrames(clientConn, upstreamConn)
}

// relayFrames copies WebSocket frames between a and b until either
// side errors (close, read error), tearing down both.
func relayFrames(a, b *websocket.Conn) {
	errc := make(chan error, 2)
	cp := func(dst, src *websocket.Conn) {
		for {
			mt, msg, err := src.ReadMessage()
			if err != nil {
				errc <- err
				return
			}
			if err := dst.WriteMessage(mt, msg); err != nil {
				errc <- err
				return
			}
		}
	}
	go cp(a, b)
	go cp(b, a)
	<-errc
}
