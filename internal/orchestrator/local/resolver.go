package local

import (
	"context"
	"fmt"
)

// Resolver implements proxy.RunResolver for local mode: the container
// driver publishes ports straight onto the host, so the proxy talks
// to the container directly over loopback, with no internal-proxy hop.
type Resolver struct{}

// NewResolver builds a local resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// ResolveUpstream implements proxy.RunResolver.
func (*Resolver) ResolveUpstream(_ context.Context, _ int64, port int) (string, string, error) {
	return fmt.Sprintf("http://127.0.0.1:%d", port), "", nil
}
