package cluster

import (
	"context"
	"fmt"
	"strconv"

	"reproserver/internal/config"
)

// Resolver implements proxy.RunResolver for cluster mode: each run's
// service carries the internal-proxy port 5597 (spec §4.4), so the
// external proxy forwards there and asks the internal proxy to pick
// the real target port via X-Reproserver-Port.
type Resolver struct {
	namePrefix string
	namespace  string
}

// NewResolver builds a cluster resolver from cfg.
func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{namePrefix: cfg.RunNamePrefix, namespace: cfg.RunNamespace}
}

// ResolveUpstream implements proxy.RunResolver.
func (r *Resolver) ResolveUpstream(_ context.Context, runID int64, port int) (string, string, error) {
	host := fmt.Sprintf("%s%d.%s.svc.cluster.local", r.namePrefix, runID, r.namespace)
	return fmt.Sprintf("http://%s:5597", host), strconv.Itoa(port), nil
}
