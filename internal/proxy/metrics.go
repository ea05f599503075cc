package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// requestsTotal is the single promauto counter vector
// reproserver_proxy_requests_total{proto,outcome}.
var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reproserver_proxy_requests_total",
	Help: "Reverse proxy requests by protocol and outcome.",
}, []string{"proto", "outcome"})

func recordSuccess(proto string) { requestsTotal.WithLabelValues(proto, "success").Inc() }
func recordFailure(proto string) { requestsTotal.WithLabelValues(proto, "error").Inc() }
