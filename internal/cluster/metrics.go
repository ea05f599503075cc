package cluster

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// inFlightGauge mirrors the supervisor's in-flight pod set (spec
// §4.4: "the in-flight set is mirrored into the... gauge at every
// mutation"), independent of the orchestrator's own in-flight gauge
// since the two sets can briefly disagree while a pod is starting.
var inFlightGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "reproserver_cluster_pods_in_flight",
	Help: "Number of worker pods the cluster supervisor currently considers in flight.",
})
