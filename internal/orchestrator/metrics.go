package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// inFlightGauge mirrors the in-flight set described in spec §4.3/§5:
// mutated only alongside the in-flight map, never read to drive
// control flow.
var inFlightGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "reproserver_runs_in_flight",
	Help: "Number of runs the orchestrator currently considers in flight.",
})
