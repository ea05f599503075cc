package orchestrator

import (
	"context"

	"reproserver/internal/connector"
)

// LaunchStrategy picks where the container driver actually runs,
// replacing the dynamic class hierarchy (BaseRunner -> DockerRunner ->
// K8sRunner) with two concrete implementations selected at startup by
// RUNNER_TYPE (spec §9 DESIGN NOTES): local.Strategy runs the driver
// in this process; cluster.Strategy hands the run off to a worker pod.
type LaunchStrategy interface {
	// Launch starts the container driver for runID. info is the
	// RunInfo the orchestrator already fetched; the local strategy
	// hands it to the driver, the cluster strategy reads its
	// extra_config and ports to build the pod and service (the pod
	// then constructs its own remote connector and re-fetches).
	// The orchestrator calls Launch inside its background task, and
	// any error Launch returns is reported through run_failed. The
	// local strategy blocks until the driver finishes and returns the
	// driver's error; the cluster strategy returns once the pod and
	// service are created, after which failures are surfaced by the
	// pod itself or the pod supervisor.
	Launch(ctx context.Context, runID int64, info *connector.RunInfo) error
}
