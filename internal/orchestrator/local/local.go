// Package local implements orchestrator.LaunchStrategy by running the
// container driver directly in this process, bound to the loopback
// interface is not required here since there's no in-pod proxy to
// shield: ports are published straight onto the host (spec §9 DESIGN
// NOTES, RUNNER_TYPE=local).
package local

import (
	"context"
	"fmt"

	"reproserver/internal/connector"
	"reproserver/internal/container"
)

// Strategy runs every container driver invocation in-process.
type Strategy struct {
	driver *container.Driver
}

// New builds a local strategy around conn, the same connector the
// orchestrator itself uses to initialise runs.
func New(conn connector.Connector) (*Strategy, error) {
	driver, err := container.New(conn, "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("local strategy: %w", err)
	}
	return &Strategy{driver: driver}, nil
}

// Launch runs the driver synchronously within the background task the
// orchestrator already started; info was fetched once by the
// orchestrator and is reused here without a second round trip.
func (s *Strategy) Launch(ctx context.Context, runID int64, info *connector.RunInfo) error {
	return s.driver.Run(ctx, info)
}
