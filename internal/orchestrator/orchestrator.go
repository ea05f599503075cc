// Package orchestrator is the entry point that receives a run id and
// kicks off the container driver, either locally or via the cluster
// scheduler, without blocking the caller (spec §4.3).
package orchestrator

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"reproserver/internal/connector"
	"reproserver/internal/logger"
	"reproserver/internal/tasks"
)

// Orchestrator exposes Run(id), the sole entry point web handlers call
// once a run row has been persisted.
type Orchestrator struct {
	conn     connector.Connector
	strategy LaunchStrategy
	tasks    *tasks.Registry

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

// New builds an Orchestrator. strategy picks local vs cluster launch
// per the process's RUNNER_TYPE configuration.
func New(conn connector.Connector, strategy LaunchStrategy, reg *tasks.Registry) *Orchestrator {
	return &Orchestrator{
		conn:     conn,
		strategy: strategy,
		tasks:    reg,
		inFlight: make(map[int64]struct{}),
	}
}

// Run implements Orchestrator.run(run_id) (spec §4.3): increments the
// in-flight gauge, initialises the run, and launches the driver as a
// background task, returning before the driver completes.
func (o *Orchestrator) Run(ctx context.Context, runID int64) error {
	o.markInFlight(runID)

	info, err := o.conn.InitRunGetInfo(ctx, runID)
	if err != nil {
		o.clearInFlight(runID)
		_ = o.conn.RunFailed(ctx, runID, err.Error())
		return err
	}
	taskName := runTaskName(runID)
	o.tasks.Go(context.WithoutCancel(ctx), taskName, func(taskCtx context.Context) {
		defer o.clearInFlight(runID)

		if err := o.strategy.Launch(taskCtx, runID, info); err != nil {
			logger.GetLogger(taskCtx).Error("launch failed, failing run",
				zap.Int64("run_id", runID), zap.Error(err))
			_ = o.conn.RunFailed(taskCtx, runID, err.Error())
		}
	})

	return nil
}

func runTaskName(runID int64) string {
	return "run-" + strconv.FormatInt(runID, 10)
}

func (o *Orchestrator) markInFlight(runID int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inFlight[runID] = struct{}{}
	inFlightGauge.Set(float64(len(o.inFlight)))
}

func (o *Orchestrator) clearInFlight(runID int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, runID)
	inFlightGauge.Set(float64(len(o.inFlight)))
}

// InFlightCount reports how many runs the orchestrator currently
// considers in flight.
func (o *Orchestrator) InFlightCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inFlight)
}
