// Package connector defines the one seam between a worker (running
// the container driver) and the control plane's durable state. Two
// implementations satisfy this interface: direct (internal/connector/direct,
// in-process against the store and object store) and remote
// (internal/connector/remote, an HTTP client against the control
// plane's internal API). No inheritance between them — just the
// interface.
package connector

import (
	"context"
	"io"
	"time"
)

// Parameter mirrors model.Parameter for the worker's view of a bundle.
type Parameter struct {
	Name        string
	Required    bool
	Default     *string
	Description string
}

// ParameterInfo is one resolved parameter as handed to the container
// driver: the merged value (default overridden by any submitted
// value), plus the working directory, environment and uid/gid
// recorded at bundle trace time. Workdir/Environment/UID/GID are only
// meaningful for cmdline_<index> parameters (spec §4.2 step 7); other
// parameters carry zero values for them.
type ParameterInfo struct {
	Value       string
	Workdir     string
	Environment map[string]string
	UID         int
	GID         int
}

// Input describes one input file materialised for the run, including
// where in the container it must land.
type Input struct {
	Name            string
	Hash            string
	Size            int64
	Link            string // presigned download URL
	DestinationPath string
}

// Output describes one bundle path flagged is-output, and the
// container path the driver must copy it from.
type Output struct {
	Name       string
	SourcePath string
}

// Port is one exposed port the run wants reachable from outside.
type Port struct {
	Number int
	Scheme string
}

// RunInfo is everything the container driver needs to execute a run,
// as returned by InitRunGetInfo (spec §4.1).
type RunInfo struct {
	RunID          int64
	ExperimentHash string
	BundleURL      string
	Parameters     map[string]ParameterInfo // merged: defaults overridden by submitted values
	Inputs         []Input
	Outputs        []Output
	Ports          []Port
	ExtraConfig    []byte
}

// LogLine is one line to append to a run's log.
type LogLine struct {
	Time time.Time
	Text string
}

// Connector is the contract a container driver uses to read a run's
// descriptor and write back its lifecycle, log and output state.
type Connector interface {
	// InitRunGetInfo loads the run, validates submitted parameters and
	// inputs against the bundle, computes the merged parameter map,
	// clears the run's previous log and output set, and returns a
	// RunInfo. Fails with a *UserError or *InfrastructureError.
	InitRunGetInfo(ctx context.Context, runID int64) (*RunInfo, error)

	// RunStarted sets `started` the first time it's called; idempotent.
	RunStarted(ctx context.Context, runID int64) error

	// RunProgress updates the non-authoritative progress fields.
	RunProgress(ctx context.Context, runID int64, percent int, text string) error

	// RunDone sets `done`. Idempotent.
	RunDone(ctx context.Context, runID int64) error

	// RunFailed sets `done` and appends errText as a final log line.
	RunFailed(ctx context.Context, runID int64, errText string) error

	// Log appends a single log line.
	Log(ctx context.Context, runID int64, text string) error

	// LogMultiple appends lines in order; used for subprocess output.
	LogMultiple(ctx context.Context, runID int64, lines []LogLine) error

	// UploadOutputFile streams r (size bytes) to the output bucket
	// under name, computing its digest while streaming, and records
	// the output entry.
	UploadOutputFile(ctx context.Context, runID int64, name string, r io.Reader, size int64) error

	// RunCmdAndLog runs argv as a subprocess, captures stdout+stderr
	// line-by-line, batches them to LogMultiple on a fixed interval
	// (see BatchInterval), and returns the process exit code.
	RunCmdAndLog(ctx context.Context, runID int64, argv []string, dir string, env []string) (int, error)

	// BatchInterval is the log-batching interval this implementation
	// uses for RunCmdAndLog (~1s direct, ~3s remote per spec §4.1).
	BatchInterval() time.Duration
}
