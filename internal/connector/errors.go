package connector

import "fmt"

// The five error kinds that flow through the execution subsystem
// (spec §7), modeled as sentinel struct types in the style of the
// runtime driver's RuntimeError: a typed wrapper carrying enough
// context for the caller to decide what to do, unwrapping to the
// underlying cause for errors.Is/errors.As.

// UserError is a request the user made that can't be honoured:
// unknown parameter name, unknown input file name, a required
// parameter missing a value, an invalid port number, a malformed run
// id. Surfaced as a 4xx where detected before any state is committed.
type UserError struct {
	RunID   int64
	Message string
}

func (e *UserError) Error() string {
	return fmt.Sprintf("run %d: %s", e.RunID, e.Message)
}

// BundleError means the run's extra_config names a required feature
// the driver doesn't implement. The run is failed via RunFailed with
// the message as the final log line.
type BundleError struct {
	RunID   int64
	Message string
}

func (e *BundleError) Error() string {
	return fmt.Sprintf("run %d: bundle error: %s", e.RunID, e.Message)
}

// InfrastructureError covers subprocess non-zero exit, container
// daemon unavailable, object-store upload failure, cluster API
// failure — anything the container driver's catch-all turns into
// run_failed(id, err.Error()).
type InfrastructureError struct {
	RunID     int64
	Operation string
	Err       error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("run %d: %s: %v", e.RunID, e.Operation, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// PodError is detected by the supervisor: the runner container never
// started, was OOM-killed, or the pod was deleted externally.
type PodError struct {
	RunID  int64
	Reason string
}

func (e *PodError) Error() string {
	return fmt.Sprintf("run %d: pod error: %s", e.RunID, e.Reason)
}

// ProxyError is a transient failure while forwarding a proxied
// request: upstream unreachable, or a WebSocket upstream connect
// error.
type ProxyError struct {
	Proto  string // "http" or "ws"
	Status int    // HTTP status to surface to the client, 0 if none known
	Err    error
}

func (e *ProxyError) Error() string {
	return fmt.Sprintf("proxy %s error (status %d): %v", e.Proto, e.Status, e.Err)
}

func (e *ProxyError) Unwrap() error {
	return e.Err
}
