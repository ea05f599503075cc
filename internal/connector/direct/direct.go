// Package direct implements connector.Connector in-process against the
// control-plane store and object store. It's used by the local launch
// strategy, where the container driver runs in the same process as
// the control plane.
package direct

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"reproserver/internal/connector"
	"reproserver/internal/logger"
	"reproserver/internal/model"
	"reproserver/internal/objectstore"
	"reproserver/internal/pubsub"
	"reproserver/internal/store"
)

// batchInterval is the direct connector's log-batching interval
// (spec §4.1: "direct connector: ~1s").
const batchInterval = 1 * time.Second

// bundleLinkExpiry and inputLinkExpiry bound how long a presigned
// download URL handed to the worker stays valid.
const (
	bundleLinkExpiry = 15 * time.Minute
	inputLinkExpiry  = 15 * time.Minute
)

// Connector wires the store and object store together behind the
// connector.Connector interface, publishing best-effort run events as
// it goes.
type Connector struct {
	store  *store.Store
	objs   *objectstore.Client
	pubsub pubsub.PubSub
}

// New builds a direct connector. pub may be nil, in which case event
// publishing is skipped entirely (equivalent to a no-op publisher).
func New(s *store.Store, objs *objectstore.Client, pub pubsub.PubSub) *Connector {
	return &Connector{store: s, objs: objs, pubsub: pub}
}

func (c *Connector) publish(ctx context.Context, runID int64, evt pubsub.RunEvent) {
	if c.pubsub == nil {
		return
	}
	evt.RunID = runID
	if err := c.pubsub.Publish(ctx, pubsub.RunTopic(runID), evt); err != nil {
		logger.GetLogger(ctx).Warn("pubsub publish failed, continuing",
			zap.Int64("run_id", runID), zap.Error(err))
	}
}

// BatchInterval implements connector.Connector.
func (c *Connector) BatchInterval() time.Duration {
	return batchInterval
}

// InitRunGetInfo implements connector.Connector.
func (c *Connector) InitRunGetInfo(ctx context.Context, runID int64) (*connector.RunInfo, error) {
	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return nil, &connector.UserError{RunID: runID, Message: fmt.Sprintf("unknown run: %v", err)}
	}

	exp, err := c.store.GetExperiment(ctx, run.ExperimentHash)
	if err != nil {
		return nil, &connector.InfrastructureError{RunID: runID, Operation: "load experiment", Err: err}
	}

	merged := map[string]connector.ParameterInfo{}
	hasValue := map[string]bool{}
	for _, p := range exp.Parameters {
		info := connector.ParameterInfo{Workdir: p.Workdir, Environment: p.Environment}
		if p.UID != nil {
			info.UID = *p.UID
		}
		if p.GID != nil {
			info.GID = *p.GID
		}
		if p.Default != nil {
			info.Value = *p.Default
			hasValue[p.Name] = true
		}
		merged[p.Name] = info
	}
	for _, pv := range run.ParameterValues {
		if exp.Parameter(pv.Name) == nil {
			return nil, &connector.UserError{RunID: runID, Message: fmt.Sprintf("unknown parameter: %s", pv.Name)}
		}
		info := merged[pv.Name]
		info.Value = pv.Value
		merged[pv.Name] = info
		hasValue[pv.Name] = true
	}

	var missing []string
	for _, p := range exp.Parameters {
		if p.Required && !hasValue[p.Name] {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		msg := "Missing value for parameters: " + joinNames(missing)
		return nil, &connector.UserError{RunID: runID, Message: msg}
	}

	inputs := make([]connector.Input, 0, len(run.InputFiles))
	for _, in := range run.InputFiles {
		path := exp.Path(in.Name)
		if path == nil || !path.IsInput {
			return nil, &connector.UserError{RunID: runID, Message: fmt.Sprintf("unknown input file: %s", in.Name)}
		}
		link, err := c.objs.PresignedInputURL(ctx, in.Hash, inputLinkExpiry)
		if err != nil {
			return nil, &connector.InfrastructureError{RunID: runID, Operation: "presign input", Err: err}
		}
		inputs = append(inputs, connector.Input{
			Name:            in.Name,
			Hash:            in.Hash,
			Size:            in.Size,
			Link:            link,
			DestinationPath: path.Path,
		})
	}

	var outputs []connector.Output
	for _, p := range exp.Paths {
		if p.IsOutput {
			outputs = append(outputs, connector.Output{Name: p.Name, SourcePath: p.Path})
		}
	}

	var ports []connector.Port
	for _, p := range run.ExposedPorts {
		ports = append(ports, connector.Port{Number: p.Port, Scheme: p.Scheme})
	}

	bundleURL, err := c.objs.PresignedBundleURL(ctx, run.ExperimentHash, bundleLinkExpiry)
	if err != nil {
		return nil, &connector.InfrastructureError{RunID: runID, Operation: "presign bundle", Err: err}
	}

	if err := c.store.ClearLogAndOutputs(ctx, runID); err != nil {
		return nil, &connector.InfrastructureError{RunID: runID, Operation: "clear log and outputs", Err: err}
	}

	return &connector.RunInfo{
		RunID:          runID,
		ExperimentHash: run.ExperimentHash,
		BundleURL:      bundleURL,
		Parameters:     merged,
		Inputs:         inputs,
		Outputs:        outputs,
		Ports:          ports,
		ExtraConfig:    run.ExtraConfig,
	}, nil
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

// RunStarted implements connector.Connector.
func (c *Connector) RunStarted(ctx context.Context, runID int64) error {
	if err := c.store.SetStarted(ctx, runID); err != nil {
		return &connector.InfrastructureError{RunID: runID, Operation: "set started", Err: err}
	}
	c.publish(ctx, runID, pubsub.RunEvent{Type: pubsub.EventTypeRunStarted, Timestamp: time.Now().UTC()})
	return nil
}

// RunProgress implements connector.Connector.
func (c *Connector) RunProgress(ctx context.Context, runID int64, percent int, text string) error {
	if err := c.store.SetProgress(ctx, runID, percent, text); err != nil {
		return &connector.InfrastructureError{RunID: runID, Operation: "set progress", Err: err}
	}
	c.publish(ctx, runID, pubsub.RunEvent{
		Type: pubsub.EventTypeRunProgress, Percent: percent, Text: text, Timestamp: time.Now().UTC(),
	})
	return nil
}

// RunDone implements connector.Connector.
func (c *Connector) RunDone(ctx context.Context, runID int64) error {
	if err := c.store.SetDone(ctx, runID); err != nil {
		return &connector.InfrastructureError{RunID: runID, Operation: "set done", Err: err}
	}
	c.publish(ctx, runID, pubsub.RunEvent{Type: pubsub.EventTypeRunDone, Timestamp: time.Now().UTC()})
	return nil
}

// RunFailed implements connector.Connector.
func (c *Connector) RunFailed(ctx context.Context, runID int64, errText string) error {
	if err := c.LogMultiple(ctx, runID, []connector.LogLine{{Time: time.Now().UTC(), Text: model.FormatErrorLine(errText)}}); err != nil {
		return err
	}
	if err := c.store.SetDone(ctx, runID); err != nil {
		return &connector.InfrastructureError{RunID: runID, Operation: "set done (failed)", Err: err}
	}
	c.publish(ctx, runID, pubsub.RunEvent{Type: pubsub.EventTypeRunFailed, Error: errText, Timestamp: time.Now().UTC()})
	return nil
}

// Log implements connector.Connector.
func (c *Connector) Log(ctx context.Context, runID int64, text string) error {
	return c.LogMultiple(ctx, runID, []connector.LogLine{{Time: time.Now().UTC(), Text: text}})
}

// LogMultiple implements connector.Connector.
func (c *Connector) LogMultiple(ctx context.Context, runID int64, lines []connector.LogLine) error {
	if len(lines) == 0 {
		return nil
	}
	modelLines := make([]model.LogLine, len(lines))
	for i, l := range lines {
		modelLines[i] = model.LogLine{Time: l.Time, Text: l.Text}
	}
	if err := c.store.AppendLogLines(ctx, runID, modelLines); err != nil {
		return &connector.InfrastructureError{RunID: runID, Operation: "append log lines", Err: err}
	}
	c.publish(ctx, runID, pubsub.RunEvent{Type: pubsub.EventTypeRunLog, Timestamp: time.Now().UTC()})
	return nil
}

// RunCmdAndLog implements connector.Connector.
func (c *Connector) RunCmdAndLog(ctx context.Context, runID int64, argv []string, dir string, env []string) (int, error) {
	return connector.RunCmdAndLog(ctx, argv, dir, env, batchInterval, func(ctx context.Context, lines []connector.LogLine) error {
		return c.LogMultiple(ctx, runID, lines)
	})
}

// UploadOutputFile implements connector.Connector.
func (c *Connector) UploadOutputFile(ctx context.Context, runID int64, name string, r io.Reader, size int64) error {
	hash, err := c.objs.UploadOutput(ctx, runID, name, r, size)
	if err != nil {
		return &connector.InfrastructureError{RunID: runID, Operation: "upload output", Err: err}
	}
	if err := c.store.RecordOutputFile(ctx, runID, model.OutputFile{Name: name, Hash: hash, Size: size}); err != nil {
		return &connector.InfrastructureError{RunID: runID, Operation: "record output file", Err: err}
	}
	return nil
}
