// Package container is the container driver (spec §4.2): given a
// RunInfo and a bind host, it materialises a container, stages
// execution tools, streams in the bundle and inputs, runs the
// recorded commands, extracts outputs, and guarantees cleanup.
//
// Grounded on the teacher's Docker runtime (internal/runner/docker_runner.go):
// same client construction and container.Config/HostConfig/nat.PortMap
// shape, generalized from "run a long-lived bot container" to "run one
// bundle to completion and tear everything down."
package container

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"go.uber.org/zap"

	"reproserver/internal/connector"
	"reproserver/internal/logger"
)

const (
	baseImage      = "busybox:stable"
	toolsDirPrefix = "/reproserver-tools-"
	scratchPrefix  = "reproserver-scratch-"

	// gosuSourcePath is where the custom runner base image is expected
	// to ship gosu (https://github.com/tianon/gosu), the setuid/setgid
	// stepdown helper BuildRunScript invokes per command (spec §4.2
	// step 7). busybox:stable itself doesn't carry it; a production
	// deployment builds its own image FROM busybox:stable plus gosu.
	gosuSourcePath = "/usr/local/bin/gosu"
)

// Driver runs a single run to completion inside a container.
type Driver struct {
	docker   *client.Client
	conn     connector.Connector
	bindHost string
}

// New builds a driver bound to host ("0.0.0.0" for local, "127.0.0.1"
// for cluster mode, per spec §4.2).
func New(conn connector.Connector, bindHost string) (*Driver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("container: create docker client: %w", err)
	}
	return &Driver{docker: cli, conn: conn, bindHost: bindHost}, nil
}

// Run executes the 12-step container driver sequence for one run. The
// caller (the orchestrator or cmd/runner) is responsible for calling
// RunFailed on the connector if Run returns an error that wasn't
// already reported to the connector.
func (d *Driver) Run(ctx context.Context, info *connector.RunInfo) error {
	ctx = logger.WithRun(ctx, info.RunID)
	log := logger.GetLogger(ctx)

	extra, err := parseExtraConfig(info.ExtraConfig)
	if err != nil {
		return &connector.BundleError{RunID: info.RunID, Message: err.Error()}
	}
	if err := extra.ValidateRequiredFeatures(); err != nil {
		return &connector.BundleError{RunID: info.RunID, Message: err.Error()}
	}

	_ = d.conn.RunProgress(ctx, info.RunID, 0, "Setting up container")

	containerID, scratchDir, err := d.createWorkingContainer(ctx, info, extra)
	if err != nil {
		return &connector.InfrastructureError{RunID: info.RunID, Operation: "create container", Err: err}
	}
	defer d.cleanup(ctx, containerID, scratchDir)

	toolsDir := fmt.Sprintf("%s%d", toolsDirPrefix, rand.Int63())
	if err := d.stageTools(ctx, containerID, toolsDir); err != nil {
		return &connector.InfrastructureError{RunID: info.RunID, Operation: "stage tools", Err: err}
	}

	if err := d.streamBundleAndInputs(ctx, containerID, info, toolsDir); err != nil {
		return &connector.InfrastructureError{RunID: info.RunID, Operation: "stream bundle and inputs", Err: err}
	}

	if err := d.extractBundleAndPlaceInputs(ctx, containerID, info, toolsDir); err != nil {
		return &connector.InfrastructureError{RunID: info.RunID, Operation: "extract bundle", Err: err}
	}

	script, err := BuildRunScript(info.Parameters, toolsDir)
	if err != nil {
		return &connector.BundleError{RunID: info.RunID, Message: err.Error()}
	}

	if err := d.conn.RunStarted(ctx, info.RunID); err != nil {
		return err
	}
	_ = d.conn.RunProgress(ctx, info.RunID, 10, "Container is running")

	exitCode, err := d.execAndLog(ctx, containerID, []string{"sh", "-c", script}, d.conn.BatchInterval(),
		func(ctx context.Context, lines []connector.LogLine) error {
			return d.conn.LogMultiple(ctx, info.RunID, lines)
		})
	if err != nil {
		return &connector.InfrastructureError{RunID: info.RunID, Operation: "run script", Err: err}
	}
	if exitCode != 0 {
		return &connector.InfrastructureError{RunID: info.RunID, Operation: "run script",
			Err: fmt.Errorf("script exited with status %d", exitCode)}
	}

	for _, out := range info.Outputs {
		if err := d.collectOutput(ctx, containerID, info.RunID, out, scratchDir); err != nil {
			log.Warn("failed to collect output, continuing",
				zap.String("output", out.Name), zap.Error(err))
			_ = d.conn.Log(ctx, info.RunID, fmt.Sprintf("Couldn't get output %s", out.Name))
		}
	}

	return d.conn.RunDone(ctx, info.RunID)
}

func (d *Driver) createWorkingContainer(ctx context.Context, info *connector.RunInfo, extra *ExtraConfig) (string, string, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range info.Ports {
		port := nat.Port(fmt.Sprintf("%d/tcp", p.Number))
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostIP: d.bindHost, HostPort: fmt.Sprintf("%d", p.Number)}}
	}

	cfg := &container.Config{
		Image:        baseImage,
		Cmd:          []string{"sleep", "infinity"},
		ExposedPorts: exposed,
		Labels: map[string]string{
			"reproserver.run.id": fmt.Sprintf("%d", info.RunID),
		},
	}
	hostCfg := &container.HostConfig{
		PortBindings: bindings,
	}
	_ = extra // sidecar containers are merged in cluster mode only, per spec §4.2

	resp, err := d.docker.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil,
		fmt.Sprintf("reproserver-run-%d", info.RunID))
	if err != nil {
		return "", "", fmt.Errorf("container create: %w", err)
	}

	if err := d.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", "", fmt.Errorf("container start: %w", err)
	}

	scratchDir, err := os.MkdirTemp("", scratchPrefix)
	if err != nil {
		return "", "", fmt.Errorf("create scratch dir: %w", err)
	}

	return resp.ID, scratchDir, nil
}

// stageTools copies the pre-baked gosu setuid helper into a randomly
// named directory in the container, alongside the bundle and inputs
// streamed in next; busybox and tar are already on PATH from the base
// image, so the only tool that needs staging is the one the image
// doesn't ship on PATH by default (spec §4.2 step 3). BuildRunScript
// invokes the staged copy per recorded command.
func (d *Driver) stageTools(ctx context.Context, containerID, toolsDir string) error {
	if err := d.execAndWait(ctx, containerID, []string{"mkdir", "-p", toolsDir}); err != nil {
		return err
	}
	dest := path.Join(toolsDir, gosuBinary)
	if err := d.execAndWait(ctx, containerID, []string{"cp", gosuSourcePath, dest}); err != nil {
		return fmt.Errorf("stage gosu: %w", err)
	}
	return d.execAndWait(ctx, containerID, []string{"chmod", "0755", dest})
}

// streamBundleAndInputs pipes the bundle and each input file directly
// from their presigned URLs into the container, without ever landing
// on the worker's filesystem (spec §4.2 step 5).
func (d *Driver) streamBundleAndInputs(ctx context.Context, containerID string, info *connector.RunInfo, toolsDir string) error {
	if err := d.streamURLToFile(ctx, containerID, info.BundleURL, path.Join(toolsDir, "bundle.tar.gz")); err != nil {
		return fmt.Errorf("stream bundle: %w", err)
	}
	for _, in := range info.Inputs {
		dest := path.Join(toolsDir, "input-"+in.Name)
		if err := d.streamURLToFile(ctx, containerID, in.Link, dest); err != nil {
			return fmt.Errorf("stream input %s: %w", in.Name, err)
		}
	}
	return nil
}

// streamURLToFile fetches url on the worker side and pipes the bytes
// into the container via an exec'd "write to file" command, so the
// bundle contents are never buffered whole in memory.
func (d *Driver) streamURLToFile(ctx context.Context, containerID, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	return d.execWithStdin(ctx, containerID, []string{"sh", "-c", "cat > " + destPath}, resp.Body)
}

func (d *Driver) extractBundleAndPlaceInputs(ctx context.Context, containerID string, info *connector.RunInfo, toolsDir string) error {
	bundlePath := path.Join(toolsDir, "bundle.tar.gz")
	if err := d.execAndWait(ctx, containerID, []string{"tar", "-xzf", bundlePath, "-C", "/"}); err != nil {
		return fmt.Errorf("extract bundle: %w", err)
	}

	for _, in := range info.Inputs {
		src := path.Join(toolsDir, "input-"+in.Name)
		if err := d.execAndWait(ctx, containerID, []string{"mkdir", "-p", path.Dir(in.DestinationPath)}); err != nil {
			return fmt.Errorf("mkdir for input %s: %w", in.Name, err)
		}
		if err := d.execAndWait(ctx, containerID, []string{"mv", src, in.DestinationPath}); err != nil {
			return fmt.Errorf("place input %s: %w", in.Name, err)
		}
	}
	return nil
}

func (d *Driver) collectOutput(ctx context.Context, containerID string, runID int64, out connector.Output, scratchDir string) error {
	rc, _, err := d.docker.CopyFromContainer(ctx, containerID, out.SourcePath)
	if err != nil {
		return fmt.Errorf("copy output %s out of container: %w", out.Name, err)
	}
	defer rc.Close()

	localPath := path.Join(scratchDir, out.Name)
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}

	size, err := io.Copy(f, rc)
	f.Close()
	if err != nil {
		os.Remove(localPath)
		return err
	}
	defer os.Remove(localPath)

	r, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer r.Close()

	return d.conn.UploadOutputFile(ctx, runID, out.Name, r, size)
}

func (d *Driver) cleanup(ctx context.Context, containerID, scratchDir string) {
	log := logger.GetLogger(ctx)
	if containerID != "" {
		if err := d.docker.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
			log.Warn("failed to remove container", zap.String("container_id", containerID), zap.Error(err))
		}
	}
	if scratchDir != "" {
		if err := os.RemoveAll(scratchDir); err != nil {
			log.Warn("failed to remove scratch dir", zap.String("dir", scratchDir), zap.Error(err))
		}
	}
}

// waitTimeout bounds individual exec operations so a stuck container
// can't hang the driver forever.
const waitTimeout = 5 * time.Minute

func (d *Driver) execAndWait(ctx context.Context, containerID string, cmd []string) error {
	return d.execWithStdin(ctx, containerID, cmd, nil)
}
