package container

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"reproserver/internal/connector"
)

// execWithStdin execs cmd inside containerID, optionally piping stdin
// to it, and waits for it to exit. A non-zero exit is reported as an
// error; stdout/stderr are drained but discarded — control commands
// (mkdir, tar, mv, cat >file) are expected to be silent on success.
func (d *Driver) execWithStdin(ctx context.Context, containerID string, cmd []string, stdin io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	execCfg := container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
		AttachStdin:  stdin != nil,
	}

	created, err := d.docker.ContainerExecCreate(ctx, containerID, execCfg)
	if err != nil {
		return fmt.Errorf("exec create %v: %w", cmd, err)
	}

	attached, err := d.docker.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return fmt.Errorf("exec attach %v: %w", cmd, err)
	}
	defer attached.Close()

	if stdin != nil {
		go func() {
			io.Copy(attached.Conn, stdin)
			attached.CloseWrite()
		}()
	}

	if _, err := io.Copy(io.Discard, attached.Reader); err != nil {
		return fmt.Errorf("exec read %v: %w", cmd, err)
	}

	inspect, err := d.docker.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return fmt.Errorf("exec inspect %v: %w", cmd, err)
	}
	if inspect.ExitCode != 0 {
		return fmt.Errorf("exec %v exited with status %d", cmd, inspect.ExitCode)
	}
	return nil
}

// execAndLog execs cmd inside containerID and streams its demultiplexed
// stdout+stderr back line-by-line, batching them to publish on a fixed
// interval — the same scheduling contract as connector.RunCmdAndLog
// (internal/connector/runcmd.go), but run as a container exec instead
// of a host subprocess so the bundle's own script never leaves the
// container's isolation (spec §4.2 step 9). Unlike execWithStdin, this
// is not wrapped in waitTimeout: the run's own script may legitimately
// run far longer than a control command.
func (d *Driver) execAndLog(ctx context.Context, containerID string, cmd []string, batchInterval time.Duration, publish func(context.Context, []connector.LogLine) error) (int, error) {
	execCfg := container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	}

	created, err := d.docker.ContainerExecCreate(ctx, containerID, execCfg)
	if err != nil {
		return -1, fmt.Errorf("exec create %v: %w", cmd, err)
	}

	attached, err := d.docker.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return -1, fmt.Errorf("exec attach %v: %w", cmd, err)
	}
	defer attached.Close()

	pr, pw := io.Pipe()
	demuxErr := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, attached.Reader)
		pw.CloseWithError(err)
		demuxErr <- err
	}()

	var mu sync.Mutex
	var buffer []connector.LogLine
	scanDone := make(chan struct{})

	go func() {
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			mu.Lock()
			buffer = append(buffer, connector.LogLine{Time: time.Now().UTC(), Text: scanner.Text()})
			mu.Unlock()
		}
		close(scanDone)
	}()

	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()

	flush := func() {
		mu.Lock()
		if len(buffer) == 0 {
			mu.Unlock()
			return
		}
		lines := buffer
		buffer = nil
		mu.Unlock()
		_ = publish(ctx, lines)
	}

	done := false
	for !done {
		select {
		case <-ticker.C:
			flush()
		case <-scanDone:
			done = true
		}
	}
	flush()

	inspect, err := d.docker.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return -1, fmt.Errorf("exec inspect %v: %w", cmd, err)
	}
	return inspect.ExitCode, nil
}
