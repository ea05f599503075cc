// Command runner is the worker pod entrypoint in cluster mode (spec
// §4.2-§4.3): it fetches its assigned run over the remote connector,
// drives the container to completion, and also exposes the in-pod
// proxy on port 5597 so the control plane can reach whatever ports the
// run's container publishes.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"reproserver/internal/connector"
	"reproserver/internal/connector/remote"
	"reproserver/internal/container"
	"reproserver/internal/logger"
	"reproserver/internal/proxy"
)

// internalProxyAddr is the in-pod proxy's bind address (spec §4.4:
// "the run's service carries the internal-proxy port 5597").
const internalProxyAddr = ":5597"

func main() {
	ctx, zlog := logger.PrepareLogger(context.Background())
	ctx = logger.WithComponent(ctx, "runner")
	defer logger.Sync(ctx)

	if err := run(ctx); err != nil {
		zlog.Fatal("runner failed", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	runID, err := strconv.ParseInt(os.Getenv("RUN_ID"), 10, 64)
	if err != nil {
		return fmt.Errorf("runner: invalid RUN_ID: %w", err)
	}
	apiEndpoint := os.Getenv("API_ENDPOINT")
	token := os.Getenv("CONNECTION_TOKEN")
	if apiEndpoint == "" || token == "" {
		return fmt.Errorf("runner: API_ENDPOINT and CONNECTION_TOKEN are required")
	}

	ctx = logger.WithRun(ctx, runID)
	log := logger.GetLogger(ctx)

	conn := remote.New(apiEndpoint, token)

	internalProxy := proxy.NewInternal(token)
	proxyServer := &http.Server{Addr: internalProxyAddr, Handler: internalProxy}
	go func() {
		if err := proxyServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("internal proxy server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = proxyServer.Shutdown(shutdownCtx)
	}()

	driver, err := container.New(conn, "127.0.0.1")
	if err != nil {
		return fmt.Errorf("runner: building container driver: %w", err)
	}

	info, err := conn.InitRunGetInfo(ctx, runID)
	if err != nil {
		return reportAndReturn(ctx, conn, runID, err)
	}

	if err := driver.Run(ctx, info); err != nil {
		return reportAndReturn(ctx, conn, runID, err)
	}

	return nil
}

// reportAndReturn marks the run failed with err's message (whether or
// not the driver already reported it) before propagating err to main's
// fatal log.
func reportAndReturn(ctx context.Context, conn connector.Connector, runID int64, err error) error {
	if rerr := conn.RunFailed(ctx, runID, err.Error()); rerr != nil {
		logger.GetLogger(ctx).Error("failed to report run failure", zap.Error(rerr))
	}
	return err
}
