// Command controlplane runs the ReproServer control plane: the
// internal runner API, the external reverse proxy, the orchestrator,
// and (in cluster mode) the pod supervisor.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"reproserver/internal/cluster"
	"reproserver/internal/config"
	"reproserver/internal/connector/direct"
	"reproserver/internal/health"
	"reproserver/internal/logger"
	"reproserver/internal/objectstore"
	"reproserver/internal/orchestrator"
	"reproserver/internal/orchestrator/local"
	"reproserver/internal/proxy"
	"reproserver/internal/pubsub"
	"reproserver/internal/runnerapi"
	"reproserver/internal/shortid"
	"reproserver/internal/store"
	"reproserver/internal/tasks"
)

func main() {
	app := &cli.App{
		Name:  "controlplane",
		Usage: "ReproServer control plane",
		Commands: []*cli.Command{
			{
				Name:   "server",
				Usage:  "Run the control plane server",
				Action: runServer,
			},
			{
				Name:   "migrate",
				Usage:  "Run database schema migrations",
				Action: runMigrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runMigrate(c *cli.Context) error {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("REPROSERVER_DATABASE_URL is required")
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	return st.Migrate()
}

func runServer(c *cli.Context) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := cfg.Env
	var zlog *zap.Logger
	if env == "development" {
		zlog = logger.NewDevelopmentLogger()
	} else {
		zlog = logger.NewProductionLogger()
	}
	ctx = logger.WithLogger(ctx, zlog)
	ctx = logger.WithComponent(ctx, "controlplane")
	defer logger.Sync(ctx)
	log := logger.GetLogger(ctx)

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	objs, err := objectstore.New(cfg.S3)
	if err != nil {
		return fmt.Errorf("opening object store: %w", err)
	}

	var ps pubsub.PubSub
	if cfg.RedisAddr != "" {
		ps = pubsub.NewRedisPubSub(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	} else {
		ps = pubsub.NewMemoryPubSub()
	}
	defer ps.Close()

	conn := direct.New(st, objs, ps)
	reg := tasks.New()

	var strategy orchestrator.LaunchStrategy
	var resolver proxy.RunResolver
	var supervisor *cluster.Supervisor

	switch cfg.RunnerType {
	case "cluster":
		clusterStrategy, err := cluster.New(cfg)
		if err != nil {
			return fmt.Errorf("building cluster strategy: %w", err)
		}
		strategy = clusterStrategy
		resolver = cluster.NewResolver(cfg)

		clientset, _, err := cluster.BuildClientset(cfg)
		if err != nil {
			return fmt.Errorf("building kubernetes client: %w", err)
		}
		supervisor = cluster.NewSupervisor(clientset, cfg.RunNamespace, conn)
	default:
		localStrategy, err := local.New(conn)
		if err != nil {
			return fmt.Errorf("building local strategy: %w", err)
		}
		strategy = localStrategy
		resolver = local.NewResolver()
	}

	orch := orchestrator.New(conn, strategy, reg)
	_ = orch // wired into future run-submission handlers; execution subsystem only

	if supervisor != nil {
		reg.Go(ctx, "cluster-supervisor", func(taskCtx context.Context) {
			if err := supervisor.Run(taskCtx); err != nil && taskCtx.Err() == nil {
				log.Error("cluster supervisor exited", zap.Error(err))
			}
		})
	}

	healthHandler := health.New()

	apiRouter := chi.NewRouter()
	apiRouter.Use(middleware.RequestID)
	apiRouter.Use(middleware.RealIP)
	apiRouter.Use(skipPath(health.ProbeHeader, middleware.Logger))
	apiRouter.Use(middleware.Recoverer)
	apiRouter.Use(middleware.Compress(5))
	apiRouter.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT"},
		AllowedHeaders: []string{"*"},
	}))
	apiRouter.Mount("/health", healthHandler)
	apiRouter.Mount("/", runnerapi.New(conn, cfg.ConnectionToken).Routes())

	codec, err := shortid.New(cfg.ShortIDSalt)
	if err != nil {
		return fmt.Errorf("building shortid codec: %w", err)
	}
	externalProxy := proxy.NewExternal(codec, resolver, cfg.ConnectionToken, cfg.ProxyDomain)

	apiServer := &http.Server{Addr: cfg.ListenAddr, Handler: apiRouter}
	proxyServer := &http.Server{Addr: cfg.ProxyListenAddr, Handler: externalProxy}

	reg.Go(ctx, "api-server", func(taskCtx context.Context) {
		log.Info("internal API listening", zap.String("addr", cfg.ListenAddr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("internal API server failed", zap.Error(err))
		}
	})
	reg.Go(ctx, "proxy-server", func(taskCtx context.Context) {
		log.Info("reverse proxy listening", zap.String("addr", cfg.ProxyListenAddr))
		if err := proxyServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("proxy server failed", zap.Error(err))
		}
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received, draining")
	healthHandler.Drain()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTime)
	defer shutdownCancel()

	_ = apiServer.Shutdown(shutdownCtx)
	_ = proxyServer.Shutdown(shutdownCtx)
	cancel()

	if !reg.Wait(shutdownCtx) {
		log.Warn("shutdown deadline exceeded, exiting with tasks still in flight")
	}

	return nil
}

// skipPath wraps a logging middleware so requests carrying header
// never reach it, keeping probe traffic out of the access log.
func skipPath(header string, mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		logged := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(header) != "" {
				next.ServeHTTP(w, r)
				return
			}
			logged.ServeHTTP(w, r)
		})
	}
}

