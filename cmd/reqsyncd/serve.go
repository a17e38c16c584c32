package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/clubworks/reqsync/internal/config"
	"github.com/clubworks/reqsync/internal/github"
	"github.com/clubworks/reqsync/internal/request"
	"github.com/clubworks/reqsync/internal/storage"
	"github.com/clubworks/reqsync/internal/storage/memory"
	"github.com/clubworks/reqsync/internal/storage/mysql"
	"github.com/clubworks/reqsync/internal/telemetry"
	"github.com/clubworks/reqsync/internal/tracker"
	"github.com/clubworks/reqsync/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server and reconciliation scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func logMsg(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[reqsyncd] %s\n", fmt.Sprintf(format, args...))
}

func logWarn(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[reqsyncd] warning: %s\n", fmt.Sprintf(format, args...))
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, err := config.NewManager(configPath)
	if err != nil {
		return err
	}
	mgr.OnWarning = func(msg string) { logWarn("%s", msg) }
	mgr.OnReload = func(*config.Settings) {
		logMsg("configuration reloaded; tracker and store settings apply on restart")
	}
	cfg := mgr.Current()

	if err := telemetry.Init(ctx, "reqsyncd", Version); err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(sctx)
	}()
	metrics := telemetry.NewSyncMetrics()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	port := buildPort(cfg, metrics)

	reconciler := tracker.NewReconciler(store, port)
	reconciler.Interval = cfg.Reconcile.Interval
	reconciler.StartupDelay = cfg.Reconcile.StartupDelay
	reconciler.CallDelay = cfg.Reconcile.CallDelay
	reconciler.OnMessage = func(msg string) { logMsg("%s", msg) }
	reconciler.OnWarning = func(msg string) { logWarn("%s", msg) }
	reconciler.Metrics = metrics

	svc := request.NewService(store, port)
	svc.Resync = reconciler
	svc.OnMessage = func(msg string) { logMsg("%s", msg) }
	svc.OnWarning = func(msg string) { logWarn("%s", msg) }

	server := webhook.NewServer(webhook.ServerConfig{
		Store:     store,
		Requests:  svc,
		Secret:    []byte(cfg.GitHub.WebhookSecret),
		OnMessage: func(msg string) { logMsg("%s", msg) },
		OnWarning: func(msg string) { logWarn("%s", msg) },
		Metrics:   metrics,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logMsg("listening on %s", cfg.ListenAddr)
		if err := server.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("webhook server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(sctx)
	})

	g.Go(func() error {
		reconciler.Run(gctx)
		return nil
	})

	g.Go(func() error {
		err := mgr.Watch(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	err = g.Wait()

	// Let fire-and-forget pushes land before the store goes away.
	svc.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logMsg("shutdown complete")
	return nil
}

// openStore selects the store backend from configuration.
func openStore(ctx context.Context, cfg *config.Settings) (storage.RequestStore, error) {
	switch cfg.Store.Driver {
	case config.DriverMySQL:
		store, err := mysql.New(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening mysql store: %w", err)
		}
		return store, nil
	case config.DriverMemory:
		logMsg("using in-memory store; data does not survive restarts")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// buildPort wires the outbound sync port, honoring a base URL override for
// GitHub Enterprise installs. Missing coordinates select the no-op port.
func buildPort(cfg *config.Settings, metrics *telemetry.SyncMetrics) tracker.OutboundSyncPort {
	if !cfg.SyncConfigured() {
		logWarn("github sync disabled: token or repository not configured")
		return tracker.NoopPort{}
	}
	client := github.NewClient(cfg.GitHub.Token, cfg.GitHub.Owner, cfg.GitHub.Repo)
	if cfg.GitHub.APIBaseURL != "" {
		client = client.WithBaseURL(cfg.GitHub.APIBaseURL)
	}
	port := tracker.NewGitHubPort(client)
	port.OnWarning = func(msg string) { logWarn("%s", msg) }
	port.Metrics = metrics
	return port
}
