// Command cyrus is the edge orchestrator's entry point: the default
// subcommand starts the daemon (webhook listener + Session Orchestrator);
// the others are one-shot operator utilities against the same config.json.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/go-cyrus/orchestrator/internal/agentrunner"
	"github.com/go-cyrus/orchestrator/internal/config"
	"github.com/go-cyrus/orchestrator/internal/logger"
	"github.com/go-cyrus/orchestrator/internal/orchestrator"
	"github.com/go-cyrus/orchestrator/internal/server"
	"github.com/go-cyrus/orchestrator/internal/session"
	"github.com/go-cyrus/orchestrator/internal/snapshot"
	"github.com/go-cyrus/orchestrator/internal/tracker"
	"github.com/go-cyrus/orchestrator/internal/tunnel"
	"github.com/go-cyrus/orchestrator/internal/workspace"
)

// version is overridden at release-build time via -ldflags.
var version = "dev"

type rootFlags struct {
	envFile   string
	cyrusHome string
}

func main() {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:     "cyrus",
		Short:   "Edge orchestrator bridging tracker issues to local coding agents",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(flags)
		},
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "path to a .env file to load before reading configuration")
	root.PersistentFlags().StringVar(&flags.cyrusHome, "cyrus-home", "", "override $CYRUS_HOME (default ~/.cyrus)")

	root.AddCommand(newCheckTokensCommand(flags))
	root.AddCommand(newRefreshTokenCommand(flags))
	root.AddCommand(newAddRepositoryCommand(flags))
	root.AddCommand(newBillingCommand(flags))
	root.AddCommand(newSetCustomerIDCommand(flags))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadEnvAndHome applies --env-file (if given) to the process environment
// and resolves $CYRUS_HOME, defaulting to ~/.cyrus.
func loadEnvAndHome(flags *rootFlags) (string, error) {
	if flags.envFile != "" {
		if err := godotenv.Load(flags.envFile); err != nil {
			return "", &orchestrator.ConfigError{Detail: "loading --env-file", Err: err}
		}
	}
	if flags.cyrusHome != "" {
		return flags.cyrusHome, nil
	}
	home, err := config.DefaultCyrusHome()
	if err != nil {
		return "", &orchestrator.ConfigError{Detail: "resolving cyrus home", Err: err}
	}
	return home, nil
}

// runDaemon is the default (no-subcommand) behaviour: start the
// orchestrator daemon using $CYRUS_HOME/config.json.
func runDaemon(flags *rootFlags) error {
	cyrusHome, err := loadEnvAndHome(flags)
	if err != nil {
		return err
	}
	if err := config.EnsureHome(cyrusHome); err != nil {
		return &orchestrator.ConfigError{Detail: "creating cyrus home", Err: err}
	}

	log, err := logger.New(logger.Config{Level: "info", Format: "console", OutputPath: "stdout"})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer log.Sync()
	logger.SetDefault(log)

	// Span tracing is ambient observability, not an exported telemetry
	// pipeline (that's an operator-configured concern out of scope here):
	// no exporter is registered, so spans are created, populated, and
	// discarded rather than shipped anywhere.
	tracerProvider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tracerProvider)
	defer func() {
		if shutdownErr := tracerProvider.Shutdown(context.Background()); shutdownErr != nil {
			log.Error("shutting down tracer provider", zap.Error(shutdownErr))
		}
	}()

	globalCfg, err := config.LoadGlobal(cyrusHome)
	if err != nil {
		return &orchestrator.ConfigError{Detail: "loading global config", Err: err}
	}

	fileCfg, err := config.LoadRepositories(cyrusHome, log)
	if err != nil {
		return &orchestrator.ConfigError{Detail: "loading repository config", Err: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := session.NewStore()
	provisioner := workspace.New(fileCfg.GlobalSetupScript, log)
	runner := agentrunner.NewExecRunner("claude", log)
	trackerClient := tracker.NewMockClient() // real GraphQL client is an out-of-scope external collaborator

	var orch *orchestrator.Orchestrator
	writer := snapshot.NewWriter(config.SnapshotPath(cyrusHome), func() *snapshot.Document {
		return orch.SnapshotDocument(config.ConfigPath(cyrusHome))
	}, log)

	orch = orchestrator.New(orchestrator.Deps{
		Log:         log,
		Store:       store,
		Provisioner: provisioner,
		Runner:      runner,
		Tracker:     trackerClient,
		Writer:      writer,
	})

	reposByID := make(map[string]config.RepositoryConfig, len(fileCfg.Repositories))
	for _, r := range fileCfg.Repositories {
		reposByID[r.ID] = r
	}

	if doc, derr := snapshot.Load(config.SnapshotPath(cyrusHome), config.ConfigPath(cyrusHome), log); derr != nil {
		log.Error("loading snapshot", zap.Error(derr))
	} else {
		orch.Restore(ctx, doc, reposByID)
	}

	dispatcher := server.NewDispatcher(log, orch, trackerClient, fileCfg.Repositories)

	tunnelProvider := tunnel.Provider(tunnel.NewNoop(globalCfg.BaseURL))
	srv := server.New(log, server.Config{
		Port:          globalCfg.ServerPort,
		HostExternal:  globalCfg.HostExternal,
		BaseURL:       globalCfg.BaseURL,
		WebhookSecret: []byte(globalCfg.LinearOAuthToken),
	}, dispatcher, tunnelProvider)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	serveErr := srv.Start(ctx)
	if shutdownErr := orch.Shutdown(context.Background()); shutdownErr != nil {
		log.Error("orchestrator shutdown", zap.Error(shutdownErr))
	}
	return serveErr
}
