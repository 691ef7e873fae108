package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ulvio/heimdall/internal/alert"
	"github.com/ulvio/heimdall/internal/config"
	"github.com/ulvio/heimdall/internal/dashboard"
	"github.com/ulvio/heimdall/internal/engine"
	"github.com/ulvio/heimdall/internal/logging"
	"github.com/ulvio/heimdall/internal/server"
	"github.com/ulvio/heimdall/internal/storage"
	"github.com/ulvio/heimdall/internal/version"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "heimdall",
		Short:        "Self-hosted component status monitor",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "components.yml", "component file path")

	root.AddCommand(versionCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(statusCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("heimdall %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the status monitor",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// 1. Load settings from the environment.
	settings, err := config.LoadSettings()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	logger, err := logging.New(settings.LogDir, settings.LogLevel)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	// 2. Load the component list.
	comps, err := config.LoadComponents(cfgFile)
	if err != nil {
		return fmt.Errorf("loading components: %w", err)
	}
	for _, rej := range comps.Rejected {
		logger.Warn("component rejected",
			zap.String("component", rej.Name),
			zap.Error(rej.Reason))
	}
	logger.Info("components loaded",
		zap.Int("admitted", len(comps.Definitions)),
		zap.Int("rejected", len(comps.Rejected)))

	// 3. Open the history store and register the component set.
	db, err := storage.Open(settings.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.InitComponents(context.Background(), comps.Definitions); err != nil {
		return fmt.Errorf("registering components: %w", err)
	}

	// 4. Build the engine, seeding the board with whatever the last
	// run persisted so a restart does not re-announce known states.
	board := engine.NewBoard()
	if persisted, err := db.CurrentStatus(context.Background()); err != nil {
		logger.Warn("could not restore persisted status", zap.Error(err))
	} else {
		board.Seed(comps.Definitions, persisted)
	}

	dispatcher := engine.NewDispatcher(comps.Definitions, settings.PollTimeout, logger)
	eng := engine.New(dispatcher, board, db, settings.PollInterval, logger)
	eng.SetStartupDelay(settings.StartupDelay)

	// 5. Signal context for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 6. Alert subscribers, each on its own event channel.
	if settings.Webhook.URL != "" {
		wh := alert.NewWebhook(settings.Webhook.URL, settings.Webhook.Cooldown, logger)
		go wh.Run(ctx, eng.Subscribe(16))
		logger.Info("webhook alerts enabled", zap.String("url", settings.Webhook.URL))
	}
	if settings.SMTP.Server != "" {
		addr := fmt.Sprintf("%s:%d", settings.SMTP.Server, settings.SMTP.Port)
		mailer := alert.NewMailer(addr, settings.SMTP.From, settings.SMTP.Recipient, board, logger)
		go mailer.Run(ctx, eng.Subscribe(16))
		logger.Info("email alerts enabled", zap.String("relay", addr))
	}

	// 7. Live stream hub for websocket clients.
	hub := server.NewHub(logger)
	go hub.Run(ctx, eng.Subscribe(16))

	// 8. API server and dashboard on a single mux.
	apiServer := server.New(board, db, comps.Definitions, hub, logger)
	apiServer.SetRunningFunc(eng.Running)
	mux := http.NewServeMux()
	mux.Handle("/api", apiServer.Router())
	mux.Handle("/api/", apiServer.Router())
	mux.Handle("/", dashboard.Handler())

	httpServer := &http.Server{
		Addr:    settings.Address,
		Handler: mux,
	}

	// 9. Start polling.
	eng.Start(ctx)
	logger.Info("engine started",
		zap.Int("components", dispatcher.Size()),
		zap.Duration("interval", settings.PollInterval))

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("address", settings.Address))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("HTTP server: %w", err)
	}

	// Let an in-flight poll cycle finish before closing the store.
	eng.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run a one-off check of all configured components",
		RunE:  runCheckCmd,
	}
}

func runCheckCmd(cmd *cobra.Command, _ []string) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	comps, err := config.LoadComponents(cfgFile)
	if err != nil {
		return fmt.Errorf("loading components: %w", err)
	}
	return runChecks(cmd.OutOrStdout(), comps, settings.PollTimeout)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current component status from the database",
		RunE:  runStatusCmd,
	}
}

func runStatusCmd(cmd *cobra.Command, _ []string) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	db, err := storage.Open(settings.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	return executeStatus(cmd, db)
}
