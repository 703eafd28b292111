package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/phenotype-matcher/internal/config"
	"github.com/kozaktomas/phenotype-matcher/internal/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis API server",
	Long: `Start the Phenotype Matcher HTTP API.

The server accepts image uploads on POST /api/v1/analyses, runs the full
analysis pipeline and persists a report that can be fetched again from
GET /api/v1/reports/{id}.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// resolveServeHostPort applies the --host and --port flags over the environment.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	resolveServeHostPort(cmd, cfg)

	fmt.Printf("Connecting to PostgreSQL database...\n")
	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	if cfg.Database.HNSWIndexPath != "" {
		fmt.Printf("Reference HNSW index ready with %d references (persisted to %s)\n",
			a.store.references.HNSWCount(), cfg.Database.HNSWIndexPath)
	}

	server := web.NewServer(cfg, web.Dependencies{
		Analyzer:   a.pipeline,
		Reports:    a.assembler,
		Embedding:  a.embedder,
		References: a.store.references,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during shutdown", zap.Error(err))
		}
	}()

	fmt.Printf("Starting Phenotype Matcher API on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	startErr := server.Start()
	if startErr != nil {
		cancel()
	}
	<-done

	// Index and pool are released only after in-flight requests drained.
	a.Close()

	if startErr != nil {
		return fmt.Errorf("starting server: %w", startErr)
	}
	return nil
}
