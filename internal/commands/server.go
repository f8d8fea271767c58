package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/divergence-scanner/internal/app"
	"github.com/spf13/cobra"
)

var (
	serverPort int
	serverHost string
	logLevel   string
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the divergence HTTP service",
	Long: `Start the divergence scanner HTTP service.

Endpoints:
• GET /divergences   latest scan results, rescanned when older than CACHE_TTL
• GET /health        liveness probe

Both are also served under /api/v1. When REFRESH_CRON is set the cache is
refreshed in the background on that schedule.

Examples:
  divergence-scanner server                    # Start with default settings
  divergence-scanner server --port 9090        # Start on custom port
  divergence-scanner server --log-level debug  # Enable debug logging`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// Server-specific flags
	serverCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Server port (overrides SERVER_PORT)")
	serverCmd.Flags().StringVarP(&serverHost, "host", "H", "", "Server host (overrides SERVER_HOST)")
	serverCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
}

func runServer(cmd *cobra.Command, args []string) error {
	if logLevel != "" {
		os.Setenv("LOG_LEVEL", logLevel)
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}

	// Override config with command line flags if provided
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	log.WithField("address", cfg.GetServerAddr()).Info("Starting divergence scanner")

	application := app.New(cfg, log)

	if err := application.Initialize(); err != nil {
		log.WithError(err).Error("Failed to initialize application")
		return err
	}

	if err := application.Start(); err != nil {
		log.WithError(err).Error("Failed to start application")
		return err
	}

	// Wait for interrupt signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-interrupt
	log.WithField("signal", sig.String()).Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	shutdownComplete := make(chan struct{})

	go func() {
		if err := application.Stop(); err != nil {
			log.WithError(err).Error("Application shutdown error")
		}
		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		log.Info("Application shutdown complete")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout - forcing exit")
		os.Exit(1)
	}

	return nil
}
