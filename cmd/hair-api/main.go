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

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/hair-diagnosis-helper/internal/config"
	"github.com/fpang/hair-diagnosis-helper/internal/lambdaboot"
	"github.com/fpang/hair-diagnosis-helper/internal/logging"
)

var portFlag int

var rootCmd = &cobra.Command{
	Use:   "hair-api",
	Short: "Hair diagnosis and styling API server",
	Long: `hair-api serves the diagnosis, synthesis, refinement and gallery
endpoints on a local port. Settings come from the environment or a .env file.

Examples:
  hair-api
  hair-api --port 9090
  BLOB_BACKEND=minio MINIO_ENDPOINT=localhost:9000 hair-api`,
	RunE: runServe,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (default: PORT or 8080)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if portFlag != 0 {
		cfg.Port = portFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := lambdaboot.Build(ctx, "hair-api", cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.PipelineTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Shutdown did not complete")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Starting API server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
