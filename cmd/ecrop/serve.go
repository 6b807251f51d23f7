package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/ecrop/internal/app"
	"github.com/ternarybob/ecrop/internal/server"
)

var pagesDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web UI",
	Long:  `Serves the upload form, the live workflow log and the run history API.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&pagesDir, "pages", "", "Directory holding the HTML templates (default: auto-detect)")
}

func runServe(cmd *cobra.Command, args []string) error {
	application, err := app.New(config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	if err := application.InitHandlers(pagesDir); err != nil {
		return fmt.Errorf("failed to initialize handlers: %w", err)
	}

	srv := server.New(application)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
		Msg("Server ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info().Msg("Interrupt signal received")
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	if application.Runner.Busy() {
		logger.Warn().Msg("Run still in progress at shutdown; it will be marked interrupted on next start")
	}
	logger.Info().Msg("Server stopped")
	return nil
}
