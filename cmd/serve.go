package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Taichi-iskw/ytscribe/internal/api"
	"github.com/Taichi-iskw/ytscribe/internal/app"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Start the transcript HTTP API. The server drains in-flight requests on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := app.Load()
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		ctx := context.Background()
		svc, cleanup, err := app.NewServiceFactory(cfg, logger).CreateService(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		server := api.NewServer(svc, cfg.Server, logger)

		shutdownChan := make(chan os.Signal, 1)
		signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdownChan)

		errChan := make(chan error, 1)
		go func() {
			logger.WithFields(logrus.Fields{
				"addr":    cfg.Server.Addr,
				"storage": cfg.Storage.Driver,
				"speech":  cfg.Speech.Provider,
			}).Info("server starting")
			errChan <- server.Listen(cfg.Server.Addr)
		}()

		select {
		case err := <-errChan:
			return fmt.Errorf("server error: %w", err)
		case sig := <-shutdownChan:
			logger.WithField("signal", sig.String()).Info("shutting down server")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.ShutdownWithContext(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		logger.Info("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
