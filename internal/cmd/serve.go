package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/optimode/mailprobe/batch"
	"github.com/optimode/mailprobe/internal/server"
)

func (c *cli) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP API with graceful shutdown support.

On SIGINT or SIGTERM the server stops accepting requests, running jobs
stop at their next batch boundary and are marked failed.`,
		Args: cobra.NoArgs,
		RunE: c.runServe,
	}
	cmd.Flags().String("host", "", "listen host (overrides server.host)")
	cmd.Flags().Int("port", 0, "listen port (overrides server.port)")
	c.bindFlag(cmd, "server.host", "host")
	c.bindFlag(cmd, "server.port", "port")
	return cmd
}

func (c *cli) runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := c.load()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("closing job store", zap.Error(err))
		}
	}()

	validator, err := buildValidator(cfg, logger)
	if err != nil {
		return err
	}
	engine := batch.NewEngine(validator, store, batchConfig(cfg), logger)

	srv := server.New(cfg.Server, server.Deps{
		Validator: validator,
		Engine:    engine,
		Logger:    logger,
		Instance:  cfg.Instance.ID,
	})

	logger.Info("Initializing server",
		zap.String("version", versionInfo.Version),
		zap.String("store", cfg.Store.Driver),
		zap.Int("batch_size", cfg.Batch.Size),
		zap.Int("batch_concurrency", cfg.Batch.Concurrency))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		logger.Error("Shutdown incomplete", zap.Error(err))
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
