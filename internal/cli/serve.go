package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/mediadesk/internal/bootstrap"
	"github.com/maauso/mediadesk/internal/server"
)

const shutdownTimeout = 30 * time.Second

func (a *app) serveCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Port = port
				if err := a.cfg.Validate(); err != nil {
					return err
				}
			}
			return a.serve(cmd.Context(), net.JoinHostPort(host, strconv.Itoa(a.cfg.Port)))
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default $PORT)")
	cmd.Flags().StringVar(&host, "host", "", "listen address, empty for all interfaces")
	return cmd
}

// serve runs the API until ctx is cancelled, then drains in-flight
// requests and background jobs.
func (a *app) serve(ctx context.Context, addr string) error {
	logger := a.logger
	logger.Info("starting mediadesk API",
		slog.String("addr", addr),
		slog.String("output_dir", a.cfg.OutputDir),
		slog.String("temp_dir", a.cfg.TempDir),
		slog.String("log_format", a.cfg.LogFormat),
		slog.Bool("s3_enabled", a.cfg.S3Enabled()),
	)

	if err := a.deps.Service.CheckTools(ctx); err != nil {
		logger.Warn("media tools unavailable, combine and gif jobs will fail",
			slog.String("error", err.Error()),
		)
	}

	handlers := server.NewHandlers(a.deps.Service, a.deps.Store, logger,
		server.WithDefaults(bootstrap.HandlerDefaults(a.cfg)),
	)
	router := server.NewRouter(handlers, logger, server.Config{
		AllowedOrigins: a.cfg.AllowedOrigins,
		MaxBodyBytes:   int64(a.cfg.MaxUploadMB) << 20,
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // large uploads and inline results
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	drained := make(chan struct{})
	go func() {
		a.deps.Service.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		logger.Warn("jobs still running at shutdown")
	}

	logger.Info("server stopped gracefully")
	return nil
}
