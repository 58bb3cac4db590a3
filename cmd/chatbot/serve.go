package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"enterprise-chatbot/internal/handlers"
	"enterprise-chatbot/internal/httpserver"
	"enterprise-chatbot/internal/loadtest"
	"enterprise-chatbot/internal/metrics"
)

func newServeCmd(configPath *string) *cobra.Command {
	var startLoadTest bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chatbot HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg.Server.Port, startLoadTest, func() (*app, error) {
				return newApp(ctx, cfg, logger)
			}, logger)
		},
	}
	cmd.Flags().BoolVar(&startLoadTest, "loadtest", false, "start a background load test once the server is up")
	return cmd
}

func serve(ctx context.Context, port string, startLoadTest bool, build func() (*app, error), logger *zap.Logger) (err error) {
	metrics.Register()

	a, err := build()
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, a.Close())
	}()

	g, gctx := errgroup.WithContext(ctx)

	runner := loadtest.NewRunner(gctx, a.loadTestConfig(), a.coordinator, logger)
	api := handlers.NewAPIHandler(a.coordinator, a.scaler, a.engine, runner)

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, api, httpserver.Options{
		RequestTimeout: a.cfg.Server.RequestTimeout,
		MaxBodyBytes:   a.cfg.Server.MaxBodyBytes,
	})

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      a.cfg.Server.RequestTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting chatbot",
		zap.String("addr", srv.Addr),
		zap.String("cache_backend", a.cfg.Cache.Backend),
		zap.Bool("audit", a.recorder != nil),
	)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if startLoadTest {
		if err := runner.Start(0); err != nil {
			logger.Warn("startup load test not started", zap.Error(err))
		}
	}

	// ----- Graceful shutdown -----
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// the runner's base context is gctx, so it is already stopping
		runner.Wait()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
			return err
		}
		logger.Info("server shutdown complete")
		return nil
	})

	return g.Wait()
}
