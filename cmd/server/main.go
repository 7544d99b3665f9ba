package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/laasker/mod-arena-3v3-solo-queue/internal/config"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/constants"
	fxmodules "github.com/laasker/mod-arena-3v3-solo-queue/internal/fx"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/server"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/service"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module(fx.Invoke(runServer)),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	arena *server.ArenaServer,
	orch *service.Orchestrator,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-ID"},
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           c.Handler(arena.Routes()),
		ReadHeaderTimeout: constants.RequestTimeout,
	}

	runCtx, stopScheduler := context.WithCancel(context.Background())
	schedulerDone := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(schedulerDone)
				orch.Run(runCtx)
			}()
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			stopScheduler()
			select {
			case <-schedulerDone:
			case <-shutdownCtx.Done():
				logger.Warn().Msg("queue scheduler did not stop in time")
			}

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}

			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}
			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
