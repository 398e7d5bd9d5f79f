package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/fairyhunter13/storefront/internal/http"
	"github.com/fairyhunter13/storefront/internal/obs"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			obs.InitLogger(cfg.LogLevel)
			obs.Logger.Info("service_starting", "version", version)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// The write loop outlives ctx so it can flush during shutdown.
			c, err := buildCore(context.WithoutCancel(ctx), cfg)
			if err != nil {
				return err
			}
			app := httpapi.NewApp(cfg, c.ledger, c.catalog, c.coordinator, c.writer)
			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           httpapi.NewRouter(app),
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				obs.Logger.Info("http_listen", "addr", cfg.HTTPAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				c.catalog.Run(gctx, cfg.CacheSweepInterval)
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				obs.Logger.Info("shutdown_signal")
				app.StartShutdown()
				obs.Logger.Info("shutdown_drain_begin", "mutations_in_flight", c.coordinator.InFlight())

				ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancelDrain()
				c.drain(ctxDrain)
				obs.Logger.Info("shutdown_drain_complete")

				ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancelSrv()
				if err := srv.Shutdown(ctxSrv); err != nil {
					obs.Logger.Error("http_shutdown_error", "error", err)
				}
				return nil
			})

			err = g.Wait()
			obs.Logger.Info("service_stopped")
			return err
		},
	}
}
