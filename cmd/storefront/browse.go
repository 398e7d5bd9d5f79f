package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/storefront/internal/browse"
	"github.com/fairyhunter13/storefront/internal/obs"
)

func newBrowseCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse the catalog and manage the cart from the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			// JSON logs would interleave with the listing output.
			if flags.logLevel == "" {
				cfg.LogLevel = "error"
			}
			obs.InitLogger(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			c, err := buildCore(context.WithoutCancel(ctx), cfg)
			if err != nil {
				return err
			}
			go c.catalog.Run(ctx, cfg.CacheSweepInterval)

			b := browse.New(c.catalog, c.ledger, c.coordinator, cmd.OutOrStdout(), cfg.SearchDebounce)
			err = b.Run(ctx, cmd.InOrStdin())
			if errors.Is(err, context.Canceled) {
				err = nil
			}

			ctxDrain, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			c.drain(ctxDrain)
			return err
		},
	}
}
