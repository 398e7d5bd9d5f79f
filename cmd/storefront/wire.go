package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fairyhunter13/storefront/internal/cart"
	"github.com/fairyhunter13/storefront/internal/catalog"
	"github.com/fairyhunter13/storefront/internal/config"
	"github.com/fairyhunter13/storefront/internal/obs"
	"github.com/fairyhunter13/storefront/internal/optimistic"
	"github.com/fairyhunter13/storefront/internal/persist"
	"github.com/fairyhunter13/storefront/internal/store"
)

// core is the cart, catalog and coordinator shared by serve and browse.
type core struct {
	ledger      *cart.Ledger
	catalog     *catalog.Catalog
	coordinator *optimistic.Coordinator
	writer      *persist.Writer
	storage     store.Storage
}

func buildCore(ctx context.Context, cfg config.Config) (*core, error) {
	st, err := store.Open(cfg.StorageDriver, cfg.StoragePath, cfg.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	w := persist.New(st, 0)
	l, err := cart.Open(ctx, st, w)
	if err != nil {
		closeStorage(st)
		return nil, err
	}
	w.Start(ctx)

	hc := &http.Client{Timeout: cfg.CatalogTimeout}
	cat := catalog.New(catalog.NewClient(cfg.CatalogBaseURL, hc), catalog.Options{
		PageSize:          cfg.PageSize,
		ProductStaleTime:  cfg.ProductStaleTime,
		ProductGCTime:     cfg.ProductGCTime,
		CategoryStaleTime: cfg.CategoryStaleTime,
		CategoryGCTime:    cfg.CategoryGCTime,
		FetchTimeout:      cfg.CatalogTimeout,
	})

	var confirm optimistic.Confirmer
	switch cfg.ConfirmMode {
	case config.ConfirmHTTP:
		confirm = optimistic.NewHTTPConfirmer(cfg.CatalogBaseURL, cfg.ConfirmUserID, hc)
	default:
		confirm = optimistic.NewSimulated(cfg.ConfirmDelay, cfg.ConfirmFailureRate, time.Now().UnixNano())
	}
	co := optimistic.New(l, cat.ProductCache(), confirm, optimistic.Options{
		RollbackMode:   cfg.RollbackMode,
		ConfirmTimeout: cfg.CatalogTimeout,
	})

	obs.Logger.Info("core_ready",
		"storage_driver", cfg.StorageDriver,
		"confirm_mode", cfg.ConfirmMode,
		"rollback_mode", cfg.RollbackMode,
		"cart_lines", len(l.Items()),
	)
	return &core{ledger: l, catalog: cat, coordinator: co, writer: w, storage: st}, nil
}

// drain waits for unsettled mutations, then flushes the last cart snapshot.
//
// When mutations are still in flight at the deadline, storage stays open so
// their late rollbacks, which the stopped writer saves on their own
// goroutines, can still reach it before the process exits.
func (c *core) drain(ctx context.Context) {
	drained := c.coordinator.DrainUntil(ctx)
	c.writer.Stop()
	if !drained {
		obs.Logger.Warn("shutdown_drain_timeout", "mutations_in_flight", c.coordinator.InFlight())
		return
	}
	closeStorage(c.storage)
}

func closeStorage(st store.Storage) {
	if cl, ok := st.(io.Closer); ok {
		if err := cl.Close(); err != nil {
			obs.Logger.Warn("storage_close_failed", "error", err)
		}
	}
}
