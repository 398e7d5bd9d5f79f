// Package store provides durable storage for cart snapshots.
//
// Every driver keeps one snapshot per namespace key and applies saves
// last-write-wins by snapshot revision: a save older than or equal to the
// stored revision is ignored.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fairyhunter13/storefront/internal/model"
)

// DefaultKey is the namespace the cart is persisted under.
const DefaultKey = "cart-storage"

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown storage driver")

// Storage loads and saves the cart snapshot of one namespace.
type Storage interface {
	Load(ctx context.Context) (model.CartSnapshot, bool, error)
	Save(ctx context.Context, s model.CartSnapshot) error
}

// Open builds the storage for driver. For the file driver path is a directory;
// for sqlite it is a directory holding storefront.db.
func Open(driver, path, key string) (Storage, error) {
	if key == "" {
		key = DefaultKey
	}
	switch driver {
	case "memory":
		return NewMemory(key), nil
	case "file":
		return NewFile(path, key)
	case "sqlite":
		return OpenSQLite(filepath.Join(path, "storefront.db"), key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// supersedes reports whether an incoming revision may replace the stored one.
func supersedes(incoming, stored uint64, hasStored bool) bool {
	if !hasStored {
		return true
	}
	return incoming > stored
}
