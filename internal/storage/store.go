package storage

import (
	"context"
	"fmt"
)

// WatermarkStore keeps the single "last notified update time" token.
// It is last-write-wins and does not enforce monotonicity.
type WatermarkStore interface {
	// Read returns ok=false when nothing has been written yet.
	Read(ctx context.Context) (token string, ok bool, err error)
	Write(ctx context.Context, token string) error
	Close() error
}

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Open returns the store for driver, rooted at path.
func Open(ctx context.Context, driver, path string) (WatermarkStore, error) {
	switch driver {
	case "", DriverFile:
		return NewFileStore(path), nil
	case DriverSQLite:
		return OpenSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
