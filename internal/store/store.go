// Package store persists downloaded OHLCV bars in a local cache so market
// data is fetched from remote providers once and reused across backtests.
package store

import (
	"context"
	"time"

	"github.com/moznion/go-optional"

	"github.com/stratsim-lab/stratsim/internal/types"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// SaveBars persists a batch of bars. A bar that shares its (symbol, time)
	// key with a stored row replaces that row.
	SaveBars(ctx context.Context, bars []types.Bar) error

	// GetBars returns the bars for symbol inside the optional [start, end]
	// window, ascending by time.
	GetBars(ctx context.Context, symbol string, start, end optional.Option[time.Time]) ([]types.Bar, error)

	// LatestBarTime reports the most recent bar time stored for symbol, or
	// None when the cache holds no bars for it. Incremental refreshes fetch
	// only bars after this point.
	LatestBarTime(ctx context.Context, symbol string) (optional.Option[time.Time], error)

	// Symbols returns all distinct symbols in the cache, sorted.
	Symbols(ctx context.Context) ([]string, error)

	// Close releases the underlying storage.
	Close() error
}
