// Package datasource loads historical OHLCV bars for backtesting. Sources
// read parquet or csv files through DuckDB, the local SQLite bar cache, or
// plain memory. A run materializes its series from a source up front; the
// engine never touches a source mid-run.
package datasource

import (
	"time"

	"github.com/moznion/go-optional"

	"github.com/stratsim-lab/stratsim/internal/types"
)

// DataSource provides read access to historical bar data.
type DataSource interface {
	// Initialize points the source at its backing data. The meaning of path
	// is implementation specific; sources that need no path accept "".
	Initialize(path string) error

	// ReadAll returns a push iterator over every bar inside the optional
	// [start, end] window, ascending by time across all symbols.
	ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.Bar, error) bool)

	// GetRange returns the bars for all symbols within [start, end].
	GetRange(start time.Time, end time.Time) ([]types.Bar, error)

	// ReadLastData returns the most recent bar for the given symbol.
	ReadLastData(symbol string) (types.Bar, error)

	// Count reports how many bars fall inside the optional window.
	Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error)

	// Symbols returns the distinct symbols available, sorted.
	Symbols() ([]string, error)

	// LoadSeries materializes one symbol's bars inside the optional window
	// as an immutable series.
	LoadSeries(symbol string, start, end optional.Option[time.Time]) (*types.PriceSeries, error)

	// Close releases underlying resources.
	Close() error
}

// LoadAllSeries materializes one series per symbol available in the source,
// in the sorted symbol order.
func LoadAllSeries(source DataSource, start, end optional.Option[time.Time]) ([]*types.PriceSeries, error) {
	symbols, err := source.Symbols()
	if err != nil {
		return nil, err
	}

	series := make([]*types.PriceSeries, 0, len(symbols))

	for _, symbol := range symbols {
		s, err := source.LoadSeries(symbol, start, end)
		if err != nil {
			return nil, err
		}

		series = append(series, s)
	}

	return series, nil
}
