// Package writer provides destinations for downloaded market data: a DuckDB
// staging table exported to parquet, a plain CSV file, and a bridge into the
// local bar cache.
package writer

import (
	"github.com/stratsim-lab/stratsim/internal/types"
)

// MarketDataWriter defines the interface for writing bars to a destination.
//
// Lifecycle: the creator calls Initialize exactly once and Close exactly
// once; a provider only calls Write per bar and Finalize when the download
// succeeds. Close without Finalize discards uncommitted data.
type MarketDataWriter interface {
	// Initialize sets up the writer, potentially creating tables or files.
	Initialize() error
	// Write persists a single bar.
	Write(bar types.Bar) error
	// Finalize completes the writing process (e.g., commits transactions, exports files).
	Finalize() (outputPath string, err error)
	// Close releases any resources held by the writer.
	Close() error
	// GetOutputPath returns the configured output file path.
	GetOutputPath() string
}
