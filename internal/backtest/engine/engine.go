// Package engine defines the facade through which entry points drive
// multi-strategy backtests: configure once, register strategies and series,
// run, collect the ranked report.
package engine

import (
	"context"

	"github.com/stratsim-lab/stratsim/internal/backtest"
	"github.com/stratsim-lab/stratsim/internal/backtest/datasource"
	"github.com/stratsim-lab/stratsim/internal/strategy"
	"github.com/stratsim-lab/stratsim/internal/types"
)

// Engine runs every loaded strategy against every available price series and
// aggregates the outcomes into one ranked report.
type Engine interface {
	// Initialize parses and validates yaml engine configuration. It must be
	// called before Run.
	Initialize(config string) error

	// SetConfigPath reads the config file at path and initializes from it.
	SetConfigPath(path string) error

	// LoadStrategy registers a strategy. Repeatable; strategy names must be
	// unique within one engine.
	LoadStrategy(s strategy.Strategy) error

	// AddSeries registers a prepared price series. Repeatable; symbols must
	// be unique within one engine.
	AddSeries(series *types.PriceSeries) error

	// SetDataSource attaches a data source. At run time every symbol the
	// source offers is loaded as a series, unless a series with the same
	// symbol was added explicitly.
	SetDataSource(source datasource.DataSource) error

	// SetResultsFolder selects where run artifacts are written. Leaving it
	// unset keeps results in memory only.
	SetResultsFolder(folder string) error

	// Run drives every strategy across every series concurrently and
	// returns the ranked report. Individual run failures are recorded in
	// the report; Run itself errors only on setup problems.
	Run(ctx context.Context, callbacks backtest.RunCallbacks) (*types.Report, error)

	// GetConfigSchema returns the JSON schema for the engine config.
	GetConfigSchema() (string, error)
}
