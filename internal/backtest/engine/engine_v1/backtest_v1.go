package engine

import (
	"context"
	"os"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stratsim-lab/stratsim/internal/backtest"
	"github.com/stratsim-lab/stratsim/internal/backtest/commission"
	"github.com/stratsim-lab/stratsim/internal/backtest/datasource"
	"github.com/stratsim-lab/stratsim/internal/backtest/engine"
	"github.com/stratsim-lab/stratsim/internal/backtest/results"
	"github.com/stratsim-lab/stratsim/internal/logger"
	"github.com/stratsim-lab/stratsim/internal/strategy"
	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// Compile-time interface check.
var _ engine.Engine = (*BacktestEngineV1)(nil)

// BacktestEngineV1 implements engine.Engine on top of the run orchestrator.
// It owns the configuration, the registered strategies and series, and the
// persistence of results; the orchestrator owns the runs themselves.
type BacktestEngineV1 struct {
	config        Config
	strategies    []strategy.Strategy
	series        []*types.PriceSeries
	source        datasource.DataSource
	resultsFolder string
	log           *logger.Logger
	initialized   bool
}

// NewBacktestEngineV1 creates the v1 backtest engine.
func NewBacktestEngineV1() engine.Engine {
	return &BacktestEngineV1{
		log: logger.NewNopLogger(),
	}
}

// Initialize implements engine.Engine.
func (b *BacktestEngineV1) Initialize(config string) error {
	cfg, err := ParseConfig(config)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.NewLogger()
	if err != nil {
		return errors.Wrap(errors.ErrCodeUnknown, "failed to build logger", err)
	}

	b.config = cfg
	b.log = log
	b.initialized = true

	b.log.Debug("Backtest engine initialized",
		zap.Float64("initial_capital", cfg.InitialCapital),
		zap.String("broker", string(cfg.Broker)),
		zap.String("sizing_mode", string(cfg.Sizing.Mode)),
	)

	return nil
}

// SetConfigPath implements engine.Engine.
func (b *BacktestEngineV1) SetConfigPath(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config file %s", path)
	}

	return b.Initialize(string(content))
}

// LoadStrategy implements engine.Engine.
func (b *BacktestEngineV1) LoadStrategy(s strategy.Strategy) error {
	if s == nil {
		return errors.New(errors.ErrCodeInvalidParameter, "strategy is nil")
	}

	for _, existing := range b.strategies {
		if existing.Name() == s.Name() {
			return errors.Newf(errors.ErrCodeInvalidParameter, "strategy %s is already loaded", s.Name())
		}
	}

	b.strategies = append(b.strategies, s)
	b.log.Debug("Strategy loaded",
		zap.String("name", s.Name()),
		zap.Int("total_strategies", len(b.strategies)),
	)

	return nil
}

// AddSeries implements engine.Engine. The series is used as given; callers
// clip it to the backtest window themselves when they build series by hand.
func (b *BacktestEngineV1) AddSeries(series *types.PriceSeries) error {
	if series == nil {
		return errors.New(errors.ErrCodeInvalidParameter, "series is nil")
	}

	for _, existing := range b.series {
		if existing.Symbol() == series.Symbol() {
			return errors.Newf(errors.ErrCodeInvalidParameter, "a series for %s is already added", series.Symbol())
		}
	}

	b.series = append(b.series, series)
	b.log.Debug("Series added",
		zap.String("symbol", series.Symbol()),
		zap.Int("bars", series.Len()),
	)

	return nil
}

// SetDataSource implements engine.Engine.
func (b *BacktestEngineV1) SetDataSource(source datasource.DataSource) error {
	if source == nil {
		return errors.New(errors.ErrCodeInvalidParameter, "data source is nil")
	}

	b.source = source

	return nil
}

// SetResultsFolder implements engine.Engine.
func (b *BacktestEngineV1) SetResultsFolder(folder string) error {
	b.resultsFolder = folder

	return nil
}

// Run implements engine.Engine.
func (b *BacktestEngineV1) Run(ctx context.Context, callbacks backtest.RunCallbacks) (*types.Report, error) {
	if err := b.preRunCheck(); err != nil {
		return nil, err
	}

	series, err := b.collectSeries()
	if err != nil {
		return nil, err
	}

	sizer, err := backtest.NewSizer(b.config.Sizing.Mode, decimal.NewFromFloat(b.config.Sizing.Fraction))
	if err != nil {
		return nil, err
	}

	orchestrator, err := backtest.NewOrchestrator(
		decimal.NewFromFloat(b.config.InitialCapital),
		sizer,
		commission.GetFeeHandler(b.config.Broker),
		b.log,
	)
	if err != nil {
		return nil, err
	}

	pairs := make([]backtest.Pair, 0, len(b.strategies)*len(series))

	for _, strat := range b.strategies {
		for _, s := range series {
			pairs = append(pairs, backtest.Pair{Strategy: strat, Series: s})
		}
	}

	report, err := orchestrator.Run(ctx, pairs, callbacks)
	if err != nil {
		return nil, err
	}

	if b.resultsFolder != "" {
		if err := b.writeResults(report); err != nil {
			return nil, err
		}
	}

	return report, nil
}

// GetConfigSchema implements engine.Engine.
func (b *BacktestEngineV1) GetConfigSchema() (string, error) {
	return b.config.GenerateSchemaJSON()
}

// preRunCheck rejects a run before any goroutine starts. Setup errors are
// the engine caller's to fix; only per-run failures are isolated into the
// report.
func (b *BacktestEngineV1) preRunCheck() error {
	if !b.initialized {
		return errors.New(errors.ErrCodeEngineNotReady, "engine is not initialized; call Initialize first")
	}

	if len(b.strategies) == 0 {
		return errors.New(errors.ErrCodeNoStrategies, "no strategies loaded")
	}

	if len(b.series) == 0 && b.source == nil {
		return errors.New(errors.ErrCodeNoSeries, "no price series added and no data source set")
	}

	return nil
}

// collectSeries merges explicitly added series with series loaded from the
// data source. Explicit series win on symbol collisions; the config window
// bounds what the source loads.
func (b *BacktestEngineV1) collectSeries() ([]*types.PriceSeries, error) {
	series := make([]*types.PriceSeries, 0, len(b.series))
	series = append(series, b.series...)

	if b.source == nil {
		return series, nil
	}

	seen := make(map[string]bool, len(series))
	for _, s := range series {
		seen[s.Symbol()] = true
	}

	loaded, err := datasource.LoadAllSeries(b.source, b.config.StartTime, b.config.EndTime)
	if err != nil {
		return nil, err
	}

	for _, s := range loaded {
		if seen[s.Symbol()] {
			continue
		}

		series = append(series, s)
	}

	return series, nil
}

// writeResults clears the results folder, persists every completed run, and
// writes the session report.
func (b *BacktestEngineV1) writeResults(report *types.Report) error {
	if err := os.RemoveAll(b.resultsFolder); err != nil {
		return errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to clear results folder %s", b.resultsFolder)
	}

	if err := os.MkdirAll(b.resultsFolder, 0755); err != nil {
		return errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to create results folder %s", b.resultsFolder)
	}

	store, err := results.NewStore(b.resultsFolder, b.log)
	if err != nil {
		return err
	}
	defer store.Close()

	saved := 0

	for _, result := range report.Results {
		if result.Failed() {
			continue
		}

		if _, err := store.SaveRun(result); err != nil {
			return err
		}

		saved++
	}

	if _, err := store.WriteReport(report); err != nil {
		return err
	}

	b.log.Info("Backtest results written",
		zap.String("folder", b.resultsFolder),
		zap.Int("saved_runs", saved),
		zap.Int("total_runs", len(report.Results)),
	)

	return nil
}
