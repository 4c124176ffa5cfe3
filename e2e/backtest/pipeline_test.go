// Package e2e drives the whole pipeline end to end: bars are synced from a
// Binance-compatible mock server into the SQLite cache, served to the
// engine through the store data source, and the multi-strategy report is
// persisted to disk.
package e2e

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/stratsim-lab/stratsim/internal/backtest"
	"github.com/stratsim-lab/stratsim/internal/backtest/datasource"
	"github.com/stratsim-lab/stratsim/internal/backtest/engine"
	enginev1 "github.com/stratsim-lab/stratsim/internal/backtest/engine/engine_v1"
	"github.com/stratsim-lab/stratsim/internal/logger"
	"github.com/stratsim-lab/stratsim/internal/store"
	"github.com/stratsim-lab/stratsim/internal/strategy"
	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/marketdata"
	"github.com/stratsim-lab/stratsim/pkg/marketdata/mockserver"
	"github.com/stratsim-lab/stratsim/pkg/marketdata/provider"
)

const engineConfig = `initial_capital: 10000
broker: zero
sizing:
  mode: one_share
`

type PipelineE2ETestSuite struct {
	suite.Suite
	server    *mockserver.MockServer
	tempDir   string
	cachePath string
	start     time.Time
	end       time.Time
}

func TestPipelineE2ESuite(t *testing.T) {
	suite.Run(t, new(PipelineE2ETestSuite))
}

// SetupSuite starts the mock server and syncs two symbols of daily bars
// into a fresh SQLite cache. Every test then reads from that cache.
func (suite *PipelineE2ETestSuite) SetupSuite() {
	config := mockserver.DefaultConfig()
	config.Symbols = []string{"BTCUSDT", "ETHUSDT"}

	suite.server = mockserver.NewMockServer(config)
	suite.Require().NoError(suite.server.Start())

	tempDir, err := os.MkdirTemp("", "stratsim-e2e")
	suite.Require().NoError(err)
	suite.tempDir = tempDir
	suite.cachePath = filepath.Join(tempDir, "bars.db")

	suite.start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	suite.end = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	binance, err := provider.NewBinanceClientWithEndpoints(provider.BinanceEndpointConfig{
		RestBaseURL: suite.server.BaseURL(),
	})
	suite.Require().NoError(err)

	client, err := marketdata.NewClientWithProvider(marketdata.ClientConfig{
		ProviderType: marketdata.ProviderBinance,
		WriterType:   marketdata.WriterCSV,
		DataPath:     tempDir,
	}, binance, nil, logger.NewNopLogger())
	suite.Require().NoError(err)

	barStore, err := store.NewSQLiteStore(suite.cachePath, logger.NewNopLogger())
	suite.Require().NoError(err)

	for _, symbol := range []string{"BTCUSDT", "ETHUSDT"} {
		err := client.Sync(context.Background(), barStore, marketdata.SyncParams{
			Ticker:    symbol,
			StartDate: suite.start,
			EndDate:   suite.end,
			Timespan:  marketdata.TimespanOneDay,
		})
		suite.Require().NoError(err)
	}

	suite.Require().NoError(barStore.Close())
}

func (suite *PipelineE2ETestSuite) TearDownSuite() {
	suite.Require().NoError(suite.server.Stop())
	suite.Require().NoError(os.RemoveAll(suite.tempDir))
}

// openCache opens the synced cache read side for one test.
func (suite *PipelineE2ETestSuite) openCache() *store.SQLiteStore {
	barStore, err := store.NewSQLiteStore(suite.cachePath, logger.NewNopLogger())
	suite.Require().NoError(err)

	return barStore
}

// buildEngine wires a fresh engine over the cache with a threshold and an
// SMA crossover strategy. The caller owns closing the returned source.
func (suite *PipelineE2ETestSuite) buildEngine(source datasource.DataSource, resultsFolder string) engine.Engine {
	eng := enginev1.NewBacktestEngineV1()
	suite.Require().NoError(eng.Initialize(engineConfig))

	registry := strategy.DefaultRegistry()

	threshold, err := registry.Create("threshold", "buy_below: 49900\nsell_above: 50200\n")
	suite.Require().NoError(err)

	crossover, err := registry.Create("sma_crossover", "fast: 3\nslow: 8\n")
	suite.Require().NoError(err)

	suite.Require().NoError(eng.LoadStrategy(threshold))
	suite.Require().NoError(eng.LoadStrategy(crossover))
	suite.Require().NoError(eng.SetDataSource(source))

	if resultsFolder != "" {
		suite.Require().NoError(eng.SetResultsFolder(resultsFolder))
	}

	return eng
}

func (suite *PipelineE2ETestSuite) TestSyncedCacheHoldsOrderedDailyBars() {
	barStore := suite.openCache()
	defer barStore.Close()

	symbols, err := barStore.Symbols(context.Background())
	suite.Require().NoError(err)
	suite.Equal([]string{"BTCUSDT", "ETHUSDT"}, symbols)

	bars, err := barStore.GetBars(context.Background(), "BTCUSDT",
		optional.None[time.Time](), optional.None[time.Time]())
	suite.Require().NoError(err)
	suite.NotEmpty(bars)

	suite.True(bars[0].Time.Equal(suite.start))

	for i := 1; i < len(bars); i++ {
		suite.Equal(24*time.Hour, bars[i].Time.Sub(bars[i-1].Time))
	}
}

func (suite *PipelineE2ETestSuite) TestFullPipelineProducesRankedPersistedReport() {
	barStore := suite.openCache()
	source := datasource.NewStore(barStore)
	defer source.Close()

	resultsFolder := filepath.Join(suite.tempDir, "results")
	eng := suite.buildEngine(source, resultsFolder)

	report, err := eng.Run(context.Background(), backtest.RunCallbacks{})
	suite.Require().NoError(err)

	// Two strategies across two symbols.
	suite.Require().Len(report.Results, 4)

	for _, result := range report.Results {
		suite.Equal(types.RunStatusCompleted, result.Status)

		// ROI is derived from the same books as the final equity.
		expectedROI := result.FinalEquity.Sub(result.StartingCapital).Div(result.StartingCapital)
		suite.True(expectedROI.Equal(result.ROI),
			"run %s: roi %s does not match equity %s", result.ID, result.ROI, result.FinalEquity)

		// The equity curve covers every bar of the series.
		suite.NotEmpty(result.EquityCurve)
	}

	// The ranking is descending by ROI.
	ranking := report.Ranking()
	for i := 1; i < len(ranking); i++ {
		suite.True(ranking[i-1].ROI.GreaterThanOrEqual(ranking[i].ROI))
	}

	// Session artifacts land on disk: one report plus per-run folders.
	suite.FileExists(filepath.Join(resultsFolder, "report.yaml"))

	for _, result := range report.Results {
		runFolder := filepath.Join(resultsFolder, result.Strategy, result.Symbol)
		suite.FileExists(filepath.Join(runFolder, "stats.yaml"))
		suite.FileExists(filepath.Join(runFolder, "trades.parquet"))
		suite.FileExists(filepath.Join(runFolder, "equity.parquet"))
	}
}

func (suite *PipelineE2ETestSuite) TestPipelineIsDeterministic() {
	run := func() *types.Report {
		barStore := suite.openCache()
		source := datasource.NewStore(barStore)
		defer source.Close()

		eng := suite.buildEngine(source, "")

		report, err := eng.Run(context.Background(), backtest.RunCallbacks{})
		suite.Require().NoError(err)

		return report
	}

	first := run()
	second := run()

	suite.Require().Len(second.Results, len(first.Results))

	for i := range first.Results {
		a, b := first.Results[i], second.Results[i]

		suite.Equal(a.ID, b.ID)
		suite.True(a.ROI.Equal(b.ROI))
		suite.True(a.FinalEquity.Equal(b.FinalEquity))
		suite.Equal(a.Trades, b.Trades)
		suite.Equal(a.EquityCurve, b.EquityCurve)
	}
}
