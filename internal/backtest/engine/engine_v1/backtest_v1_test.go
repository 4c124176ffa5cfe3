package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/stratsim-lab/stratsim/internal/backtest"
	"github.com/stratsim-lab/stratsim/internal/backtest/datasource"
	"github.com/stratsim-lab/stratsim/internal/backtest/engine"
	"github.com/stratsim-lab/stratsim/internal/strategy"
	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

const testConfigYAML = `
initial_capital: 1000
broker: zero_commission
sizing:
  mode: one_share
`

type BacktestEngineV1TestSuite struct {
	suite.Suite
}

func TestBacktestEngineV1Suite(t *testing.T) {
	suite.Run(t, new(BacktestEngineV1TestSuite))
}

func d(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

// mustSeries builds a daily series where every bar's OHLC collapses to the
// given close.
func mustSeries(t *testing.T, symbol string, closes ...float64) *types.PriceSeries {
	t.Helper()

	bars := make([]types.Bar, 0, len(closes))
	for i, close := range closes {
		bars = append(bars, types.Bar{
			Time:   day(i + 1),
			Symbol: symbol,
			Open:   close,
			High:   close,
			Low:    close,
			Close:  close,
			Volume: 100,
		})
	}

	series, err := types.NewPriceSeries(symbol, bars)
	require.NoError(t, err)

	return series
}

func thresholdStrategy(t *testing.T, name string, buyBelow string, sellAbove string) strategy.Strategy {
	t.Helper()

	strat, err := strategy.NewThreshold(strategy.ThresholdConfig{
		Name:      name,
		BuyBelow:  strategy.Bound{Price: d(buyBelow)},
		SellAbove: strategy.Bound{Price: d(sellAbove)},
	})
	require.NoError(t, err)

	return strat
}

// newEngine returns an initialized engine with the default test config.
func (suite *BacktestEngineV1TestSuite) newEngine() engine.Engine {
	eng := NewBacktestEngineV1()
	suite.Require().NoError(eng.Initialize(testConfigYAML))

	return eng
}

func (suite *BacktestEngineV1TestSuite) TestRunProducesRankedReport() {
	eng := suite.newEngine()

	suite.Require().NoError(eng.LoadStrategy(thresholdStrategy(suite.T(), "threshold", "9", "12")))
	suite.Require().NoError(eng.AddSeries(mustSeries(suite.T(), "AAPL", 10, 8, 12, 9, 15)))

	barsSeen := 0
	onBar := backtest.OnBarCallback(func(current, total int) error {
		barsSeen++

		return nil
	})

	report, err := eng.Run(context.Background(), backtest.RunCallbacks{OnBar: &onBar})
	suite.Require().NoError(err)
	suite.Require().Len(report.Results, 1)

	result := report.Results[0]
	suite.Assert().Equal("threshold/AAPL", result.ID)
	suite.Assert().Equal(types.RunStatusCompleted, result.Status)
	suite.Assert().Equal("1004", result.FinalEquity.String())
	suite.Assert().Equal("0.004", result.ROI.String())
	suite.Assert().Len(result.Trades, 2)
	suite.Assert().Len(result.EquityCurve, 5)
	suite.Assert().Equal(5, barsSeen)
}

func (suite *BacktestEngineV1TestSuite) TestRunIsolatesEmptySeries() {
	eng := suite.newEngine()

	empty, err := types.NewPriceSeries("MSFT", nil)
	suite.Require().NoError(err)

	suite.Require().NoError(eng.LoadStrategy(thresholdStrategy(suite.T(), "threshold", "9", "12")))
	suite.Require().NoError(eng.AddSeries(mustSeries(suite.T(), "AAPL", 10, 8, 12, 9, 15)))
	suite.Require().NoError(eng.AddSeries(empty))

	report, err := eng.Run(context.Background(), backtest.RunCallbacks{})
	suite.Require().NoError(err)
	suite.Require().Len(report.Results, 2)

	ranking := report.Ranking()
	suite.Require().Len(ranking, 1)
	suite.Assert().Equal("threshold/AAPL", ranking[0].ID)

	failures := report.Failures()
	suite.Require().Len(failures, 1)
	suite.Assert().Equal("threshold/MSFT", failures[0].ID)
	suite.Assert().NotEmpty(failures[0].Error)
}

func (suite *BacktestEngineV1TestSuite) TestRunWithoutInitialize() {
	eng := NewBacktestEngineV1()

	_, err := eng.Run(context.Background(), backtest.RunCallbacks{})
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeEngineNotReady))
}

func (suite *BacktestEngineV1TestSuite) TestRunWithoutStrategies() {
	eng := suite.newEngine()
	suite.Require().NoError(eng.AddSeries(mustSeries(suite.T(), "AAPL", 10, 8, 12)))

	_, err := eng.Run(context.Background(), backtest.RunCallbacks{})
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeNoStrategies))
}

func (suite *BacktestEngineV1TestSuite) TestRunWithoutSeriesOrSource() {
	eng := suite.newEngine()
	suite.Require().NoError(eng.LoadStrategy(thresholdStrategy(suite.T(), "threshold", "9", "12")))

	_, err := eng.Run(context.Background(), backtest.RunCallbacks{})
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeNoSeries))
}

func (suite *BacktestEngineV1TestSuite) TestInitializeRejectsBadConfig() {
	eng := NewBacktestEngineV1()

	err := eng.Initialize("initial_capital: -10")
	suite.Require().Error(err)
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidCapital))

	// A failed Initialize leaves the engine unusable.
	_, err = eng.Run(context.Background(), backtest.RunCallbacks{})
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeEngineNotReady))
}

func (suite *BacktestEngineV1TestSuite) TestLoadStrategyRejectsDuplicateAndNil() {
	eng := suite.newEngine()

	suite.Require().NoError(eng.LoadStrategy(thresholdStrategy(suite.T(), "threshold", "9", "12")))

	err := eng.LoadStrategy(thresholdStrategy(suite.T(), "threshold", "5", "20"))
	suite.Require().Error(err)
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidParameter))

	err = eng.LoadStrategy(nil)
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *BacktestEngineV1TestSuite) TestAddSeriesRejectsDuplicateSymbol() {
	eng := suite.newEngine()

	suite.Require().NoError(eng.AddSeries(mustSeries(suite.T(), "AAPL", 10, 8)))

	err := eng.AddSeries(mustSeries(suite.T(), "AAPL", 12, 9))
	suite.Require().Error(err)
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidParameter))

	err = eng.AddSeries(nil)
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *BacktestEngineV1TestSuite) TestSetDataSourceLoadsSeries() {
	source := datasource.NewMemory()
	suite.Require().NoError(source.AddSeries(mustSeries(suite.T(), "AAPL", 10, 8, 12, 9, 15)))
	suite.Require().NoError(source.AddSeries(mustSeries(suite.T(), "MSFT", 10, 10, 10)))

	eng := suite.newEngine()
	suite.Require().NoError(eng.LoadStrategy(thresholdStrategy(suite.T(), "threshold", "9", "12")))
	suite.Require().NoError(eng.SetDataSource(source))

	report, err := eng.Run(context.Background(), backtest.RunCallbacks{})
	suite.Require().NoError(err)
	suite.Require().Len(report.Results, 2)

	ranking := report.Ranking()
	suite.Require().Len(ranking, 2)
	suite.Assert().Equal("threshold/AAPL", ranking[0].ID)
	suite.Assert().Equal("0.004", ranking[0].ROI.String())
	suite.Assert().Equal("threshold/MSFT", ranking[1].ID)
	suite.Assert().True(ranking[1].ROI.IsZero())
}

func (suite *BacktestEngineV1TestSuite) TestExplicitSeriesWinsOverSource() {
	// The source carries a flat AAPL series that would never trade.
	source := datasource.NewMemory()
	suite.Require().NoError(source.AddSeries(mustSeries(suite.T(), "AAPL", 10, 10, 10)))

	eng := suite.newEngine()
	suite.Require().NoError(eng.LoadStrategy(thresholdStrategy(suite.T(), "threshold", "9", "12")))
	suite.Require().NoError(eng.AddSeries(mustSeries(suite.T(), "AAPL", 10, 8, 12, 9, 15)))
	suite.Require().NoError(eng.SetDataSource(source))

	report, err := eng.Run(context.Background(), backtest.RunCallbacks{})
	suite.Require().NoError(err)
	suite.Require().Len(report.Results, 1)

	result := report.Results[0]
	suite.Assert().Equal("0.004", result.ROI.String())
	suite.Assert().Len(result.Trades, 2)
}

func (suite *BacktestEngineV1TestSuite) TestConfigWindowBoundsSourceLoads() {
	source := datasource.NewMemory()
	suite.Require().NoError(source.AddSeries(mustSeries(suite.T(), "AAPL", 10, 8, 12, 9, 15)))

	eng := NewBacktestEngineV1()
	suite.Require().NoError(eng.Initialize(`
initial_capital: 1000
start_time: 2024-01-02T00:00:00Z
end_time: 2024-01-04T00:00:00Z
`))
	suite.Require().NoError(eng.LoadStrategy(thresholdStrategy(suite.T(), "threshold", "9", "12")))
	suite.Require().NoError(eng.SetDataSource(source))

	report, err := eng.Run(context.Background(), backtest.RunCallbacks{})
	suite.Require().NoError(err)
	suite.Require().Len(report.Results, 1)

	// Only days 2 through 4 are visible, so the run buys at 8, sells at 12
	// and holds at 9.
	result := report.Results[0]
	suite.Assert().Len(result.EquityCurve, 3)
	suite.Assert().Len(result.Trades, 2)
	suite.Assert().Equal("0.004", result.ROI.String())
}

func (suite *BacktestEngineV1TestSuite) TestRunWritesResults() {
	folder := filepath.Join(suite.T().TempDir(), "results")
	suite.Require().NoError(os.MkdirAll(folder, 0755))

	stale := filepath.Join(folder, "stale.txt")
	suite.Require().NoError(os.WriteFile(stale, []byte("old session"), 0644))

	eng := suite.newEngine()
	suite.Require().NoError(eng.LoadStrategy(thresholdStrategy(suite.T(), "threshold", "9", "12")))
	suite.Require().NoError(eng.AddSeries(mustSeries(suite.T(), "AAPL", 10, 8, 12, 9, 15)))
	suite.Require().NoError(eng.SetResultsFolder(folder))

	_, err := eng.Run(context.Background(), backtest.RunCallbacks{})
	suite.Require().NoError(err)

	suite.Assert().NoFileExists(stale)

	runDir := filepath.Join(folder, "threshold", "AAPL")
	suite.Assert().FileExists(filepath.Join(runDir, "trades.parquet"))
	suite.Assert().FileExists(filepath.Join(runDir, "equity.parquet"))
	suite.Assert().FileExists(filepath.Join(runDir, "marks.parquet"))
	suite.Assert().FileExists(filepath.Join(runDir, "stats.yaml"))

	reportData, err := os.ReadFile(filepath.Join(folder, "report.yaml"))
	suite.Require().NoError(err)
	suite.Assert().Contains(string(reportData), "threshold/AAPL")
}

func (suite *BacktestEngineV1TestSuite) TestRunInMemoryWhenNoResultsFolder() {
	eng := suite.newEngine()
	suite.Require().NoError(eng.LoadStrategy(thresholdStrategy(suite.T(), "threshold", "9", "12")))
	suite.Require().NoError(eng.AddSeries(mustSeries(suite.T(), "AAPL", 10, 8, 12)))

	report, err := eng.Run(context.Background(), backtest.RunCallbacks{})
	suite.Require().NoError(err)
	suite.Require().Len(report.Results, 1)
	suite.Assert().Equal(types.RunStatusCompleted, report.Results[0].Status)
}

func (suite *BacktestEngineV1TestSuite) TestSetConfigPath() {
	path := filepath.Join(suite.T().TempDir(), "config.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte(testConfigYAML), 0644))

	eng := NewBacktestEngineV1()
	suite.Require().NoError(eng.SetConfigPath(path))

	suite.Require().NoError(eng.LoadStrategy(thresholdStrategy(suite.T(), "threshold", "9", "12")))
	suite.Require().NoError(eng.AddSeries(mustSeries(suite.T(), "AAPL", 10, 8, 12, 9, 15)))

	report, err := eng.Run(context.Background(), backtest.RunCallbacks{})
	suite.Require().NoError(err)
	suite.Assert().Len(report.Results, 1)
}

func (suite *BacktestEngineV1TestSuite) TestSetConfigPathMissingFile() {
	eng := NewBacktestEngineV1()

	err := eng.SetConfigPath(filepath.Join(suite.T().TempDir(), "does-not-exist.yaml"))
	suite.Require().Error(err)
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *BacktestEngineV1TestSuite) TestGetConfigSchema() {
	eng := suite.newEngine()

	schema, err := eng.GetConfigSchema()
	suite.Require().NoError(err)
	suite.Assert().Contains(schema, `"initial_capital"`)
	suite.Assert().Contains(schema, `"broker"`)
}
