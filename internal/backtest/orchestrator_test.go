package backtest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

type OrchestratorTestSuite struct {
	suite.Suite
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}

func (suite *OrchestratorTestSuite) mustOrchestrator(capital string) *Orchestrator {
	orch, err := NewOrchestrator(d(capital), nil, nil, nil)
	suite.Require().NoError(err)

	return orch
}

func (suite *OrchestratorTestSuite) TestNewOrchestratorRejectsBadCapital() {
	_, err := NewOrchestrator(decimal.Zero, nil, nil, nil)
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidCapital))

	_, err = NewOrchestrator(d("-5"), nil, nil, nil)
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidCapital))
}

func (suite *OrchestratorTestSuite) TestRanksRunsByRoi() {
	series := mustSeries(suite.T(), "AAPL", 10, 8, 12, 9, 15)

	// All three buy below 9 on day 2; they differ in when (or whether) they
	// get out: eager exits at 15, patient at 12, idle never enters.
	eager := thresholdStrategy(suite.T(), "eager", "9", "15")
	patient := thresholdStrategy(suite.T(), "patient", "9", "12")
	idle := thresholdStrategy(suite.T(), "idle", "1", "2")

	orch := suite.mustOrchestrator("1000")

	report, err := orch.Run(context.Background(), []Pair{
		{Strategy: patient, Series: series},
		{Strategy: idle, Series: series},
		{Strategy: eager, Series: series},
	}, RunCallbacks{})
	suite.Require().NoError(err)
	suite.Require().Len(report.Results, 3)
	suite.Assert().False(report.GeneratedAt.IsZero())

	ranking := report.Ranking()
	suite.Require().Len(ranking, 3)
	suite.Assert().Equal("eager", ranking[0].Strategy)
	suite.Assert().Equal("0.007", ranking[0].ROI.String())
	suite.Assert().Equal("patient", ranking[1].Strategy)
	suite.Assert().Equal("0.004", ranking[1].ROI.String())
	suite.Assert().Equal("idle", ranking[2].Strategy)
	suite.Assert().True(ranking[2].ROI.IsZero())

	best, ok := report.Best()
	suite.Require().True(ok)
	suite.Assert().Equal("eager/AAPL", best.ID)

	suite.Assert().Empty(report.Failures())
}

func (suite *OrchestratorTestSuite) TestFailedRunDoesNotDisturbSiblings() {
	good := thresholdStrategy(suite.T(), "threshold", "9", "12")
	aapl := mustSeries(suite.T(), "AAPL", 10, 8, 12, 9, 15)

	empty, err := types.NewPriceSeries("MSFT", nil)
	suite.Require().NoError(err)

	orch := suite.mustOrchestrator("1000")

	report, err := orch.Run(context.Background(), []Pair{
		{Strategy: good, Series: aapl},
		{Strategy: good, Series: empty},
	}, RunCallbacks{})
	suite.Require().NoError(err)

	ranking := report.Ranking()
	suite.Require().Len(ranking, 1)
	suite.Assert().Equal("threshold/AAPL", ranking[0].ID)
	suite.Assert().Equal("0.004", ranking[0].ROI.String())
	suite.Assert().Len(ranking[0].Trades, 2)

	failures := report.Failures()
	suite.Require().Len(failures, 1)
	suite.Assert().Equal("threshold/MSFT", failures[0].ID)
	suite.Assert().Equal("MSFT", failures[0].Symbol)
	suite.Assert().Equal(types.RunStatusFailed, failures[0].Status)
	suite.Assert().NotEmpty(failures[0].Error)
	suite.Assert().Equal("1000", failures[0].StartingCapital.String())
}

func (suite *OrchestratorTestSuite) TestRunRejectsEmptyAndNilPairs() {
	orch := suite.mustOrchestrator("1000")
	strat := thresholdStrategy(suite.T(), "threshold", "9", "12")
	series := mustSeries(suite.T(), "AAPL", 10, 8, 12)

	_, err := orch.Run(context.Background(), nil, RunCallbacks{})
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeNoStrategies))

	_, err = orch.Run(context.Background(), []Pair{{Strategy: nil, Series: series}}, RunCallbacks{})
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidParameter))

	_, err = orch.Run(context.Background(), []Pair{{Strategy: strat, Series: nil}}, RunCallbacks{})
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *OrchestratorTestSuite) TestConcurrentRunsShareNothing() {
	series := mustSeries(suite.T(), "AAPL", 10, 8, 12, 9, 15)

	pairs := make([]Pair, 0, 8)
	for i := 0; i < 8; i++ {
		pairs = append(pairs, Pair{
			Strategy: thresholdStrategy(suite.T(), fmt.Sprintf("w%02d", i), "9", "12"),
			Series:   series,
		})
	}

	var barCalls, endCalls int64
	onBar := OnBarCallback(func(current int, total int) error {
		atomic.AddInt64(&barCalls, 1)

		return nil
	})
	onEnd := OnRunEndCallback(func(result types.RunResult) {
		atomic.AddInt64(&endCalls, 1)
	})

	orch := suite.mustOrchestrator("1000")

	report, err := orch.Run(context.Background(), pairs, RunCallbacks{OnBar: &onBar, OnRunEnd: &onEnd})
	suite.Require().NoError(err)

	suite.Assert().Equal(int64(40), atomic.LoadInt64(&barCalls))
	suite.Assert().Equal(int64(8), atomic.LoadInt64(&endCalls))

	ranking := report.Ranking()
	suite.Require().Len(ranking, 8)

	// Identical ROIs rank by strategy name, and every run kept its own books.
	for i, result := range ranking {
		suite.Assert().Equal(fmt.Sprintf("w%02d", i), result.Strategy)
		suite.Assert().Equal("0.004", result.ROI.String())
		suite.Assert().Equal("1000", result.StartingCapital.String())
		suite.Assert().Len(result.Trades, 2)
	}
}

func (suite *OrchestratorTestSuite) TestRepeatedRunsAreReproducible() {
	series := mustSeries(suite.T(), "AAPL", 10, 8, 12, 9, 15)
	pairs := []Pair{
		{Strategy: thresholdStrategy(suite.T(), "eager", "9", "15"), Series: series},
		{Strategy: thresholdStrategy(suite.T(), "patient", "9", "12"), Series: series},
	}

	orch := suite.mustOrchestrator("1000")

	first, err := orch.Run(context.Background(), pairs, RunCallbacks{})
	suite.Require().NoError(err)

	second, err := orch.Run(context.Background(), pairs, RunCallbacks{})
	suite.Require().NoError(err)

	suite.Require().Len(second.Results, len(first.Results))
	for i := range first.Results {
		suite.Assert().Equal(first.Results[i].ID, second.Results[i].ID)
		suite.Assert().Equal(first.Results[i].Trades, second.Results[i].Trades)
		suite.Assert().Equal(first.Results[i].EquityCurve, second.Results[i].EquityCurve)
		suite.Assert().Equal(first.Results[i].ROI.String(), second.Results[i].ROI.String())
	}
}
