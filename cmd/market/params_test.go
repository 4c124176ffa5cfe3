package main

import (
	"testing"
	"time"

	"github.com/polygon-io/client-go/rest/models"
	"github.com/stretchr/testify/suite"
)

type ParamsTestSuite struct {
	suite.Suite
	start time.Time
	end   time.Time
}

func (suite *ParamsTestSuite) SetupTest() {
	suite.start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	suite.end = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
}

func (suite *ParamsTestSuite) TestDailyInterval() {
	params, err := buildDownloadParams("AAPL", suite.start, suite.end, "1d")
	suite.Require().NoError(err)

	suite.Equal("AAPL", params.Ticker)
	suite.Equal(1, params.Multiplier)
	suite.Equal(models.Day, params.Timespan)
}

func (suite *ParamsTestSuite) TestIntradayInterval() {
	params, err := buildDownloadParams("SPY", suite.start, suite.end, "15m")
	suite.Require().NoError(err)

	suite.Equal(15, params.Multiplier)
	suite.Equal(models.Minute, params.Timespan)
}

func (suite *ParamsTestSuite) TestInvalidInterval() {
	_, err := buildDownloadParams("AAPL", suite.start, suite.end, "2d")
	suite.Error(err)
}

func (suite *ParamsTestSuite) TestInvertedDateRange() {
	_, err := buildDownloadParams("AAPL", suite.end, suite.start, "1d")
	suite.ErrorContains(err, "must be after")
}

func (suite *ParamsTestSuite) TestResolveSymbolsPrefersExplicitTickers() {
	symbols, err := resolveSymbols(suite.T().Context(), "universe.csv", []string{"AAPL", "MSFT"})
	suite.Require().NoError(err)
	suite.Equal([]string{"AAPL", "MSFT"}, symbols)
}

func (suite *ParamsTestSuite) TestResolveSymbolsRequiresASource() {
	_, err := resolveSymbols(suite.T().Context(), "", nil)
	suite.Error(err)
}

func TestParamsSuite(t *testing.T) {
	suite.Run(t, new(ParamsTestSuite))
}
