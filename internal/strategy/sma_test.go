package strategy

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

type SMACrossoverTestSuite struct {
	suite.Suite
}

func TestSMACrossoverSuite(t *testing.T) {
	suite.Run(t, new(SMACrossoverTestSuite))
}

func (suite *SMACrossoverTestSuite) TestNewSMACrossover() {
	strategy, err := NewSMACrossover(SMACrossoverConfig{Fast: 2, Slow: 3})
	suite.Require().NoError(err)
	suite.Assert().Equal("sma_cross_2_3", strategy.Name())

	_, err = NewSMACrossover(SMACrossoverConfig{Fast: 0, Slow: 3})
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidWindow))

	_, err = NewSMACrossover(SMACrossoverConfig{Fast: 3, Slow: 3})
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidWindow))

	_, err = NewSMACrossover(SMACrossoverConfig{Fast: 5, Slow: 2})
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidWindow))
}

func (suite *SMACrossoverTestSuite) TestHoldsUntilHistorySuffices() {
	strategy, err := NewSMACrossover(SMACrossoverConfig{Fast: 2, Slow: 3})
	suite.Require().NoError(err)

	signal, err := strategy.Evaluate(flatContext(suite.T(), 10, 10, 14))
	suite.Require().NoError(err)
	suite.Assert().Equal(types.SignalTypeHold, signal.Type)
}

func (suite *SMACrossoverTestSuite) TestGoldenCrossBuys() {
	strategy, err := NewSMACrossover(SMACrossoverConfig{Fast: 2, Slow: 3})
	suite.Require().NoError(err)

	// On the last bar the fast average (12) overtakes the slow (11.33..)
	// after sitting level with it on the previous bar.
	signal, err := strategy.Evaluate(flatContext(suite.T(), 10, 10, 10, 14))
	suite.Require().NoError(err)
	suite.Assert().Equal(types.SignalTypeBuy, signal.Type)
	suite.Assert().Equal("sma_cross_up", signal.Reason)

	// A held book ignores the golden cross.
	signal, err = strategy.Evaluate(heldContext(suite.T(), "10", 10, 10, 10, 14))
	suite.Require().NoError(err)
	suite.Assert().Equal(types.SignalTypeHold, signal.Type)
}

func (suite *SMACrossoverTestSuite) TestDeathCrossSells() {
	strategy, err := NewSMACrossover(SMACrossoverConfig{Fast: 2, Slow: 3})
	suite.Require().NoError(err)

	signal, err := strategy.Evaluate(heldContext(suite.T(), "12", 10, 14, 14, 10))
	suite.Require().NoError(err)
	suite.Assert().Equal(types.SignalTypeSell, signal.Type)
	suite.Assert().Equal("sma_cross_down", signal.Reason)

	// Without a position the death cross is a hold.
	signal, err = strategy.Evaluate(flatContext(suite.T(), 10, 14, 14, 10))
	suite.Require().NoError(err)
	suite.Assert().Equal(types.SignalTypeHold, signal.Type)
}

func (suite *SMACrossoverTestSuite) TestNoCrossNoSignal() {
	strategy, err := NewSMACrossover(SMACrossoverConfig{Fast: 2, Slow: 3})
	suite.Require().NoError(err)

	// Steadily rising closes keep fast above slow with no fresh crossing.
	signal, err := strategy.Evaluate(flatContext(suite.T(), 10, 11, 12, 13, 14))
	suite.Require().NoError(err)
	suite.Assert().Equal(types.SignalTypeHold, signal.Type)
}
