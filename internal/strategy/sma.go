package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// SMACrossoverConfig configures a moving average crossover strategy.
type SMACrossoverConfig struct {
	// Name overrides the reported strategy name. Empty defaults to
	// "sma_cross_<fast>_<slow>".
	Name string `yaml:"name" json:"name,omitempty"`
	// Fast is the short moving average period in bars.
	Fast int `yaml:"fast" json:"fast"`
	// Slow is the long moving average period in bars. Must exceed Fast.
	Slow int `yaml:"slow" json:"slow"`
}

// SMACrossover buys when the fast average crosses above the slow average and
// sells when it crosses back below. Holds until enough history exists to
// compare the averages on two consecutive bars.
type SMACrossover struct {
	config SMACrossoverConfig
}

// NewSMACrossover validates the config and builds the strategy.
func NewSMACrossover(config SMACrossoverConfig) (*SMACrossover, error) {
	if config.Fast < 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidWindow, "fast period must be at least 1, got %d", config.Fast)
	}

	if config.Slow <= config.Fast {
		return nil, errors.Newf(errors.ErrCodeInvalidWindow, "slow period %d must exceed fast period %d", config.Slow, config.Fast)
	}

	if config.Name == "" {
		config.Name = fmt.Sprintf("sma_cross_%d_%d", config.Fast, config.Slow)
	}

	return &SMACrossover{config: config}, nil
}

// Name implements Strategy.
func (s *SMACrossover) Name() string {
	return s.config.Name
}

// Evaluate implements Strategy.
func (s *SMACrossover) Evaluate(ctx EvalContext) (types.Signal, error) {
	bar := ctx.Bar()

	signal := types.Signal{
		Time:   bar.Time,
		Type:   types.SignalTypeHold,
		Symbol: ctx.History.Symbol(),
	}

	// A crossing needs the averages on this bar and the one before it.
	if ctx.History.Len() <= s.config.Slow {
		return signal, nil
	}

	end := ctx.History.Len() - 1
	fast := sma(ctx.History, end, s.config.Fast)
	slow := sma(ctx.History, end, s.config.Slow)
	prevFast := sma(ctx.History, end-1, s.config.Fast)
	prevSlow := sma(ctx.History, end-1, s.config.Slow)

	if ctx.Position.IsOpen() {
		if fast.LessThan(slow) && prevFast.GreaterThanOrEqual(prevSlow) {
			signal.Type = types.SignalTypeSell
			signal.Reason = "sma_cross_down"
		}

		return signal, nil
	}

	if fast.GreaterThan(slow) && prevFast.LessThanOrEqual(prevSlow) {
		signal.Type = types.SignalTypeBuy
		signal.Reason = "sma_cross_up"
	}

	return signal, nil
}

// sma averages the closes of the period bars ending at index end inclusive.
func sma(history *types.PriceSeries, end int, period int) decimal.Decimal {
	sum := decimal.Zero
	for i := end - period + 1; i <= end; i++ {
		sum = sum.Add(decimal.NewFromFloat(history.At(i).Close))
	}

	return sum.Div(decimal.NewFromInt(int64(period)))
}
