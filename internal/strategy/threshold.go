package strategy

import (
	"github.com/shopspring/decimal"
	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// ThresholdConfig configures a static price-level strategy.
type ThresholdConfig struct {
	// Name overrides the reported strategy name. Empty defaults to "threshold".
	Name string `yaml:"name" json:"name,omitempty"`
	// BuyBelow triggers an entry when the close is strictly below the price, or
	// inside the range.
	BuyBelow Bound `yaml:"buy_below" json:"buy_below"`
	// SellAbove triggers an exit when the close is at or above the price, or
	// inside the range.
	SellAbove Bound `yaml:"sell_above" json:"sell_above"`
}

// Threshold buys when the close undercuts the buy bound while flat and sells
// when the close reaches the sell bound while holding. Everything else is a
// hold. With a position open the sell bound is checked first, so a bar that
// satisfies both bounds exits rather than doubling down.
type Threshold struct {
	config ThresholdConfig
}

// NewThreshold validates the config and builds the strategy. Bound errors
// are construction-time failures; Evaluate never rejects a configuration.
func NewThreshold(config ThresholdConfig) (*Threshold, error) {
	if config.Name == "" {
		config.Name = "threshold"
	}

	if err := config.BuyBelow.Validate(); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidThreshold, err, "invalid buy bound for %s", config.Name)
	}

	if err := config.SellAbove.Validate(); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidThreshold, err, "invalid sell bound for %s", config.Name)
	}

	return &Threshold{config: config}, nil
}

// Name implements Strategy.
func (s *Threshold) Name() string {
	return s.config.Name
}

// Evaluate implements Strategy.
func (s *Threshold) Evaluate(ctx EvalContext) (types.Signal, error) {
	bar := ctx.Bar()
	close := decimal.NewFromFloat(bar.Close)

	signal := types.Signal{
		Time:   bar.Time,
		Type:   types.SignalTypeHold,
		Symbol: ctx.History.Symbol(),
	}

	if ctx.Position.IsOpen() {
		if s.config.SellAbove.SellTriggered(close) {
			signal.Type = types.SignalTypeSell
			signal.Reason = "threshold_sell"
		}

		return signal, nil
	}

	if s.config.BuyBelow.BuyTriggered(close) {
		signal.Type = types.SignalTypeBuy
		signal.Reason = "threshold_buy"
	}

	return signal, nil
}
