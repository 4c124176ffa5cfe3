package strategy

import (
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// LookbackConfig configures a relative-move strategy over a trailing window.
type LookbackConfig struct {
	// Name overrides the reported strategy name. Empty defaults to "lookback".
	Name string `yaml:"name" json:"name,omitempty"`
	// Window is the number of prior bars the reference extremes are taken
	// from. The bar under evaluation is not part of the window.
	Window int `yaml:"window" json:"window" validate:"min=1"`
	// DropPct buys when the close has fallen at least this fraction below the
	// window's maximum close. 0.05 means a 5% dip.
	DropPct decimal.Decimal `yaml:"drop_pct" json:"drop_pct"`
	// RisePct sells when the close has risen at least this fraction above the
	// window's minimum close.
	RisePct decimal.Decimal `yaml:"rise_pct" json:"rise_pct"`
}

// Lookback buys dips and sells rips relative to the trailing window. Until
// the history is longer than the window it always holds.
type Lookback struct {
	config LookbackConfig
}

// NewLookback validates the config and builds the strategy.
func NewLookback(config LookbackConfig) (*Lookback, error) {
	if config.Name == "" {
		config.Name = "lookback"
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidWindow, err, "invalid lookback window for %s", config.Name)
	}

	// A drop of 100% or more can never trigger on positive prices.
	if !config.DropPct.IsPositive() || config.DropPct.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, errors.Newf(errors.ErrCodeInvalidThreshold, "drop_pct must be in (0, 1), got %s", config.DropPct)
	}

	if !config.RisePct.IsPositive() {
		return nil, errors.Newf(errors.ErrCodeInvalidThreshold, "rise_pct must be positive, got %s", config.RisePct)
	}

	return &Lookback{config: config}, nil
}

// Name implements Strategy.
func (s *Lookback) Name() string {
	return s.config.Name
}

// Evaluate implements Strategy.
func (s *Lookback) Evaluate(ctx EvalContext) (types.Signal, error) {
	bar := ctx.Bar()

	signal := types.Signal{
		Time:   bar.Time,
		Type:   types.SignalTypeHold,
		Symbol: ctx.History.Symbol(),
	}

	// The current bar is excluded from the window, so a full window needs
	// window+1 bars of history.
	last := ctx.History.Len() - 1
	if last < s.config.Window {
		return signal, nil
	}

	maxClose := decimal.NewFromFloat(ctx.History.At(last - s.config.Window).Close)
	minClose := maxClose

	for i := last - s.config.Window + 1; i < last; i++ {
		close := decimal.NewFromFloat(ctx.History.At(i).Close)
		if close.GreaterThan(maxClose) {
			maxClose = close
		}

		if close.LessThan(minClose) {
			minClose = close
		}
	}

	close := decimal.NewFromFloat(bar.Close)
	one := decimal.NewFromInt(1)

	if ctx.Position.IsOpen() {
		sellAt := minClose.Mul(one.Add(s.config.RisePct))
		if close.GreaterThanOrEqual(sellAt) {
			signal.Type = types.SignalTypeSell
			signal.Reason = "lookback_rise"
		}

		return signal, nil
	}

	buyAt := maxClose.Mul(one.Sub(s.config.DropPct))
	if close.LessThanOrEqual(buyAt) {
		signal.Type = types.SignalTypeBuy
		signal.Reason = "lookback_drop"
	}

	return signal, nil
}
