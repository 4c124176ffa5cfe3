package strategy

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// BoundedConfig configures the exit limits layered on top of another strategy.
// Every limit is optional; an empty config makes Bounded a pass-through.
type BoundedConfig struct {
	// Name overrides the reported strategy name. Empty defaults to
	// "<inner>_bounded".
	Name string `yaml:"name" json:"name,omitempty"`
	// StopLossPct exits when the close falls this fraction below the average
	// entry cost. 0.05 cuts losses at 5%.
	StopLossPct optional.Option[decimal.Decimal] `yaml:"stop_loss_pct" json:"stop_loss_pct"`
	// TakeProfitPct exits when the close rises this fraction above the
	// average entry cost.
	TakeProfitPct optional.Option[decimal.Decimal] `yaml:"take_profit_pct" json:"take_profit_pct"`
	// MaxHoldingDays exits when the position has been open at least this many
	// calendar days.
	MaxHoldingDays optional.Option[int] `yaml:"max_holding_days" json:"max_holding_days"`
}

// UnmarshalYAML maps absent keys to None rather than zero values.
func (c *BoundedConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type config struct {
		Name           string           `yaml:"name"`
		StopLossPct    *decimal.Decimal `yaml:"stop_loss_pct"`
		TakeProfitPct  *decimal.Decimal `yaml:"take_profit_pct"`
		MaxHoldingDays *int             `yaml:"max_holding_days"`
	}

	var parsed config
	if err := unmarshal(&parsed); err != nil {
		return err
	}

	c.Name = parsed.Name
	if parsed.StopLossPct != nil {
		c.StopLossPct = optional.Some(*parsed.StopLossPct)
	}

	if parsed.TakeProfitPct != nil {
		c.TakeProfitPct = optional.Some(*parsed.TakeProfitPct)
	}

	if parsed.MaxHoldingDays != nil {
		c.MaxHoldingDays = optional.Some(*parsed.MaxHoldingDays)
	}

	return nil
}

// Bounded wraps another strategy with stop-loss, take-profit and maximum
// holding time exits. While flat it defers entirely to the inner strategy;
// while holding, the limits are checked before the inner strategy gets a say.
// Limit checks run in a fixed order: stop loss, take profit, holding time.
type Bounded struct {
	inner  Strategy
	config BoundedConfig
}

// NewBounded validates the limits and wraps inner.
func NewBounded(inner Strategy, config BoundedConfig) (*Bounded, error) {
	if inner == nil {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "bounded strategy requires an inner strategy")
	}

	if config.Name == "" {
		config.Name = inner.Name() + "_bounded"
	}

	one := decimal.NewFromInt(1)

	if !config.StopLossPct.IsNone() {
		pct, _ := config.StopLossPct.Take()
		if !pct.IsPositive() || pct.GreaterThanOrEqual(one) {
			return nil, errors.Newf(errors.ErrCodeInvalidThreshold, "stop_loss_pct must be in (0, 1), got %s", pct)
		}
	}

	if !config.TakeProfitPct.IsNone() {
		pct, _ := config.TakeProfitPct.Take()
		if !pct.IsPositive() {
			return nil, errors.Newf(errors.ErrCodeInvalidThreshold, "take_profit_pct must be positive, got %s", pct)
		}
	}

	if !config.MaxHoldingDays.IsNone() {
		days, _ := config.MaxHoldingDays.Take()
		if days < 1 {
			return nil, errors.Newf(errors.ErrCodeInvalidWindow, "max_holding_days must be at least 1, got %d", days)
		}
	}

	return &Bounded{inner: inner, config: config}, nil
}

// Name implements Strategy.
func (s *Bounded) Name() string {
	return s.config.Name
}

// Evaluate implements Strategy.
func (s *Bounded) Evaluate(ctx EvalContext) (types.Signal, error) {
	if !ctx.Position.IsOpen() {
		return s.inner.Evaluate(ctx)
	}

	bar := ctx.Bar()
	close := decimal.NewFromFloat(bar.Close)
	one := decimal.NewFromInt(1)

	if !s.config.StopLossPct.IsNone() {
		pct, _ := s.config.StopLossPct.Take()

		stopAt := ctx.Position.AvgCost.Mul(one.Sub(pct))
		if close.LessThanOrEqual(stopAt) {
			return s.exit(ctx, bar, "stop_loss"), nil
		}
	}

	if !s.config.TakeProfitPct.IsNone() {
		pct, _ := s.config.TakeProfitPct.Take()

		targetAt := ctx.Position.AvgCost.Mul(one.Add(pct))
		if close.GreaterThanOrEqual(targetAt) {
			return s.exit(ctx, bar, "take_profit"), nil
		}
	}

	if !s.config.MaxHoldingDays.IsNone() && !ctx.Position.OpenedAt.IsZero() {
		days, _ := s.config.MaxHoldingDays.Take()

		held := bar.Time.Sub(ctx.Position.OpenedAt)
		if held >= time.Duration(days)*24*time.Hour {
			return s.exit(ctx, bar, "max_holding"), nil
		}
	}

	return s.inner.Evaluate(ctx)
}

func (s *Bounded) exit(ctx EvalContext, bar types.Bar, reason string) types.Signal {
	return types.Signal{
		Time:   bar.Time,
		Type:   types.SignalTypeSell,
		Symbol: ctx.History.Symbol(),
		Reason: reason,
	}
}
