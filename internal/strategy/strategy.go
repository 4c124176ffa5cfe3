// Package strategy defines the trading strategy contract and the built-in
// strategy implementations.
//
// A strategy is a pure function of its evaluation context: the same history
// and position snapshot always yield the same signal. Strategies never touch
// the ledger and never see bars beyond the prefix they are handed, so a
// signal can only depend on data visible at that point in time.
package strategy

import (
	"github.com/shopspring/decimal"
	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// EvalContext carries everything a strategy may consult for one bar: the
// visible history prefix (always at least one bar, the last of which is the
// bar under evaluation) and a read-only snapshot of the run's position.
type EvalContext struct {
	History  *types.PriceSeries
	Position types.Position
}

// Bar returns the bar under evaluation, the last bar of the visible history.
func (c EvalContext) Bar() types.Bar {
	return c.History.Last()
}

// Strategy turns a visible price history into a trading signal.
//
// Evaluate must be free of side effects and must not retain the context. The
// runner decides whether a signal is executable; strategies only express
// intent.
type Strategy interface {
	Name() string
	Evaluate(ctx EvalContext) (types.Signal, error)
}

// Bound is a price trigger level: either a single price or an inclusive
// [Low, High] range. In yaml a bound is written as a bare number for the
// single form or as a {low, high} mapping for the range form.
type Bound struct {
	Price decimal.Decimal `yaml:"price" json:"price"`
	Low   decimal.Decimal `yaml:"low" json:"low"`
	High  decimal.Decimal `yaml:"high" json:"high"`
}

// IsRange reports whether the bound is the [Low, High] form.
func (b Bound) IsRange() bool {
	return !b.Low.IsZero() || !b.High.IsZero()
}

// BuyTriggered reports whether close satisfies the bound on the buy side:
// strictly below the single price, or inside the range. The buy side is
// strict so a close sitting exactly on the floor is not an entry; the sell
// side fires as soon as the ceiling is reached.
func (b Bound) BuyTriggered(close decimal.Decimal) bool {
	if b.IsRange() {
		return close.GreaterThanOrEqual(b.Low) && close.LessThanOrEqual(b.High)
	}

	return close.LessThan(b.Price)
}

// SellTriggered reports whether close satisfies the bound on the sell side:
// at or above the single price, or inside the range.
func (b Bound) SellTriggered(close decimal.Decimal) bool {
	if b.IsRange() {
		return close.GreaterThanOrEqual(b.Low) && close.LessThanOrEqual(b.High)
	}

	return close.GreaterThanOrEqual(b.Price)
}

// Validate rejects bounds that could never trigger on positive prices.
func (b Bound) Validate() error {
	if b.IsRange() {
		if !b.Price.IsZero() {
			return errors.New(errors.ErrCodeInvalidBound, "bound cannot set both a price and a range")
		}

		if !b.Low.IsPositive() || !b.High.IsPositive() {
			return errors.Newf(errors.ErrCodeInvalidBound, "bound range limits must be positive, got [%s, %s]", b.Low, b.High)
		}

		if b.Low.GreaterThan(b.High) {
			return errors.Newf(errors.ErrCodeInvalidBound, "bound range is inverted: low %s > high %s", b.Low, b.High)
		}

		return nil
	}

	if !b.Price.IsPositive() {
		return errors.Newf(errors.ErrCodeInvalidBound, "bound price must be positive, got %s", b.Price)
	}

	return nil
}

// UnmarshalYAML accepts either a bare number or a {low, high} mapping.
func (b *Bound) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var price decimal.Decimal
	if err := unmarshal(&price); err == nil {
		b.Price = price

		return nil
	}

	var bounds struct {
		Low  decimal.Decimal `yaml:"low"`
		High decimal.Decimal `yaml:"high"`
	}

	if err := unmarshal(&bounds); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidBound, "bound must be a number or a {low, high} mapping", err)
	}

	b.Low = bounds.Low
	b.High = bounds.High

	return nil
}
