package backtest

import (
	"github.com/shopspring/decimal"

	"github.com/stratsim-lab/stratsim/internal/backtest/commission"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// Sizer decides how many shares a buy signal may order, given the cash
// available and the fill price. Sizing is advisory: the ledger's admission
// check remains the authority on whether the order clears.
type Sizer interface {
	Shares(cash decimal.Decimal, price decimal.Decimal, fee commission.Fee) int64
}

// SizingMode selects a sizer in configuration.
type SizingMode string

const (
	SizingModeOneShare SizingMode = "one_share"
	SizingModeFraction SizingMode = "fraction"
)

// AllSizingModes enumerates the sizing modes for config schema generation.
var AllSizingModes = []any{
	SizingModeOneShare,
	SizingModeFraction,
}

// NewSizer builds a sizer from its configuration form. An empty mode selects
// the one-share default.
func NewSizer(mode SizingMode, fraction decimal.Decimal) (Sizer, error) {
	switch mode {
	case SizingModeOneShare, "":
		return OneShare{}, nil
	case SizingModeFraction:
		return NewFraction(fraction)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidSizing, "unknown sizing mode %q", mode)
	}
}

// OneShare orders exactly one share per buy signal, the minimum tradable
// unit. Whether the ledger can afford that share is the admission check's
// call, not the sizer's.
type OneShare struct{}

func (OneShare) Shares(cash decimal.Decimal, price decimal.Decimal, fee commission.Fee) int64 {
	return 1
}

// Fraction spends a fixed fraction of the current cash per buy signal,
// rounded down to whole shares and shrunk until price plus commission fit
// inside the full balance.
type Fraction struct {
	pct decimal.Decimal
}

// NewFraction validates the allocation fraction, which must be in (0, 1].
func NewFraction(pct decimal.Decimal) (Fraction, error) {
	if !pct.IsPositive() || pct.GreaterThan(decimal.NewFromInt(1)) {
		return Fraction{}, errors.Newf(errors.ErrCodeInvalidSizing, "sizing fraction must be in (0, 1], got %s", pct)
	}

	return Fraction{pct: pct}, nil
}

func (f Fraction) Shares(cash decimal.Decimal, price decimal.Decimal, fee commission.Fee) int64 {
	if !price.IsPositive() || !cash.IsPositive() {
		return 0
	}

	budget := cash.Mul(f.pct)
	quantity := budget.Div(price).IntPart()

	// Decimal division rounds, so the estimate can land one share high even
	// before commission; walk down until the full cost fits.
	for quantity > 0 {
		cost := price.Mul(decimal.NewFromInt(quantity)).Add(fee.Calculate(quantity))
		if cost.LessThanOrEqual(cash) {
			break
		}

		quantity--
	}

	return quantity
}
