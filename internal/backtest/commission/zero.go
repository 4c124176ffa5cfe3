package commission

import "github.com/shopspring/decimal"

// ZeroFee implements Fee with no commission.
type ZeroFee struct{}

// NewZeroFee creates a commission-free fee model.
func NewZeroFee() Fee {
	return &ZeroFee{}
}

// Calculate returns zero for any quantity.
func (f *ZeroFee) Calculate(quantity int64) decimal.Decimal {
	return decimal.Zero
}
