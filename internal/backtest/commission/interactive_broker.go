package commission

import "github.com/shopspring/decimal"

var (
	perShare   = decimal.RequireFromString("0.005")
	minimumFee = decimal.NewFromInt(1)
)

// InteractiveBrokerFee charges 0.005 USD per share with a 1 USD minimum.
type InteractiveBrokerFee struct{}

// NewInteractiveBrokerFee creates the Interactive Brokers fixed-tier model.
func NewInteractiveBrokerFee() Fee {
	return &InteractiveBrokerFee{}
}

// Calculate returns max(0.005 * quantity, 1).
func (f *InteractiveBrokerFee) Calculate(quantity int64) decimal.Decimal {
	fee := perShare.Mul(decimal.NewFromInt(quantity))
	if fee.LessThan(minimumFee) {
		return minimumFee
	}

	return fee
}
