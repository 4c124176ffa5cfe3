// Package commission prices the fee charged per executed order.
package commission

import "github.com/shopspring/decimal"

// Fee calculates the commission in USD for an order of the given share count.
type Fee interface {
	Calculate(quantity int64) decimal.Decimal
}

type Broker string

const (
	BrokerInteractiveBroker Broker = "interactive_broker"
	BrokerZero              Broker = "zero_commission"
)

// AllBrokers enumerates the broker values for config schema generation.
var AllBrokers = []any{
	BrokerInteractiveBroker,
	BrokerZero,
}

// GetFeeHandler returns the fee model for a broker. Unknown brokers trade
// commission-free.
func GetFeeHandler(broker Broker) Fee {
	switch broker {
	case BrokerInteractiveBroker:
		return NewInteractiveBrokerFee()
	case BrokerZero:
		return NewZeroFee()
	default:
		return NewZeroFee()
	}
}
