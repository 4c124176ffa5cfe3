package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// EquityPoint is one element of the capital-over-time series: the ledger's
// state marked to market at one bar's close. The series is a derived,
// reproducible function of (starting capital, trade log, price series).
type EquityPoint struct {
	Time time.Time `csv:"time"`
	// Cash is the cash balance after the bar was processed
	Cash decimal.Decimal `csv:"cash"`
	// MarketValue is the value of open positions at the bar's close
	MarketValue decimal.Decimal `csv:"market_value"`
	// Equity is Cash + MarketValue
	Equity decimal.Decimal `csv:"equity"`
}
