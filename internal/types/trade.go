package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is one executed order. Trades are append-only: once written to a
// ledger's trade log they are never modified or removed.
type Trade struct {
	ID       string          `csv:"id"`
	Time     time.Time       `csv:"time"`
	Symbol   string          `csv:"symbol"`
	Side     Side            `csv:"side"`
	Quantity int64           `csv:"quantity"`
	Price    decimal.Decimal `csv:"price"`
	// Fee is the commission charged for this trade
	Fee decimal.Decimal `csv:"fee"`
	// CashAfter is the ledger's cash balance immediately after execution
	CashAfter decimal.Decimal `csv:"cash_after"`
	// PnL is the realized profit of this trade against the position's average
	// cost basis, net of this trade's fee. Zero for buys.
	PnL decimal.Decimal `csv:"pnl"`
	// Reason carries the signal reason that triggered the trade
	Reason string `csv:"reason"`
}

// Notional returns price * quantity, excluding fees.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// Position represents the current holdings of one symbol. A position is
// owned by exactly one ledger and is never shared across runs.
type Position struct {
	Symbol   string `csv:"symbol"`
	Quantity int64  `csv:"quantity"`
	// AvgCost is the average entry price including fees
	AvgCost decimal.Decimal `csv:"avg_cost"`
	// OpenedAt is the time of the buy that opened the position. Zero when flat.
	OpenedAt time.Time `csv:"opened_at"`
}

// IsOpen reports whether any quantity is held.
func (p Position) IsOpen() bool {
	return p.Quantity > 0
}

// MarketValue values the position at the given close price.
func (p Position) MarketValue(close decimal.Decimal) decimal.Decimal {
	return close.Mul(decimal.NewFromInt(p.Quantity))
}

// UnrealizedPnL is the mark-to-market gain over the average cost basis.
func (p Position) UnrealizedPnL(close decimal.Decimal) decimal.Decimal {
	if p.Quantity == 0 {
		return decimal.Zero
	}

	return close.Sub(p.AvgCost).Mul(decimal.NewFromInt(p.Quantity))
}
