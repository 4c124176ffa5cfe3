// Package ledger tracks the financial state of a single backtest run: cash,
// open positions, the executed trade log, and the equity curve.
//
// All money amounts are decimal.Decimal so that repeated runs over the same
// inputs produce identical books. A ledger is owned by exactly one runner and
// is not safe for concurrent mutation; once frozen it only serves reads.
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// Ledger records every cash and position movement of one strategy run.
type Ledger struct {
	strategyID      string
	startingCapital decimal.Decimal
	cash            decimal.Decimal
	positions       map[string]types.Position
	trades          []types.Trade
	equity          []types.EquityPoint
	realized        decimal.Decimal
	frozen          bool
}

// New creates a ledger funded with startingCapital. The capital must be
// strictly positive; a non-positive amount is a configuration error.
func New(strategyID string, startingCapital decimal.Decimal) (*Ledger, error) {
	if strategyID == "" {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "ledger requires a strategy id")
	}

	if !startingCapital.IsPositive() {
		return nil, errors.Newf(errors.ErrCodeInvalidCapital, "starting capital must be positive, got %s", startingCapital)
	}

	return &Ledger{
		strategyID:      strategyID,
		startingCapital: startingCapital,
		cash:            startingCapital,
		positions:       make(map[string]types.Position),
		realized:        decimal.Zero,
	}, nil
}

// StrategyID returns the id of the strategy this ledger belongs to.
func (l *Ledger) StrategyID() string {
	return l.strategyID
}

// StartingCapital returns the capital the ledger was funded with.
func (l *Ledger) StartingCapital() decimal.Decimal {
	return l.startingCapital
}

// Cash returns the current cash balance. It is never negative: trades that
// would overdraw the ledger are rejected before execution.
func (l *Ledger) Cash() decimal.Decimal {
	return l.cash
}

// Frozen reports whether the ledger has been sealed against further writes.
func (l *Ledger) Frozen() bool {
	return l.frozen
}

// Buy debits quantity*price+fee from cash and adds the shares to the symbol's
// position. The order is rejected with ErrCodeInsufficientCash when the full
// cost cannot be covered; cash is never partially spent or clamped.
func (l *Ledger) Buy(at time.Time, symbol string, quantity int64, price decimal.Decimal, fee decimal.Decimal, reason string) (types.Trade, error) {
	if err := l.checkOrder(symbol, quantity, price, fee); err != nil {
		return types.Trade{}, err
	}

	qty := decimal.NewFromInt(quantity)

	cost := price.Mul(qty).Add(fee)
	if cost.GreaterThan(l.cash) {
		return types.Trade{}, errors.Newf(errors.ErrCodeInsufficientCash, "buy cost %s exceeds available cash %s", cost, l.cash)
	}

	l.cash = l.cash.Sub(cost)

	// Average cost basis includes the fee, so realized pnl on exit is net of
	// entry costs.
	position := l.positionFor(symbol)
	if position.Quantity == 0 {
		position.OpenedAt = at
	}

	oldBasis := position.AvgCost.Mul(decimal.NewFromInt(position.Quantity))
	newQuantity := position.Quantity + quantity
	position.AvgCost = oldBasis.Add(cost).Div(decimal.NewFromInt(newQuantity))
	position.Quantity = newQuantity
	l.positions[symbol] = position

	trade := types.Trade{
		ID:        l.nextTradeID(symbol),
		Time:      at,
		Symbol:    symbol,
		Side:      types.SideBuy,
		Quantity:  quantity,
		Price:     price,
		Fee:       fee,
		CashAfter: l.cash,
		PnL:       decimal.Zero,
		Reason:    reason,
	}
	l.trades = append(l.trades, trade)

	return trade, nil
}

// Sell credits quantity*price-fee to cash and removes the shares from the
// symbol's position. Selling more than is held, or selling with no open
// position, is rejected; positions are never driven negative.
func (l *Ledger) Sell(at time.Time, symbol string, quantity int64, price decimal.Decimal, fee decimal.Decimal, reason string) (types.Trade, error) {
	if err := l.checkOrder(symbol, quantity, price, fee); err != nil {
		return types.Trade{}, err
	}

	position, ok := l.positions[symbol]
	if !ok || position.Quantity <= 0 {
		return types.Trade{}, errors.Newf(errors.ErrCodeNoPosition, "no open position in %s to sell", symbol)
	}

	if quantity > position.Quantity {
		return types.Trade{}, errors.Newf(errors.ErrCodeInvalidQuantity, "sell quantity %d exceeds held quantity %d", quantity, position.Quantity)
	}

	qty := decimal.NewFromInt(quantity)

	// A fee larger than the proceeds could overdraw the ledger.
	proceeds := price.Mul(qty).Sub(fee)
	if l.cash.Add(proceeds).IsNegative() {
		return types.Trade{}, errors.Newf(errors.ErrCodeInsufficientCash, "sell fee %s exceeds proceeds and available cash", fee)
	}

	pnl := price.Sub(position.AvgCost).Mul(qty).Sub(fee)

	l.cash = l.cash.Add(proceeds)
	l.realized = l.realized.Add(pnl)

	position.Quantity -= quantity
	if position.Quantity == 0 {
		position.AvgCost = decimal.Zero
		position.OpenedAt = time.Time{}
	}

	l.positions[symbol] = position

	trade := types.Trade{
		ID:        l.nextTradeID(symbol),
		Time:      at,
		Symbol:    symbol,
		Side:      types.SideSell,
		Quantity:  quantity,
		Price:     price,
		Fee:       fee,
		CashAfter: l.cash,
		PnL:       pnl,
		Reason:    reason,
	}
	l.trades = append(l.trades, trade)

	return trade, nil
}

// MarkToMarket values every open position at the supplied closing prices and
// appends a point to the equity curve. Every held symbol must have a close.
func (l *Ledger) MarkToMarket(at time.Time, closes map[string]decimal.Decimal) (types.EquityPoint, error) {
	if l.frozen {
		return types.EquityPoint{}, errors.New(errors.ErrCodeLedgerFrozen, "ledger is frozen")
	}

	marketValue := decimal.Zero

	for _, position := range l.openPositions() {
		close, ok := closes[position.Symbol]
		if !ok {
			return types.EquityPoint{}, errors.Newf(errors.ErrCodeDataNotFound, "no closing price for held symbol %s", position.Symbol)
		}

		marketValue = marketValue.Add(position.MarketValue(close))
	}

	point := types.EquityPoint{
		Time:        at,
		Cash:        l.cash,
		MarketValue: marketValue,
		Equity:      l.cash.Add(marketValue),
	}
	l.equity = append(l.equity, point)

	return point, nil
}

// Freeze seals the ledger. All further mutations fail with
// ErrCodeLedgerFrozen; reads remain available.
func (l *Ledger) Freeze() {
	l.frozen = true
}

// Position returns the position for symbol, or an empty position carrying the
// symbol when nothing is held.
func (l *Ledger) Position(symbol string) types.Position {
	if position, ok := l.positions[symbol]; ok {
		return position
	}

	return types.Position{Symbol: symbol, AvgCost: decimal.Zero}
}

// Positions returns all open positions ordered by symbol.
func (l *Ledger) Positions() []types.Position {
	return l.openPositions()
}

// Trades returns a copy of the trade log in execution order.
func (l *Ledger) Trades() []types.Trade {
	trades := make([]types.Trade, len(l.trades))
	copy(trades, l.trades)

	return trades
}

// EquityCurve returns a copy of the recorded equity points in mark order.
func (l *Ledger) EquityCurve() []types.EquityPoint {
	equity := make([]types.EquityPoint, len(l.equity))
	copy(equity, l.equity)

	return equity
}

// RealizedPnL returns the sum of realized profits over all sells, net of
// fees on both entry and exit.
func (l *Ledger) RealizedPnL() decimal.Decimal {
	return l.realized
}

// UnrealizedPnL values every open position against the supplied closes and
// returns the total paper profit relative to average cost.
func (l *Ledger) UnrealizedPnL(closes map[string]decimal.Decimal) (decimal.Decimal, error) {
	total := decimal.Zero

	for _, position := range l.openPositions() {
		close, ok := closes[position.Symbol]
		if !ok {
			return decimal.Zero, errors.Newf(errors.ErrCodeDataNotFound, "no closing price for held symbol %s", position.Symbol)
		}

		total = total.Add(position.UnrealizedPnL(close))
	}

	return total, nil
}

// FinalEquity returns the equity at the last recorded mark, or the cash
// balance when nothing has been marked yet.
func (l *Ledger) FinalEquity() decimal.Decimal {
	if len(l.equity) == 0 {
		return l.cash
	}

	return l.equity[len(l.equity)-1].Equity
}

// ROI returns (final equity - starting capital) / starting capital.
func (l *Ledger) ROI() decimal.Decimal {
	return l.FinalEquity().Sub(l.startingCapital).Div(l.startingCapital)
}

// Reconcile replays the trade log from the starting capital and verifies the
// ledger's books: the cash chain must match each trade's recorded balance and
// never go negative, the replayed final cash must equal the live balance, and
// when closes are supplied the final equity must equal starting capital plus
// realized plus unrealized pnl.
func (l *Ledger) Reconcile(finalCloses map[string]decimal.Decimal) error {
	cash := l.startingCapital

	for i, trade := range l.trades {
		switch trade.Side {
		case types.SideBuy:
			cash = cash.Sub(trade.Notional()).Sub(trade.Fee)
		case types.SideSell:
			cash = cash.Add(trade.Notional()).Sub(trade.Fee)
		default:
			return errors.Newf(errors.ErrCodeReconcileMismatch, "trade %d has unknown side %q", i, trade.Side)
		}

		if cash.IsNegative() {
			return errors.Newf(errors.ErrCodeReconcileMismatch, "trade %d drives cash negative: %s", i, cash)
		}

		if !cash.Equal(trade.CashAfter) {
			return errors.Newf(errors.ErrCodeReconcileMismatch, "trade %d cash mismatch: replayed %s, recorded %s", i, cash, trade.CashAfter)
		}
	}

	if !cash.Equal(l.cash) {
		return errors.Newf(errors.ErrCodeReconcileMismatch, "replayed cash %s does not match ledger cash %s", cash, l.cash)
	}

	for i, point := range l.equity {
		if !point.Equity.Equal(point.Cash.Add(point.MarketValue)) {
			return errors.Newf(errors.ErrCodeReconcileMismatch, "equity point %d is not cash plus market value", i)
		}
	}

	if finalCloses != nil && len(l.equity) > 0 {
		unrealized, err := l.UnrealizedPnL(finalCloses)
		if err != nil {
			return err
		}

		expected := l.startingCapital.Add(l.realized).Add(unrealized)
		if !l.FinalEquity().Equal(expected) {
			return errors.Newf(errors.ErrCodeReconcileMismatch, "final equity %s does not equal starting capital plus pnl %s", l.FinalEquity(), expected)
		}
	}

	return nil
}

func (l *Ledger) checkOrder(symbol string, quantity int64, price decimal.Decimal, fee decimal.Decimal) error {
	if l.frozen {
		return errors.New(errors.ErrCodeLedgerFrozen, "ledger is frozen")
	}

	if symbol == "" {
		return errors.New(errors.ErrCodeInvalidParameter, "order requires a symbol")
	}

	if quantity <= 0 {
		return errors.Newf(errors.ErrCodeInvalidQuantity, "order quantity must be positive, got %d", quantity)
	}

	if !price.IsPositive() {
		return errors.Newf(errors.ErrCodeInvalidParameter, "order price must be positive, got %s", price)
	}

	if fee.IsNegative() {
		return errors.Newf(errors.ErrCodeInvalidParameter, "order fee must not be negative, got %s", fee)
	}

	return nil
}

func (l *Ledger) positionFor(symbol string) types.Position {
	if position, ok := l.positions[symbol]; ok {
		return position
	}

	return types.Position{Symbol: symbol, AvgCost: decimal.Zero}
}

func (l *Ledger) openPositions() []types.Position {
	positions := make([]types.Position, 0, len(l.positions))

	for _, position := range l.positions {
		if position.Quantity > 0 {
			positions = append(positions, position)
		}
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})

	return positions
}

// nextTradeID derives the trade id from the strategy, symbol and log index so
// identical runs emit identical logs.
func (l *Ledger) nextTradeID(symbol string) string {
	seed := fmt.Sprintf("%s|%s|%d", l.strategyID, symbol, len(l.trades))

	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}
