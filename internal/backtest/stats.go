package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stratsim-lab/stratsim/internal/ledger"
	"github.com/stratsim-lab/stratsim/internal/types"
)

// ComputeTradeStats derives the summary statistics of a completed run from
// its books and the series it ran over. Win and loss counts classify sell
// trades by their realized pnl; buys close nothing and are counted only in
// the trade total.
func ComputeTradeStats(runID string, strategyName string, series *types.PriceSeries, book *ledger.Ledger) (types.TradeStats, error) {
	trades := book.Trades()

	wins, losses := 0, 0
	totalFees := decimal.Zero
	maxLoss := decimal.Zero
	maxProfit := decimal.Zero
	haveSell := false

	for _, trade := range trades {
		totalFees = totalFees.Add(trade.Fee)

		if trade.Side != types.SideSell {
			continue
		}

		switch {
		case trade.PnL.IsPositive():
			wins++
		case trade.PnL.IsNegative():
			losses++
		}

		if !haveSell {
			maxLoss = trade.PnL
			maxProfit = trade.PnL
			haveSell = true

			continue
		}

		if trade.PnL.LessThan(maxLoss) {
			maxLoss = trade.PnL
		}

		if trade.PnL.GreaterThan(maxProfit) {
			maxProfit = trade.PnL
		}
	}

	winRate := 0.0
	if closed := wins + losses; closed > 0 {
		winRate = float64(wins) / float64(closed)
	}

	realized := book.RealizedPnL()

	unrealized := decimal.Zero
	buyAndHold := decimal.Zero

	if !series.Empty() {
		finalClose := decimal.NewFromFloat(series.Last().Close)

		var err error

		unrealized, err = book.UnrealizedPnL(map[string]decimal.Decimal{series.Symbol(): finalClose})
		if err != nil {
			return types.TradeStats{}, err
		}

		// One share bought at the first close and valued at the last.
		buyAndHold = finalClose.Sub(decimal.NewFromFloat(series.First().Close))
	}

	return types.TradeStats{
		ID:        runID,
		Timestamp: time.Now().UTC(),
		Strategy:  strategyName,
		Symbol:    series.Symbol(),
		TradeResult: types.TradeResult{
			NumberOfTrades:        len(trades),
			NumberOfWinningTrades: wins,
			NumberOfLosingTrades:  losses,
			WinRate:               winRate,
			MaxDrawdown:           maxDrawdown(book.EquityCurve()),
		},
		TotalFees: totalFees.InexactFloat64(),
		TradePnl: types.TradePnl{
			RealizedPnL:   realized.InexactFloat64(),
			UnrealizedPnL: unrealized.InexactFloat64(),
			TotalPnL:      realized.Add(unrealized).InexactFloat64(),
			MaximumLoss:   maxLoss.InexactFloat64(),
			MaximumProfit: maxProfit.InexactFloat64(),
		},
		BuyAndHoldPnl: buyAndHold.InexactFloat64(),
	}, nil
}

// maxDrawdown is the largest peak-to-trough equity decline as a fraction of
// the peak.
func maxDrawdown(curve []types.EquityPoint) float64 {
	peak := decimal.Zero
	worst := decimal.Zero

	for _, point := range curve {
		if point.Equity.GreaterThan(peak) {
			peak = point.Equity
		}

		if !peak.IsPositive() {
			continue
		}

		drawdown := peak.Sub(point.Equity).Div(peak)
		if drawdown.GreaterThan(worst) {
			worst = drawdown
		}
	}

	return worst.InexactFloat64()
}
