// Package backtest replays historical price series through trading
// strategies: one runner per strategy/series pair, an orchestrator to fan
// runs out and collect their report, and the sizing and statistics helpers
// both lean on.
package backtest

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stratsim-lab/stratsim/internal/backtest/commission"
	"github.com/stratsim-lab/stratsim/internal/ledger"
	"github.com/stratsim-lab/stratsim/internal/logger"
	"github.com/stratsim-lab/stratsim/internal/marker"
	"github.com/stratsim-lab/stratsim/internal/strategy"
	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// RunState is the lifecycle state of a runner.
type RunState string

const (
	RunStateInitialized RunState = "initialized"
	RunStateRunning     RunState = "running"
	RunStateCompleted   RunState = "completed"
	RunStateFailed      RunState = "failed"
)

// Lifecycle callback types for run phases. Callbacks that return an error
// abort the run.

// OnRunStartCallback is called before the first bar is processed.
type OnRunStartCallback func(runID string, strategyName string, symbol string, totalBars int) error

// OnBarCallback is called after each bar is processed.
type OnBarCallback func(current int, total int) error

// OnRunEndCallback is called when the run reaches a terminal state (always
// called once the run has started).
type OnRunEndCallback func(result types.RunResult)

// RunCallbacks holds the lifecycle callback functions for a run. All fields
// are pointers - nil means no callback will be invoked.
type RunCallbacks struct {
	OnRunStart *OnRunStartCallback
	OnBar      *OnBarCallback
	OnRunEnd   *OnRunEndCallback
}

// Runner drives one strategy through one price series bar by bar, recording
// every decision into its own ledger and decision tape. A runner is single
// use: Run may be called exactly once.
type Runner struct {
	id       string
	strategy strategy.Strategy
	series   *types.PriceSeries
	book     *ledger.Ledger
	sizer    Sizer
	fee      commission.Fee
	tape     marker.Marker
	log      *logger.Logger
	state    RunState
}

// NewRunner wires a runner around its collaborators. The ledger must be
// fresh: the runner assumes sole ownership and seals it when the run ends.
// Sizer, fee, marker and logger may be nil and fall back to one-share
// sizing, zero commission, an in-memory tape and a no-op logger.
func NewRunner(id string, strat strategy.Strategy, series *types.PriceSeries, book *ledger.Ledger, sizer Sizer, fee commission.Fee, tape marker.Marker, log *logger.Logger) (*Runner, error) {
	if id == "" {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "runner requires an id")
	}

	if strat == nil {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "runner %s requires a strategy", id)
	}

	if series == nil {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "runner %s requires a price series", id)
	}

	if book == nil {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "runner %s requires a ledger", id)
	}

	if sizer == nil {
		sizer = OneShare{}
	}

	if fee == nil {
		fee = commission.NewZeroFee()
	}

	if tape == nil {
		tape = marker.NewMemoryMarker()
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Runner{
		id:       id,
		strategy: strat,
		series:   series,
		book:     book,
		sizer:    sizer,
		fee:      fee,
		tape:     tape,
		log:      log,
		state:    RunStateInitialized,
	}, nil
}

// State returns the runner's lifecycle state.
func (r *Runner) State() RunState {
	return r.state
}

// Ledger exposes the run's books. Before completion the ledger is live and
// owned by the runner; read it only after Run returns.
func (r *Runner) Ledger() *ledger.Ledger {
	return r.book
}

// Marks returns the decision tape recorded so far.
func (r *Runner) Marks() ([]types.Mark, error) {
	return r.tape.GetMarks()
}

// Run executes the backtest to completion. Per bar, chronologically: expose
// the history prefix ending at the bar, evaluate the strategy, admit or
// downgrade its signal, then mark the book to market at the bar's close.
// After the last bar the ledger freezes; residual positions stay open and
// are valued at the final close, never force liquidated.
//
// The returned result is also populated on failure, so orchestration can
// report failed runs without inspecting the error.
func (r *Runner) Run(ctx context.Context, callbacks RunCallbacks) (result types.RunResult, err error) {
	if r.state != RunStateInitialized {
		return types.RunResult{}, errors.Newf(errors.ErrCodeInvalidRunState, "runner %s cannot start from state %q", r.id, r.state)
	}

	defer func() {
		if callbacks.OnRunEnd != nil {
			(*callbacks.OnRunEnd)(result)
		}
	}()

	fail := func(cause error) (types.RunResult, error) {
		r.state = RunStateFailed
		r.book.Freeze()
		r.log.Warn("backtest run failed",
			zap.String("run", r.id),
			zap.Error(cause),
		)

		result = r.failedResult(cause)

		return result, cause
	}

	if r.series.Empty() {
		return fail(errors.Newf(errors.ErrCodeEmptySeries, "series %s has no bars", r.series.Symbol()))
	}

	r.state = RunStateRunning
	total := r.series.Len()

	r.log.Debug("backtest run started",
		zap.String("run", r.id),
		zap.String("strategy", r.strategy.Name()),
		zap.String("symbol", r.series.Symbol()),
		zap.Int("bars", total),
	)

	if callbacks.OnRunStart != nil {
		if cbErr := (*callbacks.OnRunStart)(r.id, r.strategy.Name(), r.series.Symbol(), total); cbErr != nil {
			return fail(errors.Wrap(errors.ErrCodeRunFailed, "run start callback aborted the run", cbErr))
		}
	}

	for i := 0; i < total; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fail(errors.Wrapf(errors.ErrCodeRunFailed, ctxErr, "run %s canceled at bar %d", r.id, i))
		}

		if stepErr := r.step(i); stepErr != nil {
			return fail(stepErr)
		}

		if callbacks.OnBar != nil {
			if cbErr := (*callbacks.OnBar)(i+1, total); cbErr != nil {
				return fail(errors.Wrap(errors.ErrCodeRunFailed, "bar callback aborted the run", cbErr))
			}
		}
	}

	r.book.Freeze()
	r.state = RunStateCompleted

	stats, statsErr := ComputeTradeStats(r.id, r.strategy.Name(), r.series, r.book)
	if statsErr != nil {
		return fail(statsErr)
	}

	marks, marksErr := r.tape.GetMarks()
	if marksErr != nil {
		return fail(marksErr)
	}

	result = r.completedResult(stats, marks)

	r.log.Info("backtest run completed",
		zap.String("run", r.id),
		zap.Int("trades", len(result.Trades)),
		zap.String("final_equity", result.FinalEquity.String()),
		zap.String("roi", result.ROI.String()),
	)

	return result, nil
}

// step processes the bar at index i: evaluate, admit, mark to market.
func (r *Runner) step(i int) error {
	bar := r.series.At(i)
	history := r.series.Prefix(i)
	position := r.book.Position(bar.Symbol)

	signal, evalErr := r.strategy.Evaluate(strategy.EvalContext{History: history, Position: position})
	if evalErr != nil {
		return errors.Wrapf(errors.ErrCodeStrategyEvaluateFailed, evalErr, "strategy %s failed on bar %d", r.strategy.Name(), i)
	}

	close := decimal.NewFromFloat(bar.Close)

	switch signal.Type {
	case types.SignalTypeBuy:
		if err := r.admitBuy(bar, signal, close); err != nil {
			return err
		}
	case types.SignalTypeSell:
		if err := r.admitSell(bar, signal, close); err != nil {
			return err
		}
	case types.SignalTypeHold:
		// Plain holds leave no tape entry; the tape records decisions about
		// actionable signals, not silence.
	default:
		return errors.Newf(errors.ErrCodeRunFailed, "strategy %s emitted unknown signal type %q", r.strategy.Name(), signal.Type)
	}

	if _, err := r.book.MarkToMarket(bar.Time, map[string]decimal.Decimal{bar.Symbol: close}); err != nil {
		return err
	}

	return nil
}

// admitBuy executes a buy signal when the sized quantity clears the cash
// check, and silently downgrades it to hold otherwise: no trade log entry,
// no error, only a tape mark. Partial fills never happen; the order is all
// or nothing.
func (r *Runner) admitBuy(bar types.Bar, signal types.Signal, close decimal.Decimal) error {
	quantity := r.sizer.Shares(r.book.Cash(), close, r.fee)
	if quantity <= 0 {
		return r.tape.Mark(bar, signal, types.MarkActionHeld, "insufficient cash")
	}

	fee := r.fee.Calculate(quantity)

	trade, buyErr := r.book.Buy(bar.Time, bar.Symbol, quantity, close, fee, signal.Reason)
	if buyErr != nil {
		if errors.HasCode(buyErr, errors.ErrCodeInsufficientCash) {
			r.log.Debug("buy downgraded to hold",
				zap.String("run", r.id),
				zap.String("symbol", bar.Symbol),
				zap.Int64("quantity", quantity),
				zap.String("cash", r.book.Cash().String()),
			)

			return r.tape.Mark(bar, signal, types.MarkActionHeld, "insufficient cash")
		}

		return buyErr
	}

	r.log.Debug("buy executed",
		zap.String("run", r.id),
		zap.String("symbol", bar.Symbol),
		zap.Int64("quantity", trade.Quantity),
		zap.String("price", trade.Price.String()),
		zap.String("cash_after", trade.CashAfter.String()),
	)

	return r.tape.Mark(bar, signal, types.MarkActionExecuted, "")
}

// admitSell closes the entire open position, or silently downgrades the
// signal to hold when nothing is held.
func (r *Runner) admitSell(bar types.Bar, signal types.Signal, close decimal.Decimal) error {
	position := r.book.Position(bar.Symbol)
	if !position.IsOpen() {
		return r.tape.Mark(bar, signal, types.MarkActionHeld, "no position")
	}

	fee := r.fee.Calculate(position.Quantity)

	trade, sellErr := r.book.Sell(bar.Time, bar.Symbol, position.Quantity, close, fee, signal.Reason)
	if sellErr != nil {
		// A commission larger than proceeds plus cash would overdraw the
		// ledger; keep the position instead.
		if errors.HasCode(sellErr, errors.ErrCodeInsufficientCash) {
			return r.tape.Mark(bar, signal, types.MarkActionHeld, "insufficient cash")
		}

		return sellErr
	}

	r.log.Debug("sell executed",
		zap.String("run", r.id),
		zap.String("symbol", bar.Symbol),
		zap.Int64("quantity", trade.Quantity),
		zap.String("price", trade.Price.String()),
		zap.String("pnl", trade.PnL.String()),
	)

	return r.tape.Mark(bar, signal, types.MarkActionExecuted, "")
}

func (r *Runner) completedResult(stats types.TradeStats, marks []types.Mark) types.RunResult {
	return types.RunResult{
		ID:              r.id,
		Strategy:        r.strategy.Name(),
		Symbol:          r.series.Symbol(),
		Status:          types.RunStatusCompleted,
		StartingCapital: r.book.StartingCapital(),
		FinalEquity:     r.book.FinalEquity(),
		ROI:             r.book.ROI(),
		Stats:           stats,
		Trades:          r.book.Trades(),
		EquityCurve:     r.book.EquityCurve(),
		Marks:           marks,
	}
}

func (r *Runner) failedResult(cause error) types.RunResult {
	return types.RunResult{
		ID:              r.id,
		Strategy:        r.strategy.Name(),
		Symbol:          r.series.Symbol(),
		Status:          types.RunStatusFailed,
		Error:           cause.Error(),
		StartingCapital: r.book.StartingCapital(),
	}
}
