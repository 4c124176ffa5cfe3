package backtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stratsim-lab/stratsim/internal/backtest/commission"
	"github.com/stratsim-lab/stratsim/internal/ledger"
	"github.com/stratsim-lab/stratsim/internal/logger"
	"github.com/stratsim-lab/stratsim/internal/strategy"
	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// Pair binds one strategy to one price series for execution.
type Pair struct {
	Strategy strategy.Strategy
	Series   *types.PriceSeries
}

// RunID is the stable identifier for the pair's run. It seeds the run's
// ledger, so equal pairs produce byte-identical trade logs across processes.
func (p Pair) RunID() string {
	return fmt.Sprintf("%s/%s", p.Strategy.Name(), p.Series.Symbol())
}

// Orchestrator fans strategy/series pairs out into concurrent runners, each
// seeded with its own ledger at the same starting capital, then joins them
// into a ranked report. A failing run never disturbs its siblings; it shows
// up in the report as a failed entry.
type Orchestrator struct {
	capital decimal.Decimal
	sizer   Sizer
	fee     commission.Fee
	log     *logger.Logger
}

// NewOrchestrator validates the shared run parameters. Sizer, fee and logger
// may be nil; the runners fall back to one-share sizing, zero commission and
// a no-op logger.
func NewOrchestrator(capital decimal.Decimal, sizer Sizer, fee commission.Fee, log *logger.Logger) (*Orchestrator, error) {
	if !capital.IsPositive() {
		return nil, errors.Newf(errors.ErrCodeInvalidCapital, "starting capital must be positive, got %s", capital)
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Orchestrator{
		capital: capital,
		sizer:   sizer,
		fee:     fee,
		log:     log,
	}, nil
}

// Run executes every pair concurrently and blocks until the last run has
// reached a terminal state. Pairs are validated up front: a nil strategy or
// series is a configuration error and nothing starts. Data problems found
// mid-run (an empty series, a failing strategy) only fail their own entry.
//
// Callbacks are shared across runs and must be safe for concurrent use.
func (o *Orchestrator) Run(ctx context.Context, pairs []Pair, callbacks RunCallbacks) (*types.Report, error) {
	if len(pairs) == 0 {
		return nil, errors.New(errors.ErrCodeNoStrategies, "no strategy/series pairs to run")
	}

	for i, pair := range pairs {
		if pair.Strategy == nil {
			return nil, errors.Newf(errors.ErrCodeInvalidParameter, "pair %d has no strategy", i)
		}

		if pair.Series == nil {
			return nil, errors.Newf(errors.ErrCodeInvalidParameter, "pair %d has no price series", i)
		}
	}

	o.log.Info("orchestrator starting",
		zap.Int("runs", len(pairs)),
		zap.String("capital", o.capital.String()),
	)

	results := make([]types.RunResult, len(pairs))

	var wg sync.WaitGroup
	for i, pair := range pairs {
		wg.Add(1)

		go func(i int, pair Pair) {
			defer wg.Done()
			results[i] = o.runPair(ctx, pair, callbacks)
		}(i, pair)
	}
	wg.Wait()

	report := types.NewReport(results)

	o.log.Info("orchestrator finished",
		zap.Int("completed", len(report.Ranking())),
		zap.Int("failed", len(report.Failures())),
	)

	return report, nil
}

// runPair owns one run end to end. Runner errors are captured in the
// returned result rather than propagated, so sibling runs are never
// interrupted.
func (o *Orchestrator) runPair(ctx context.Context, pair Pair, callbacks RunCallbacks) types.RunResult {
	id := pair.RunID()

	fail := func(err error) types.RunResult {
		return types.RunResult{
			ID:              id,
			Strategy:        pair.Strategy.Name(),
			Symbol:          pair.Series.Symbol(),
			Status:          types.RunStatusFailed,
			Error:           err.Error(),
			StartingCapital: o.capital,
		}
	}

	book, err := ledger.New(id, o.capital)
	if err != nil {
		return fail(err)
	}

	runner, err := NewRunner(id, pair.Strategy, pair.Series, book, o.sizer, o.fee, nil, o.log)
	if err != nil {
		return fail(err)
	}

	result, runErr := runner.Run(ctx, callbacks)
	if runErr != nil {
		o.log.Warn("run failed",
			zap.String("run", id),
			zap.Error(runErr),
		)
	}

	return result
}
