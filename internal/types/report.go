package types

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// RunStatus is the terminal outcome of one backtest run.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunResult is the outcome of driving one strategy through one price series.
// For failed runs only ID, Strategy, Symbol, Status and Error are meaningful.
type RunResult struct {
	ID       string    `yaml:"id"`
	Strategy string    `yaml:"strategy"`
	Symbol   string    `yaml:"symbol"`
	Status   RunStatus `yaml:"status"`
	Error    string    `yaml:"error,omitempty"`

	StartingCapital decimal.Decimal `yaml:"starting_capital"`
	FinalEquity     decimal.Decimal `yaml:"final_equity"`
	// ROI is (final equity - starting capital) / starting capital
	ROI   decimal.Decimal `yaml:"roi"`
	Stats TradeStats      `yaml:"stats"`

	// Trades, EquityCurve and Marks are carried in memory for the
	// presentation layer; on disk they live in per-run parquet files, not
	// the report yaml.
	Trades      []Trade       `yaml:"-"`
	EquityCurve []EquityPoint `yaml:"-"`
	Marks       []Mark        `yaml:"-"`
}

// Failed reports whether the run ended in failure.
func (r RunResult) Failed() bool {
	return r.Status == RunStatusFailed
}

// Report aggregates the results of all runs of a multi-strategy backtest.
// It is derived once and never mutated after construction.
type Report struct {
	GeneratedAt time.Time `yaml:"generated_at"`
	// Results holds completed runs ordered by descending ROI (ties broken by
	// strategy name, then symbol), followed by failed runs.
	Results []RunResult `yaml:"results"`
}

// NewReport builds a report from run results, establishing the ranking order.
func NewReport(results []RunResult) *Report {
	ordered := make([]RunResult, len(results))
	copy(ordered, results)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]

		if a.Failed() != b.Failed() {
			return !a.Failed()
		}

		if !a.Failed() {
			if cmp := a.ROI.Cmp(b.ROI); cmp != 0 {
				return cmp > 0
			}
		}

		if a.Strategy != b.Strategy {
			return a.Strategy < b.Strategy
		}

		return a.Symbol < b.Symbol
	})

	return &Report{
		GeneratedAt: time.Now().UTC(),
		Results:     ordered,
	}
}

// Ranking returns the completed runs in descending ROI order.
func (r *Report) Ranking() []RunResult {
	ranked := make([]RunResult, 0, len(r.Results))

	for _, result := range r.Results {
		if !result.Failed() {
			ranked = append(ranked, result)
		}
	}

	return ranked
}

// Failures returns the failed runs.
func (r *Report) Failures() []RunResult {
	failed := make([]RunResult, 0)

	for _, result := range r.Results {
		if result.Failed() {
			failed = append(failed, result)
		}
	}

	return failed
}

// Best returns the top-ranked completed run, if any run completed.
func (r *Report) Best() (RunResult, bool) {
	ranked := r.Ranking()
	if len(ranked) == 0 {
		return RunResult{}, false
	}

	return ranked[0], true
}

// WriteReport serializes the report to a YAML file.
func WriteReport(path string, report *Report) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report to file: %w", err)
	}

	return nil
}
