package types

import (
	"time"

	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// Bar is a single OHLCV price record for one symbol at one point in time.
// Bars are value types and are never mutated after creation.
type Bar struct {
	Time   time.Time `csv:"time"`
	Symbol string    `csv:"symbol"`
	Open   float64   `csv:"open"`
	High   float64   `csv:"high"`
	Low    float64   `csv:"low"`
	Close  float64   `csv:"close"`
	Volume float64   `csv:"volume"`
}

// Validate checks the bar's internal consistency.
func (b Bar) Validate() error {
	if b.Symbol == "" {
		return errors.New(errors.ErrCodeInvalidBar, "bar symbol is empty")
	}

	if b.Time.IsZero() {
		return errors.Newf(errors.ErrCodeInvalidBar, "bar for %s has zero time", b.Symbol)
	}

	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return errors.Newf(errors.ErrCodeInvalidBar, "bar for %s at %s has non-positive price", b.Symbol, b.Time.Format(time.RFC3339))
	}

	if b.Volume < 0 {
		return errors.Newf(errors.ErrCodeInvalidBar, "bar for %s at %s has negative volume", b.Symbol, b.Time.Format(time.RFC3339))
	}

	return nil
}

// PriceSeries is an ordered, immutable sequence of bars for a single symbol.
// Bars are strictly increasing by time with no duplicates. The series may be
// sparse: weekends and exchange holidays are expected gaps, and consumers
// must only act on bars that are present.
type PriceSeries struct {
	symbol string
	bars   []Bar
}

// NewPriceSeries builds a validated series from the given bars. The slice is
// copied so later modifications by the caller cannot reach the series. An
// empty bar slice is allowed here; emptiness is rejected when a backtest run
// starts, not at construction.
func NewPriceSeries(symbol string, bars []Bar) (*PriceSeries, error) {
	if symbol == "" {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "series symbol is empty")
	}

	owned := make([]Bar, len(bars))
	copy(owned, bars)

	for i, bar := range owned {
		if err := bar.Validate(); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidBar, err, "bar %d is invalid", i)
		}

		if bar.Symbol != symbol {
			return nil, errors.Newf(errors.ErrCodeSymbolMismatch, "bar %d has symbol %s, series is %s", i, bar.Symbol, symbol)
		}

		if i > 0 && !owned[i-1].Time.Before(bar.Time) {
			return nil, errors.Newf(errors.ErrCodeOutOfOrderSeries,
				"bar %d at %s does not come after bar %d at %s",
				i, bar.Time.Format(time.RFC3339), i-1, owned[i-1].Time.Format(time.RFC3339))
		}
	}

	return &PriceSeries{
		symbol: symbol,
		bars:   owned,
	}, nil
}

// Symbol returns the symbol all bars in the series belong to.
func (s *PriceSeries) Symbol() string {
	return s.symbol
}

// Len returns the number of bars in the series.
func (s *PriceSeries) Len() int {
	return len(s.bars)
}

// Empty reports whether the series contains no bars.
func (s *PriceSeries) Empty() bool {
	return len(s.bars) == 0
}

// At returns the bar at index i. It panics if i is out of range, matching
// slice semantics.
func (s *PriceSeries) At(i int) Bar {
	return s.bars[i]
}

// First returns the earliest bar. It panics on an empty series.
func (s *PriceSeries) First() Bar {
	return s.bars[0]
}

// Last returns the most recent bar. It panics on an empty series.
func (s *PriceSeries) Last() Bar {
	return s.bars[len(s.bars)-1]
}

// Prefix returns a view of the series containing bars [0, end]. The view
// shares the underlying storage; since bars are immutable this is safe and
// allocation-free. It panics if end is out of range.
func (s *PriceSeries) Prefix(end int) *PriceSeries {
	return &PriceSeries{
		symbol: s.symbol,
		bars:   s.bars[:end+1],
	}
}

// Bars returns a copy of all bars in chronological order.
func (s *PriceSeries) Bars() []Bar {
	out := make([]Bar, len(s.bars))
	copy(out, s.bars)

	return out
}
