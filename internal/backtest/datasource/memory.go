package datasource

import (
	"sort"
	"sync"
	"time"

	"github.com/moznion/go-optional"

	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// Compile-time interface check.
var _ DataSource = (*MemoryDataSource)(nil)

// MemoryDataSource serves bars held in memory. It backs tests and
// programmatic runs where series are built in code rather than read from
// disk.
type MemoryDataSource struct {
	mu   sync.RWMutex
	bars map[string][]types.Bar
}

// NewMemory creates an empty in-memory data source.
func NewMemory() *MemoryDataSource {
	return &MemoryDataSource{
		bars: make(map[string][]types.Bar),
	}
}

// AddSeries stores the series' bars, replacing any bars already held for its
// symbol.
func (m *MemoryDataSource) AddSeries(series *types.PriceSeries) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bars[series.Symbol()] = series.Bars()

	return nil
}

// AddBars merges bars into the source. Bars are validated, grouped by
// symbol, and sorted; a bar that shares its (symbol, time) key with a stored
// bar replaces it.
func (m *MemoryDataSource) AddBars(bars []types.Bar) error {
	for _, bar := range bars {
		if err := bar.Validate(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, bar := range bars {
		symbol := bar.Symbol
		existing := m.bars[symbol]

		replaced := false

		for i := range existing {
			if existing[i].Time.Equal(bar.Time) {
				existing[i] = bar
				replaced = true

				break
			}
		}

		if !replaced {
			existing = append(existing, bar)
		}

		m.bars[symbol] = existing
	}

	for symbol := range m.bars {
		sort.Slice(m.bars[symbol], func(i, j int) bool {
			return m.bars[symbol][i].Time.Before(m.bars[symbol][j].Time)
		})
	}

	return nil
}

// Initialize implements DataSource. Memory sources carry no backing path.
func (m *MemoryDataSource) Initialize(_ string) error {
	return nil
}

// ReadAll implements DataSource.
func (m *MemoryDataSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.Bar, error) bool) {
	snapshot := m.window(start, end)

	return func(yield func(types.Bar, error) bool) {
		for _, bar := range snapshot {
			if !yield(bar, nil) {
				return
			}
		}
	}
}

// GetRange implements DataSource.
func (m *MemoryDataSource) GetRange(start time.Time, end time.Time) ([]types.Bar, error) {
	return m.window(optional.Some(start), optional.Some(end)), nil
}

// ReadLastData implements DataSource.
func (m *MemoryDataSource) ReadLastData(symbol string) (types.Bar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bars := m.bars[symbol]
	if len(bars) == 0 {
		return types.Bar{}, errors.Newf(errors.ErrCodeDataNotFound, "no bars found for symbol %s", symbol)
	}

	return bars[len(bars)-1], nil
}

// Count implements DataSource.
func (m *MemoryDataSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	return len(m.window(start, end)), nil
}

// Symbols implements DataSource.
func (m *MemoryDataSource) Symbols() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	symbols := make([]string, 0, len(m.bars))
	for symbol := range m.bars {
		symbols = append(symbols, symbol)
	}

	sort.Strings(symbols)

	return symbols, nil
}

// LoadSeries implements DataSource.
func (m *MemoryDataSource) LoadSeries(symbol string, start, end optional.Option[time.Time]) (*types.PriceSeries, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var bars []types.Bar

	for _, bar := range m.bars[symbol] {
		if inWindow(bar.Time, start, end) {
			bars = append(bars, bar)
		}
	}

	return types.NewPriceSeries(symbol, bars)
}

// Close implements DataSource.
func (m *MemoryDataSource) Close() error {
	return nil
}

// window snapshots all bars inside the optional bounds, ascending by time
// with symbol as tie-break.
func (m *MemoryDataSource) window(start, end optional.Option[time.Time]) []types.Bar {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Bar

	for _, bars := range m.bars {
		for _, bar := range bars {
			if inWindow(bar.Time, start, end) {
				out = append(out, bar)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.Before(out[j].Time)
		}

		return out[i].Symbol < out[j].Symbol
	})

	return out
}

func inWindow(t time.Time, start, end optional.Option[time.Time]) bool {
	if start.IsSome() && t.Before(start.Unwrap()) {
		return false
	}

	if end.IsSome() && t.After(end.Unwrap()) {
		return false
	}

	return true
}
