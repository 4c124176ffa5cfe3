package datasource

import (
	"context"
	"sort"
	"time"

	"github.com/moznion/go-optional"

	"github.com/stratsim-lab/stratsim/internal/store"
	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// Compile-time interface check.
var _ DataSource = (*StoreDataSource)(nil)

// StoreDataSource serves bars from the local bar cache. Wrapping a store
// hands its ownership to the source; Close closes the store.
type StoreDataSource struct {
	store store.BarStore
}

// NewStore wraps a bar cache as a data source.
func NewStore(barStore store.BarStore) *StoreDataSource {
	return &StoreDataSource{store: barStore}
}

// Initialize implements DataSource. The wrapped store is already open, so
// there is nothing to bind.
func (s *StoreDataSource) Initialize(_ string) error {
	return nil
}

// ReadAll implements DataSource.
func (s *StoreDataSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.Bar, error) bool) {
	return func(yield func(types.Bar, error) bool) {
		bars, err := s.window(start, end)
		if err != nil {
			yield(types.Bar{}, err)

			return
		}

		for _, bar := range bars {
			if !yield(bar, nil) {
				return
			}
		}
	}
}

// GetRange implements DataSource.
func (s *StoreDataSource) GetRange(start time.Time, end time.Time) ([]types.Bar, error) {
	return s.window(optional.Some(start), optional.Some(end))
}

// ReadLastData implements DataSource.
func (s *StoreDataSource) ReadLastData(symbol string) (types.Bar, error) {
	bars, err := s.store.GetBars(context.Background(), symbol, optional.None[time.Time](), optional.None[time.Time]())
	if err != nil {
		return types.Bar{}, err
	}

	if len(bars) == 0 {
		return types.Bar{}, errors.Newf(errors.ErrCodeDataNotFound, "no bars found for symbol %s", symbol)
	}

	return bars[len(bars)-1], nil
}

// Count implements DataSource.
func (s *StoreDataSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	bars, err := s.window(start, end)
	if err != nil {
		return 0, err
	}

	return len(bars), nil
}

// Symbols implements DataSource.
func (s *StoreDataSource) Symbols() ([]string, error) {
	return s.store.Symbols(context.Background())
}

// LoadSeries implements DataSource.
func (s *StoreDataSource) LoadSeries(symbol string, start, end optional.Option[time.Time]) (*types.PriceSeries, error) {
	bars, err := s.store.GetBars(context.Background(), symbol, start, end)
	if err != nil {
		return nil, err
	}

	return types.NewPriceSeries(symbol, bars)
}

// Close implements DataSource.
func (s *StoreDataSource) Close() error {
	return s.store.Close()
}

// window collects bars for every cached symbol inside the bounds, ascending
// by time with symbol as tie-break.
func (s *StoreDataSource) window(start, end optional.Option[time.Time]) ([]types.Bar, error) {
	ctx := context.Background()

	symbols, err := s.store.Symbols(ctx)
	if err != nil {
		return nil, err
	}

	var out []types.Bar

	for _, symbol := range symbols {
		bars, err := s.store.GetBars(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}

		out = append(out, bars...)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.Before(out[j].Time)
		}

		return out[i].Symbol < out[j].Symbol
	})

	return out, nil
}
