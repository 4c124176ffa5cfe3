package writer

import (
	"context"

	"github.com/stratsim-lab/stratsim/internal/store"
	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// storeFlushSize bounds how many bars are buffered before an upsert batch.
const storeFlushSize = 1000

// Compile-time interface check.
var _ MarketDataWriter = (*StoreWriter)(nil)

// StoreWriter bridges the local bar cache into the writer interface so a
// provider download can refresh the cache directly. The store stays owned
// by the caller; Close does not close it, and there is no file artifact.
type StoreWriter struct {
	store  store.BarStore
	buffer []types.Bar
}

// NewStoreWriter creates a writer that upserts bars into the given store.
func NewStoreWriter(barStore store.BarStore) *StoreWriter {
	return &StoreWriter{
		store: barStore,
	}
}

// Initialize implements MarketDataWriter.
func (w *StoreWriter) Initialize() error {
	if w.store == nil {
		return errors.New(errors.ErrCodeInvalidWriter, "store writer requires a bar store")
	}

	w.buffer = make([]types.Bar, 0, storeFlushSize)

	return nil
}

// Write buffers one bar, flushing a batch to the store when the buffer
// fills up.
func (w *StoreWriter) Write(bar types.Bar) error {
	if w.buffer == nil {
		return errors.New(errors.ErrCodeInvalidWriter, "writer not initialized")
	}

	w.buffer = append(w.buffer, bar)

	if len(w.buffer) >= storeFlushSize {
		return w.flush()
	}

	return nil
}

// Finalize flushes the remaining buffered bars into the store.
func (w *StoreWriter) Finalize() (string, error) {
	if w.buffer == nil {
		return "", errors.New(errors.ErrCodeInvalidWriter, "writer not initialized")
	}

	if err := w.flush(); err != nil {
		return "", err
	}

	return "", nil
}

// Close drops any unflushed bars. The underlying store is left open.
func (w *StoreWriter) Close() error {
	w.buffer = nil

	return nil
}

// GetOutputPath implements MarketDataWriter. A store writer has no file
// artifact, so the path is always empty.
func (w *StoreWriter) GetOutputPath() string {
	return ""
}

func (w *StoreWriter) flush() error {
	if len(w.buffer) == 0 {
		return nil
	}

	if err := w.store.SaveBars(context.Background(), w.buffer); err != nil {
		return err
	}

	w.buffer = w.buffer[:0]

	return nil
}
