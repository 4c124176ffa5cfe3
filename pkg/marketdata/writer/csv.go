package writer

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// csvTimeLayout is parseable by DuckDB's read_csv_auto, so a CSV written
// here can be loaded back through the backtest data source.
const csvTimeLayout = "2006-01-02 15:04:05"

// Compile-time interface check.
var _ MarketDataWriter = (*CSVWriter)(nil)

// CSVWriter writes bars to a plain CSV file with a
// time,symbol,open,high,low,close,volume header.
type CSVWriter struct {
	file       *os.File
	csv        *csv.Writer
	outputPath string
}

// NewCSVWriter creates a new CSVWriter targeting the given file path.
func NewCSVWriter(outputPath string) *CSVWriter {
	return &CSVWriter{
		outputPath: outputPath,
	}
}

// Initialize creates the output file and writes the header row.
func (w *CSVWriter) Initialize() error {
	file, err := os.Create(w.outputPath)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to create csv file %s", w.outputPath)
	}

	w.file = file
	w.csv = csv.NewWriter(file)

	header := []string{"time", "symbol", "open", "high", "low", "close", "volume"}
	if err := w.csv.Write(header); err != nil {
		file.Close()
		w.file = nil
		w.csv = nil

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to write csv header", err)
	}

	return nil
}

// Write appends one bar as a CSV record.
func (w *CSVWriter) Write(bar types.Bar) error {
	if w.csv == nil {
		return errors.New(errors.ErrCodeInvalidWriter, "writer not initialized")
	}

	record := []string{
		bar.Time.UTC().Format(csvTimeLayout),
		bar.Symbol,
		strconv.FormatFloat(bar.Open, 'f', -1, 64),
		strconv.FormatFloat(bar.High, 'f', -1, 64),
		strconv.FormatFloat(bar.Low, 'f', -1, 64),
		strconv.FormatFloat(bar.Close, 'f', -1, 64),
		strconv.FormatFloat(bar.Volume, 'f', -1, 64),
	}

	if err := w.csv.Write(record); err != nil {
		return errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to write bar for %s", bar.Symbol)
	}

	return nil
}

// Finalize flushes buffered records to disk.
func (w *CSVWriter) Finalize() (string, error) {
	if w.csv == nil {
		return "", errors.New(errors.ErrCodeInvalidWriter, "writer not initialized")
	}

	w.csv.Flush()

	if err := w.csv.Error(); err != nil {
		return "", errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to flush csv file %s", w.outputPath)
	}

	return w.outputPath, nil
}

// Close flushes and closes the output file. Safe to call more than once.
func (w *CSVWriter) Close() error {
	if w.csv != nil {
		w.csv.Flush()
		w.csv = nil
	}

	if w.file != nil {
		err := w.file.Close()
		w.file = nil

		if err != nil {
			return errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to close csv file %s", w.outputPath)
		}
	}

	return nil
}

// GetOutputPath implements MarketDataWriter.
func (w *CSVWriter) GetOutputPath() string {
	return w.outputPath
}
