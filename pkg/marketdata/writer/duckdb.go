package writer

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// Compile-time interface check.
var _ MarketDataWriter = (*DuckDBWriter)(nil)

// DuckDBWriter stages bars in an in-memory DuckDB table and exports them to
// a parquet file on Finalize. Every row gets a uuid so downstream tools can
// reference individual bars.
type DuckDBWriter struct {
	db         *sql.DB
	tx         *sql.Tx
	stmt       *sql.Stmt
	outputPath string
}

// NewDuckDBWriter creates a new DuckDBWriter.
// outputPath is the parquet file the staged bars are exported to.
func NewDuckDBWriter(outputPath string) *DuckDBWriter {
	return &DuckDBWriter{
		outputPath: outputPath,
	}
}

// Initialize opens the staging database, creates the bars table, begins the
// transaction and prepares the insert statement.
func (w *DuckDBWriter) Initialize() (err error) {
	w.db, err = sql.Open("duckdb", ":memory:")
	if err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to open staging database", err)
	}

	_, err = w.db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			id TEXT,
			time TIMESTAMP,
			symbol TEXT,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume DOUBLE
		)
	`)
	if err != nil {
		w.db.Close()

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to create staging table", err)
	}

	w.tx, err = w.db.Begin()
	if err != nil {
		w.db.Close()

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to begin transaction", err)
	}

	w.stmt, err = w.tx.Prepare(`
		INSERT INTO bars (id, time, symbol, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		w.tx.Rollback()
		w.db.Close()

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to prepare insert", err)
	}

	return nil
}

// Write inserts one bar into the staging transaction.
func (w *DuckDBWriter) Write(bar types.Bar) error {
	if w.stmt == nil {
		return errors.New(errors.ErrCodeInvalidWriter, "writer not initialized")
	}

	_, err := w.stmt.Exec(
		uuid.New().String(),
		bar.Time,
		bar.Symbol,
		bar.Open,
		bar.High,
		bar.Low,
		bar.Close,
		bar.Volume,
	)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to insert bar for %s", bar.Symbol)
	}

	return nil
}

// Finalize commits the staged bars and exports them to the parquet file.
func (w *DuckDBWriter) Finalize() (outputPath string, err error) {
	if w.tx == nil {
		return "", errors.New(errors.ErrCodeInvalidWriter, "writer not initialized")
	}

	if err = w.tx.Commit(); err != nil {
		w.tx.Rollback()

		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to commit staged bars", err)
	}

	w.tx = nil

	// COPY takes no placeholders, so the path is inlined with quotes doubled.
	path := strings.ReplaceAll(w.outputPath, "'", "''")

	_, err = w.db.Exec(fmt.Sprintf(`COPY (SELECT * FROM bars ORDER BY time, symbol) TO '%s' (FORMAT PARQUET)`, path))
	if err != nil {
		return "", errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to export to parquet at %s", w.outputPath)
	}

	return w.outputPath, nil
}

// Close releases the statement, rolls back any still-open transaction and
// closes the database. Safe to call more than once.
func (w *DuckDBWriter) Close() error {
	var closeErr error

	if w.stmt != nil {
		if err := w.stmt.Close(); err != nil {
			closeErr = err
		}

		w.stmt = nil
	}

	if w.tx != nil {
		w.tx.Rollback()
		w.tx = nil
	}

	if w.db != nil {
		if err := w.db.Close(); err != nil && closeErr == nil {
			closeErr = err
		}

		w.db = nil
	}

	if closeErr != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to close writer", closeErr)
	}

	return nil
}

// GetOutputPath implements MarketDataWriter.
func (w *DuckDBWriter) GetOutputPath() string {
	return w.outputPath
}
