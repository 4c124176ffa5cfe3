package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/stratsim-lab/stratsim/internal/logger"
	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// Compile-time interface check.
var _ BarStore = (*SQLiteStore)(nil)

// SQLiteStore implements BarStore backed by a SQLite database. Bar times are
// stored as UTC unix seconds so rows round-trip independently of the driver's
// time formatting.
type SQLiteStore struct {
	db     *sql.DB
	sq     squirrel.StatementBuilderType
	logger *logger.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and prepares
// the bars table. A nil log discards output.
func NewSQLiteStore(dbPath string, log *logger.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to open bar cache at %s", dbPath)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT NOT NULL,
			time   INTEGER NOT NULL,
			open   REAL NOT NULL,
			high   REAL NOT NULL,
			low    REAL NOT NULL,
			close  REAL NOT NULL,
			volume REAL NOT NULL,
			PRIMARY KEY (symbol, time)
		)
	`)
	if err != nil {
		db.Close()

		return nil, errors.Wrap(errors.ErrCodeStoreFailed, "failed to create bars table", err)
	}

	return &SQLiteStore{
		db:     db,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		logger: log,
	}, nil
}

// SaveBars persists a batch of bars inside one transaction. Bars are
// validated first; a single bad bar rejects the whole batch.
func (s *SQLiteStore) SaveBars(ctx context.Context, bars []types.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	for i, bar := range bars {
		if err := bar.Validate(); err != nil {
			return errors.Wrapf(errors.ErrCodeStoreFailed, err, "refusing to store bar %d", i)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to begin transaction", err)
	}

	for _, bar := range bars {
		query, args, err := s.sq.
			Insert("bars").
			Columns("symbol", "time", "open", "high", "low", "close", "volume").
			Values(bar.Symbol, bar.Time.UTC().Unix(), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume).
			Suffix(`ON CONFLICT(symbol, time) DO UPDATE SET
				open = excluded.open,
				high = excluded.high,
				low = excluded.low,
				close = excluded.close,
				volume = excluded.volume`).
			ToSql()
		if err != nil {
			tx.Rollback()

			return errors.Wrap(errors.ErrCodeStoreFailed, "failed to build insert", err)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			tx.Rollback()

			return errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to store bar for %s", bar.Symbol)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to commit bars", err)
	}

	s.logger.Debug("Stored bars",
		zap.Int("count", len(bars)),
		zap.String("first_symbol", bars[0].Symbol))

	return nil
}

// GetBars returns the bars for symbol inside the optional window, ascending
// by time.
func (s *SQLiteStore) GetBars(ctx context.Context, symbol string, start, end optional.Option[time.Time]) ([]types.Bar, error) {
	builder := s.sq.
		Select("symbol", "time", "open", "high", "low", "close", "volume").
		From("bars").
		Where(squirrel.Eq{"symbol": symbol}).
		OrderBy("time ASC")

	if start.IsSome() {
		builder = builder.Where(squirrel.GtOrEq{"time": start.Unwrap().UTC().Unix()})
	}

	if end.IsSome() {
		builder = builder.Where(squirrel.LtOrEq{"time": end.Unwrap().UTC().Unix()})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, "failed to build query", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to read bars for %s", symbol)
	}
	defer rows.Close()

	var bars []types.Bar

	for rows.Next() {
		var (
			bar  types.Bar
			unix int64
		)

		if err := rows.Scan(&bar.Symbol, &unix, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreFailed, "failed to scan bar", err)
		}

		bar.Time = time.Unix(unix, 0).UTC()
		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, "failed iterating bars", err)
	}

	return bars, nil
}

// LatestBarTime reports the most recent bar time stored for symbol.
func (s *SQLiteStore) LatestBarTime(ctx context.Context, symbol string) (optional.Option[time.Time], error) {
	query, args, err := s.sq.
		Select("MAX(time)").
		From("bars").
		Where(squirrel.Eq{"symbol": symbol}).
		ToSql()
	if err != nil {
		return optional.None[time.Time](), errors.Wrap(errors.ErrCodeStoreFailed, "failed to build query", err)
	}

	var latest sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&latest); err != nil {
		return optional.None[time.Time](), errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to read latest bar time for %s", symbol)
	}

	if !latest.Valid {
		return optional.None[time.Time](), nil
	}

	return optional.Some(time.Unix(latest.Int64, 0).UTC()), nil
}

// Symbols returns all distinct symbols in the cache, sorted.
func (s *SQLiteStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT symbol FROM bars ORDER BY symbol")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, "failed to list symbols", err)
	}
	defer rows.Close()

	var symbols []string

	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreFailed, "failed to scan symbol", err)
		}

		symbols = append(symbols, symbol)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, "failed iterating symbols", err)
	}

	return symbols, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}

	return s.db.Close()
}
