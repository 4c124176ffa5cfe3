package datasource

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/stratsim-lab/stratsim/internal/logger"
	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// Compile-time interface check.
var _ DataSource = (*DuckDBDataSource)(nil)

// DuckDBDataSource reads bar data through DuckDB. Initialize binds a parquet
// or csv file (globs allowed) as the bars view; queries then run against it.
type DuckDBDataSource struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewDuckDB creates a DuckDB-backed data source. The path names the DuckDB
// database itself, usually ":memory:"; Initialize binds the data file later.
// A nil log discards output.
func NewDuckDB(path string, log *logger.Logger) (*DuckDBDataSource, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to open duckdb", err)
	}

	_, err = db.Exec(`
		SET memory_limit='4GB';
		SET threads=4;
	`)
	if err != nil {
		db.Close()

		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to configure duckdb", err)
	}

	return &DuckDBDataSource{
		db:     db,
		logger: log,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

// Initialize implements DataSource. It recreates the bars view over the
// given parquet or csv file. Files ending in .csv are read with
// read_csv_auto, everything else with read_parquet.
func (d *DuckDBDataSource) Initialize(path string) error {
	d.logger.Debug("Initializing DuckDB data source", zap.String("path", path))

	if _, err := d.db.Exec(`DROP VIEW IF EXISTS bars;`); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to drop existing bars view", err)
	}

	reader := "read_parquet"
	if strings.HasSuffix(strings.ToLower(path), ".csv") {
		reader = "read_csv_auto"
	}

	// CREATE VIEW takes no placeholders, so the path is inlined with quotes
	// doubled.
	escaped := strings.ReplaceAll(path, "'", "''")
	query := fmt.Sprintf(`CREATE VIEW bars AS SELECT * FROM %s('%s');`, reader, escaped)

	if _, err := d.db.Exec(query); err != nil {
		return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to create bars view over %s", path)
	}

	return nil
}

// Count implements DataSource.
func (d *DuckDBDataSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	builder := d.sq.Select("COUNT(*)").From("bars")

	if start.IsSome() {
		builder = builder.Where(squirrel.GtOrEq{"time": start.Unwrap()})
	}

	if end.IsSome() {
		builder = builder.Where(squirrel.LtOrEq{"time": end.Unwrap()})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build count query", err)
	}

	var count int
	if err := d.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count bars", err)
	}

	return count, nil
}

// ReadAll implements DataSource with batch processing.
func (d *DuckDBDataSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.Bar, error) bool) {
	const batchSize = 1000

	return func(yield func(types.Bar, error) bool) {
		d.logger.Debug("Reading all bars from DuckDB")

		builder := d.sq.
			Select("time", "symbol", "open", "high", "low", "close", "volume").
			From("bars").
			OrderBy("time ASC, symbol ASC")

		if start.IsSome() {
			builder = builder.Where(squirrel.GtOrEq{"time": start.Unwrap()})
		}

		if end.IsSome() {
			builder = builder.Where(squirrel.LtOrEq{"time": end.Unwrap()})
		}

		query, args, err := builder.ToSql()
		if err != nil {
			yield(types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build query", err))

			return
		}

		stmt, err := d.db.Prepare(query)
		if err != nil {
			yield(types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to prepare query", err))

			return
		}
		defer stmt.Close()

		rows, err := stmt.Query(args...)
		if err != nil {
			yield(types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query bars", err))

			return
		}
		defer rows.Close()

		batch := make([]types.Bar, 0, batchSize)

		for rows.Next() {
			bar, err := scanBar(rows)
			if err != nil {
				yield(types.Bar{}, err)

				return
			}

			batch = append(batch, bar)

			if len(batch) >= batchSize {
				for _, b := range batch {
					if !yield(b, nil) {
						return
					}
				}

				batch = batch[:0]
			}
		}

		if err := rows.Err(); err != nil {
			yield(types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed iterating bars", err))

			return
		}

		for _, b := range batch {
			if !yield(b, nil) {
				return
			}
		}
	}
}

// GetRange implements DataSource.
func (d *DuckDBDataSource) GetRange(start time.Time, end time.Time) ([]types.Bar, error) {
	query, args, err := d.sq.
		Select("time", "symbol", "open", "high", "low", "close", "volume").
		From("bars").
		Where(squirrel.And{
			squirrel.GtOrEq{"time": start},
			squirrel.LtOrEq{"time": end},
		}).
		OrderBy("time ASC, symbol ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build query", err)
	}

	return d.queryBars(query, args...)
}

// ReadLastData implements DataSource. It returns the most recent bar for the
// given symbol.
func (d *DuckDBDataSource) ReadLastData(symbol string) (types.Bar, error) {
	query, args, err := d.sq.
		Select("time", "symbol", "open", "high", "low", "close", "volume").
		From("bars").
		Where(squirrel.Eq{"symbol": symbol}).
		OrderBy("time DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build query", err)
	}

	var bar types.Bar
	err = d.db.QueryRow(query, args...).
		Scan(&bar.Time, &bar.Symbol, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume)

	if err != nil {
		if err == sql.ErrNoRows {
			return types.Bar{}, errors.Newf(errors.ErrCodeDataNotFound, "no bars found for symbol %s", symbol)
		}

		return types.Bar{}, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to read last bar for %s", symbol)
	}

	bar.Time = bar.Time.UTC()

	return bar, nil
}

// Symbols implements DataSource.
func (d *DuckDBDataSource) Symbols() ([]string, error) {
	rows, err := d.db.Query("SELECT DISTINCT symbol FROM bars ORDER BY symbol")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to list symbols", err)
	}
	defer rows.Close()

	var symbols []string

	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan symbol", err)
		}

		symbols = append(symbols, symbol)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed iterating symbols", err)
	}

	return symbols, nil
}

// LoadSeries implements DataSource. A symbol absent from the source yields
// an empty series; the empty series is rejected when a run starts, which
// keeps bad symbols isolated to their own run.
func (d *DuckDBDataSource) LoadSeries(symbol string, start, end optional.Option[time.Time]) (*types.PriceSeries, error) {
	builder := d.sq.
		Select("time", "symbol", "open", "high", "low", "close", "volume").
		From("bars").
		Where(squirrel.Eq{"symbol": symbol}).
		OrderBy("time ASC")

	if start.IsSome() {
		builder = builder.Where(squirrel.GtOrEq{"time": start.Unwrap()})
	}

	if end.IsSome() {
		builder = builder.Where(squirrel.LtOrEq{"time": end.Unwrap()})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build query", err)
	}

	bars, err := d.queryBars(query, args...)
	if err != nil {
		return nil, err
	}

	return types.NewPriceSeries(symbol, bars)
}

// Close implements DataSource.
func (d *DuckDBDataSource) Close() error {
	if d.db != nil {
		return d.db.Close()
	}

	return nil
}

func (d *DuckDBDataSource) queryBars(query string, args ...interface{}) ([]types.Bar, error) {
	stmt, err := d.db.Prepare(query)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to prepare query", err)
	}
	defer stmt.Close()

	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query bars", err)
	}
	defer rows.Close()

	bars := make([]types.Bar, 0, 1000)

	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			return nil, err
		}

		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed iterating bars", err)
	}

	return bars, nil
}

func scanBar(rows *sql.Rows) (types.Bar, error) {
	var bar types.Bar

	err := rows.Scan(&bar.Time, &bar.Symbol, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan bar", err)
	}

	bar.Time = bar.Time.UTC()

	return bar, nil
}
