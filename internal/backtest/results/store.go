// Package results persists completed backtest runs: per-run parquet files
// for the trade log, equity curve, and decision tape, a stats.yaml next to
// them, and one report.yaml covering the whole multi-strategy session.
package results

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/stratsim-lab/stratsim/internal/logger"
	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// RunArtifacts names the files one persisted run produced.
type RunArtifacts struct {
	Folder     string
	TradesPath string
	EquityPath string
	MarksPath  string
	StatsPath  string
}

// Store stages run data in an in-memory DuckDB and exports each run's rows
// as parquet under <root>/<strategy>/<symbol>/. Staged rows stay queryable
// after export so saved runs can be verified by reading them back.
type Store struct {
	db     *sql.DB
	sq     squirrel.StatementBuilderType
	logger *logger.Logger
	root   string
}

// NewStore creates a results store rooted at the given folder. A nil log
// discards output.
func NewStore(root string, log *logger.Logger) (*Store, error) {
	if root == "" {
		return nil, errors.New(errors.ErrCodeNoResultsDir, "results folder is not set")
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to open staging database", err)
	}

	store := &Store{
		db:     db,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		logger: log,
		root:   root,
	}

	if err := store.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	return store, nil
}

func (s *Store) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			run_id TEXT,
			id TEXT,
			time TIMESTAMP,
			symbol TEXT,
			side TEXT,
			quantity BIGINT,
			price DOUBLE,
			fee DOUBLE,
			cash_after DOUBLE,
			pnl DOUBLE,
			reason TEXT
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to create trades table", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS equity (
			run_id TEXT,
			time TIMESTAMP,
			cash DOUBLE,
			market_value DOUBLE,
			equity DOUBLE
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to create equity table", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS marks (
			run_id TEXT,
			time TIMESTAMP,
			symbol TEXT,
			signal_type TEXT,
			signal_reason TEXT,
			action TEXT,
			reason TEXT
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to create marks table", err)
	}

	return nil
}

// SaveRun persists one completed run. Failed runs carry no books to persist
// and are rejected; they are reported through report.yaml only.
func (s *Store) SaveRun(result types.RunResult) (RunArtifacts, error) {
	if result.Failed() {
		return RunArtifacts{}, errors.Newf(errors.ErrCodeInvalidParameter, "run %s failed and has no results to save", result.ID)
	}

	folder := filepath.Join(s.root, result.Strategy, result.Symbol)
	if err := os.MkdirAll(folder, 0755); err != nil {
		return RunArtifacts{}, errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to create run folder %s", folder)
	}

	if err := s.stageRun(result); err != nil {
		return RunArtifacts{}, err
	}

	artifacts := RunArtifacts{
		Folder:     folder,
		TradesPath: filepath.Join(folder, "trades.parquet"),
		EquityPath: filepath.Join(folder, "equity.parquet"),
		MarksPath:  filepath.Join(folder, "marks.parquet"),
		StatsPath:  filepath.Join(folder, "stats.yaml"),
	}

	exports := []struct {
		table string
		path  string
	}{
		{"trades", artifacts.TradesPath},
		{"equity", artifacts.EquityPath},
		{"marks", artifacts.MarksPath},
	}

	for _, export := range exports {
		if err := s.exportRun(export.table, result.ID, export.path); err != nil {
			return RunArtifacts{}, err
		}
	}

	stats := result.Stats
	stats.TradesFilePath = artifacts.TradesPath
	stats.EquityFilePath = artifacts.EquityPath

	if err := types.WriteTradeStats(artifacts.StatsPath, []types.TradeStats{stats}); err != nil {
		return RunArtifacts{}, errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to write stats for run %s", result.ID)
	}

	s.logger.Info("Persisted run results",
		zap.String("run_id", result.ID),
		zap.String("folder", folder),
		zap.Int("trades", len(result.Trades)))

	return artifacts, nil
}

// WriteReport writes the session report to <root>/report.yaml and returns
// its path.
func (s *Store) WriteReport(report *types.Report) (string, error) {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return "", errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to create results folder %s", s.root)
	}

	path := filepath.Join(s.root, "report.yaml")
	if err := types.WriteReport(path, report); err != nil {
		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to write report", err)
	}

	return path, nil
}

// CountTrades reads back how many trades were staged for a run.
func (s *Store) CountTrades(runID string) (int, error) {
	query, args, err := s.sq.
		Select("COUNT(*)").
		From("trades").
		Where(squirrel.Eq{"run_id": runID}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build query", err)
	}

	var count int
	if err := s.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to count trades for run %s", runID)
	}

	return count, nil
}

// LastEquity reads back the final equity value staged for a run.
func (s *Store) LastEquity(runID string) (float64, error) {
	query, args, err := s.sq.
		Select("equity").
		From("equity").
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("time DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build query", err)
	}

	var equity float64

	err = s.db.QueryRow(query, args...).Scan(&equity)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, errors.Newf(errors.ErrCodeDataNotFound, "no equity staged for run %s", runID)
		}

		return 0, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to read equity for run %s", runID)
	}

	return equity, nil
}

// Close releases the staging database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

// stageRun inserts the run's books into the staging tables inside one
// transaction. Re-saving a run replaces its staged rows.
func (s *Store) stageRun(result types.RunResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to begin transaction", err)
	}

	for _, table := range []string{"trades", "equity", "marks"} {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE run_id = ?", table), result.ID); err != nil {
			tx.Rollback()

			return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to clear staged %s", table)
		}
	}

	for _, trade := range result.Trades {
		query, args, err := s.sq.
			Insert("trades").
			Columns("run_id", "id", "time", "symbol", "side", "quantity", "price", "fee", "cash_after", "pnl", "reason").
			Values(result.ID, trade.ID, trade.Time, trade.Symbol, string(trade.Side), trade.Quantity,
				trade.Price.InexactFloat64(), trade.Fee.InexactFloat64(),
				trade.CashAfter.InexactFloat64(), trade.PnL.InexactFloat64(), trade.Reason).
			ToSql()
		if err != nil {
			tx.Rollback()

			return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build trade insert", err)
		}

		if _, err := tx.Exec(query, args...); err != nil {
			tx.Rollback()

			return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to stage trade %s", trade.ID)
		}
	}

	for _, point := range result.EquityCurve {
		query, args, err := s.sq.
			Insert("equity").
			Columns("run_id", "time", "cash", "market_value", "equity").
			Values(result.ID, point.Time, point.Cash.InexactFloat64(),
				point.MarketValue.InexactFloat64(), point.Equity.InexactFloat64()).
			ToSql()
		if err != nil {
			tx.Rollback()

			return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build equity insert", err)
		}

		if _, err := tx.Exec(query, args...); err != nil {
			tx.Rollback()

			return errors.Wrap(errors.ErrCodeQueryFailed, "failed to stage equity point", err)
		}
	}

	for _, mark := range result.Marks {
		query, args, err := s.sq.
			Insert("marks").
			Columns("run_id", "time", "symbol", "signal_type", "signal_reason", "action", "reason").
			Values(result.ID, mark.Time, mark.Symbol, string(mark.Signal.Type),
				mark.Signal.Reason, string(mark.Action), mark.Reason).
			ToSql()
		if err != nil {
			tx.Rollback()

			return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build mark insert", err)
		}

		if _, err := tx.Exec(query, args...); err != nil {
			tx.Rollback()

			return errors.Wrap(errors.ErrCodeQueryFailed, "failed to stage mark", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to commit staged run", err)
	}

	return nil
}

// exportRun copies one run's rows from a staging table to a parquet file.
// COPY takes no placeholders, so the run id is inlined with quotes doubled.
func (s *Store) exportRun(table, runID, path string) error {
	escaped := strings.ReplaceAll(runID, "'", "''")

	query := fmt.Sprintf(
		`COPY (SELECT * EXCLUDE (run_id) FROM %s WHERE run_id = '%s' ORDER BY time) TO '%s' (FORMAT PARQUET)`,
		table, escaped, path)

	if _, err := s.db.Exec(query); err != nil {
		return errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to export %s for run %s", table, runID)
	}

	return nil
}
