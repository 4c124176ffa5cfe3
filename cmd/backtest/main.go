// Command backtest replays historical price series through configured
// strategies and prints the ranked report.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v3"

	"github.com/stratsim-lab/stratsim/internal/backtest"
	"github.com/stratsim-lab/stratsim/internal/backtest/datasource"
	enginev1 "github.com/stratsim-lab/stratsim/internal/backtest/engine/engine_v1"
	"github.com/stratsim-lab/stratsim/internal/logger"
	"github.com/stratsim-lab/stratsim/internal/store"
	"github.com/stratsim-lab/stratsim/internal/types"
)

var hundred = decimal.NewFromInt(100)

// runAction wires the engine from the CLI flags and runs every configured
// strategy against every available series.
func runAction(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	strategiesPath := cmd.String("strategies")
	dataPath := cmd.String("data")
	cachePath := cmd.String("cache")
	outputFolder := cmd.String("output")

	if (dataPath == "") == (cachePath == "") {
		return fmt.Errorf("exactly one of --data and --cache must be set")
	}

	appLog, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = appLog.Sync() }()

	eng := enginev1.NewBacktestEngineV1()
	if err := eng.SetConfigPath(configPath); err != nil {
		return err
	}

	strategies, err := loadStrategies(strategiesPath)
	if err != nil {
		return err
	}

	for _, s := range strategies {
		if err := eng.LoadStrategy(s); err != nil {
			return err
		}
	}

	source, err := openDataSource(dataPath, cachePath, appLog)
	if err != nil {
		return err
	}
	defer source.Close()

	if err := eng.SetDataSource(source); err != nil {
		return err
	}

	if outputFolder != "" {
		if err := eng.SetResultsFolder(outputFolder); err != nil {
			return err
		}
	}

	onStart := backtest.OnRunStartCallback(func(runID, strategyName, symbol string, totalBars int) error {
		fmt.Printf("running %s over %d bars\n", runID, totalBars)

		return nil
	})

	report, err := eng.Run(ctx, backtest.RunCallbacks{OnRunStart: &onStart})
	if err != nil {
		return err
	}

	printReport(report)

	if outputFolder != "" {
		fmt.Printf("\nResults written to %s\n", outputFolder)
	}

	return nil
}

// openDataSource builds the data source named by the flags: a DuckDB view
// over a parquet/csv file, or the local SQLite bar cache.
func openDataSource(dataPath, cachePath string, appLog *logger.Logger) (datasource.DataSource, error) {
	if dataPath != "" {
		source, err := datasource.NewDuckDB(":memory:", appLog)
		if err != nil {
			return nil, err
		}

		if err := source.Initialize(dataPath); err != nil {
			source.Close()

			return nil, err
		}

		return source, nil
	}

	barStore, err := store.NewSQLiteStore(cachePath, appLog)
	if err != nil {
		return nil, err
	}

	return datasource.NewStore(barStore), nil
}

// printReport writes the ranked report to stdout: completed runs ordered by
// descending ROI, failed runs afterwards.
func printReport(report *types.Report) {
	fmt.Printf("\nBacktest report, generated %s\n\n", report.GeneratedAt.Format(time.RFC3339))

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tSTRATEGY\tSYMBOL\tFINAL EQUITY\tROI\tTRADES")

	for i, result := range report.Ranking() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s%%\t%d\n",
			i+1,
			result.Strategy,
			result.Symbol,
			result.FinalEquity.StringFixed(2),
			result.ROI.Mul(hundred).StringFixed(2),
			len(result.Trades),
		)
	}

	w.Flush()

	failures := report.Failures()
	if len(failures) == 0 {
		return
	}

	fmt.Printf("\nFailed runs:\n")

	for _, result := range failures {
		fmt.Printf("  %s: %s\n", result.ID, result.Error)
	}
}

// schemaAction prints the JSON schema for the engine config.
func schemaAction(_ context.Context, _ *cli.Command) error {
	config := enginev1.EmptyConfig()

	schema, err := config.GenerateSchemaJSON()
	if err != nil {
		return err
	}

	fmt.Println(schema)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Backtest rule-based strategies against historical price series",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run every configured strategy against every available series",
				Action: runAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Path to the engine config yaml",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "strategies",
						Aliases:  []string{"s"},
						Usage:    "Path to the strategies config yaml",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "data",
						Aliases: []string{"d"},
						Usage:   "Parquet or csv file with OHLCV bars (globs allowed)",
					},
					&cli.StringFlag{
						Name:  "cache",
						Usage: "Path to the local SQLite bar cache",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Folder to write run results into",
					},
				},
			},
			{
				Name:   "schema",
				Usage:  "Print the JSON schema for the engine config",
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
