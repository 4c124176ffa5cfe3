// Command market downloads historical bars into data files and keeps the
// local bar cache in sync with a remote provider.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/stratsim-lab/stratsim/internal/logger"
	"github.com/stratsim-lab/stratsim/internal/store"
	"github.com/stratsim-lab/stratsim/internal/universe"
	"github.com/stratsim-lab/stratsim/pkg/marketdata"
)

// downloadAction fetches bars for one ticker and writes them to a data file
// under the data directory.
func downloadAction(ctx context.Context, cmd *cli.Command) error {
	appLog, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = appLog.Sync() }()

	clientConfig := marketdata.ClientConfig{
		ProviderType:  marketdata.ProviderType(cmd.String("provider")),
		WriterType:    marketdata.WriterType(cmd.String("writer")),
		DataPath:      cmd.String("data"),
		PolygonApiKey: os.Getenv("POLYGON_API_KEY"),
	}

	client, err := marketdata.NewClient(clientConfig, nil, appLog)
	if err != nil {
		return fmt.Errorf("failed to create market data client: %w", err)
	}

	params, err := buildDownloadParams(
		cmd.String("ticker"),
		cmd.Timestamp("start"),
		cmd.Timestamp("end"),
		cmd.String("interval"),
	)
	if err != nil {
		return err
	}

	path, err := client.Download(ctx, params)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	fmt.Printf("Downloaded %s to %s\n", params.Ticker, path)

	return nil
}

// syncAction refreshes the local bar cache for every ticker in the
// universe, fetching only bars newer than the most recent stored one. A
// failing ticker does not stop the remaining ones.
func syncAction(ctx context.Context, cmd *cli.Command) error {
	appLog, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = appLog.Sync() }()

	symbols, err := resolveSymbols(ctx, cmd.String("universe"), cmd.StringSlice("ticker"))
	if err != nil {
		return err
	}

	timespan := marketdata.Timespan(cmd.String("interval"))
	if err := timespan.Validate(); err != nil {
		return err
	}

	barStore, err := store.NewSQLiteStore(cmd.String("cache"), appLog)
	if err != nil {
		return err
	}
	defer barStore.Close()

	clientConfig := marketdata.ClientConfig{
		ProviderType: marketdata.ProviderType(cmd.String("provider")),
		// Sync writes through the store writer; the file writer config is
		// still validated, so point it at a throwaway location.
		WriterType:    marketdata.WriterCSV,
		DataPath:      os.TempDir(),
		PolygonApiKey: os.Getenv("POLYGON_API_KEY"),
	}

	client, err := marketdata.NewClient(clientConfig, nil, appLog)
	if err != nil {
		return fmt.Errorf("failed to create market data client: %w", err)
	}

	start := cmd.Timestamp("start")
	end := cmd.Timestamp("end")
	failed := 0

	for _, symbol := range symbols {
		err := client.Sync(ctx, barStore, marketdata.SyncParams{
			Ticker:    symbol,
			StartDate: start,
			EndDate:   end,
			Timespan:  timespan,
		})
		if err != nil {
			failed++

			fmt.Fprintf(os.Stderr, "sync failed for %s: %v\n", symbol, err)
		}
	}

	fmt.Printf("Synced %d of %d tickers into %s\n", len(symbols)-failed, len(symbols), cmd.String("cache"))

	if failed > 0 {
		return fmt.Errorf("%d of %d tickers failed to sync", failed, len(symbols))
	}

	return nil
}

// resolveSymbols returns the explicit tickers when given, otherwise loads
// the universe file or URL.
func resolveSymbols(ctx context.Context, universeSource string, tickers []string) ([]string, error) {
	if len(tickers) > 0 {
		return tickers, nil
	}

	if universeSource == "" {
		return nil, fmt.Errorf("either --ticker or --universe must be set")
	}

	return universe.Load(ctx, universeSource)
}

func dateFlag(name, alias, usage string, required bool) *cli.TimestampFlag {
	flag := &cli.TimestampFlag{
		Name:     name,
		Aliases:  []string{alias},
		Usage:    usage,
		Required: required,
		Config: cli.TimestampConfig{
			Layouts: []string{"2006-01-02", time.RFC3339},
		},
	}
	if !required {
		flag.Value = time.Now()
	}

	return flag
}

// providerFlag and intervalFlag are built per command; urfave flags carry
// parse state and must not be shared between commands.
func providerFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "provider",
		Aliases: []string{"p"},
		Usage:   fmt.Sprintf("Data provider to use (%s, %s)", marketdata.ProviderPolygon, marketdata.ProviderBinance),
		Value:   string(marketdata.ProviderPolygon),
	}
}

func intervalFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "interval",
		Aliases: []string{"i"},
		Usage:   "Bar interval (1m, 5m, 1h, 1d, ...)",
		Value:   string(marketdata.TimespanOneDay),
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "market",
		Usage: "Download and cache historical market data",
		Commands: []*cli.Command{
			{
				Name:   "download",
				Usage:  "Download bars for one ticker into a data file",
				Action: downloadAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "ticker",
						Aliases:  []string{"t"},
						Usage:    "Ticker symbol",
						Required: true,
					},
					dateFlag("start", "s", "Start date in `YYYY-MM-DD` format", true),
					dateFlag("end", "e", "End date in `YYYY-MM-DD` format. Defaults to today.", false),
					providerFlag(),
					intervalFlag(),
					&cli.StringFlag{
						Name:    "writer",
						Aliases: []string{"w"},
						Usage:   fmt.Sprintf("Output format (%s, %s)", marketdata.WriterDuckDB, marketdata.WriterCSV),
						Value:   string(marketdata.WriterDuckDB),
					},
					&cli.StringFlag{
						Name:    "data",
						Aliases: []string{"d"},
						Usage:   "Path to the data output directory",
						Value:   "data",
					},
				},
			},
			{
				Name:   "sync",
				Usage:  "Refresh the local bar cache for a ticker universe",
				Action: syncAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "universe",
						Aliases: []string{"u"},
						Usage:   "CSV file or URL with a symbol column naming the tickers to sync",
					},
					&cli.StringSliceFlag{
						Name:    "ticker",
						Aliases: []string{"t"},
						Usage:   "Explicit ticker to sync (repeatable, overrides --universe)",
					},
					&cli.StringFlag{
						Name:     "cache",
						Aliases:  []string{"c"},
						Usage:    "Path to the SQLite bar cache",
						Required: true,
					},
					dateFlag("start", "s", "Start date in `YYYY-MM-DD` format", true),
					dateFlag("end", "e", "End date in `YYYY-MM-DD` format. Defaults to today.", false),
					providerFlag(),
					intervalFlag(),
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
