// Package marketdata downloads historical bars from external providers
// and lands them in data files or the local bar cache.
package marketdata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/polygon-io/client-go/rest/models"
	"go.uber.org/zap"

	"github.com/stratsim-lab/stratsim/internal/logger"
	"github.com/stratsim-lab/stratsim/internal/store"
	"github.com/stratsim-lab/stratsim/pkg/errors"
	"github.com/stratsim-lab/stratsim/pkg/marketdata/provider"
	"github.com/stratsim-lab/stratsim/pkg/marketdata/writer"
)

// ProviderType defines the type of market data provider.
type ProviderType string

const (
	ProviderPolygon ProviderType = "polygon"
	ProviderBinance ProviderType = "binance"
)

// WriterType defines the type of market data writer.
type WriterType string

const (
	WriterDuckDB WriterType = "duckdb"
	WriterCSV    WriterType = "csv"
)

// ClientConfig holds the configuration for the market data client.
type ClientConfig struct {
	ProviderType  ProviderType `validate:"required,oneof=polygon binance"`
	WriterType    WriterType   `validate:"required,oneof=duckdb csv"`
	DataPath      string       `validate:"required"`
	PolygonApiKey string       `validate:"required_if=ProviderType polygon"`
}

// DownloadParams holds the parameters for a market data download request.
type DownloadParams struct {
	Ticker     string          `validate:"required"`
	StartDate  time.Time       `validate:"required"`
	EndDate    time.Time       `validate:"required,gtfield=StartDate"`
	Multiplier int             `validate:"required,min=1"`
	Timespan   models.Timespan `validate:"required"`
}

// SyncParams holds the parameters for an incremental bar cache refresh.
type SyncParams struct {
	Ticker    string    `validate:"required"`
	StartDate time.Time `validate:"required"`
	EndDate   time.Time `validate:"required,gtfield=StartDate"`
	Timespan  Timespan  `validate:"required"`
}

// Client downloads market data from a provider and stores it through a
// writer. A single client is bound to one provider; the writer is chosen
// per operation.
type Client struct {
	provider   provider.Provider
	config     ClientConfig
	validate   *validator.Validate
	onProgress provider.OnDownloadProgress
	log        *logger.Logger
}

// NewClient creates a market data client for the provider named in the
// configuration. Configuration errors are reported before any network
// activity. A nil log discards client output.
func NewClient(config ClientConfig, onProgress provider.OnDownloadProgress, log *logger.Logger) (*Client, error) {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid client configuration", err)
	}

	var marketProvider provider.Provider

	var err error

	switch config.ProviderType {
	case ProviderPolygon:
		marketProvider, err = provider.NewPolygonClient(config.PolygonApiKey)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidProvider, "failed to create polygon client", err)
		}
	case ProviderBinance:
		marketProvider, err = provider.NewBinanceClient()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidProvider, "failed to create binance client", err)
		}
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidProvider, "unsupported provider type: %s", config.ProviderType)
	}

	return newClient(config, marketProvider, validate, onProgress, log), nil
}

// NewClientWithProvider creates a client around an existing provider.
// Used to point the client at a custom endpoint or a test double.
func NewClientWithProvider(config ClientConfig, marketProvider provider.Provider, onProgress provider.OnDownloadProgress, log *logger.Logger) (*Client, error) {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid client configuration", err)
	}

	if marketProvider == nil {
		return nil, errors.New(errors.ErrCodeInvalidProvider, "provider is required")
	}

	return newClient(config, marketProvider, validate, onProgress, log), nil
}

func newClient(config ClientConfig, marketProvider provider.Provider, validate *validator.Validate, onProgress provider.OnDownloadProgress, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Client{
		provider:   marketProvider,
		config:     config,
		validate:   validate,
		onProgress: onProgress,
		log:        log,
	}
}

// Download fetches bars for the requested range and writes them to a
// file under DataPath. It returns the path of the written file. A failed
// download leaves no partial file behind.
func (c *Client) Download(ctx context.Context, params DownloadParams) (string, error) {
	if err := c.validate.Struct(params); err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidParameter, "invalid download parameters", err)
	}

	marketWriter, outputPath, err := c.setupWriter(params)
	if err != nil {
		return "", err
	}

	c.provider.ConfigWriter(marketWriter)

	c.log.Info("downloading market data",
		zap.String("ticker", params.Ticker),
		zap.Time("start", params.StartDate),
		zap.Time("end", params.EndDate),
		zap.String("output", outputPath),
	)

	path, downloadErr := c.provider.Download(
		ctx,
		params.Ticker,
		params.StartDate,
		params.EndDate,
		params.Multiplier,
		params.Timespan,
		c.onProgress,
	)

	if closeErr := marketWriter.Close(); closeErr != nil {
		c.log.Warn("failed to close market data writer", zap.Error(closeErr))
	}

	if downloadErr != nil {
		c.removePartialFile(outputPath)

		return "", downloadErr
	}

	return path, nil
}

// Sync refreshes the bar cache for the requested range, fetching only
// bars newer than the most recent one already stored. A failed sync may
// leave a partial window in the store; the next sync resumes from the
// newest stored bar.
func (c *Client) Sync(ctx context.Context, barStore store.BarStore, params SyncParams) error {
	if err := c.validate.Struct(params); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid sync parameters", err)
	}

	if err := params.Timespan.Validate(); err != nil {
		return err
	}

	latest, err := barStore.LatestBarTime(ctx, params.Ticker)
	if err != nil {
		return err
	}

	start := params.StartDate

	if latest.IsSome() {
		next := latest.Unwrap().Add(params.Timespan.Duration())
		if next.After(start) {
			start = next
		}
	}

	if !start.Before(params.EndDate) {
		c.log.Info("bar cache is up to date",
			zap.String("ticker", params.Ticker),
			zap.Time("end", params.EndDate),
		)

		return nil
	}

	storeWriter := writer.NewStoreWriter(barStore)
	if err := storeWriter.Initialize(); err != nil {
		return err
	}

	c.provider.ConfigWriter(storeWriter)

	c.log.Info("syncing market data",
		zap.String("ticker", params.Ticker),
		zap.Time("start", start),
		zap.Time("end", params.EndDate),
	)

	_, downloadErr := c.provider.Download(
		ctx,
		params.Ticker,
		start,
		params.EndDate,
		params.Timespan.Multiplier(),
		params.Timespan.Timespan(),
		c.onProgress,
	)

	if closeErr := storeWriter.Close(); closeErr != nil {
		c.log.Warn("failed to close store writer", zap.Error(closeErr))
	}

	return downloadErr
}

// setupWriter initializes the market data writer named in the
// configuration and returns it with its output path.
func (c *Client) setupWriter(params DownloadParams) (writer.MarketDataWriter, string, error) {
	var extension string

	switch c.config.WriterType {
	case WriterDuckDB:
		extension = "parquet"
	case WriterCSV:
		extension = "csv"
	default:
		return nil, "", errors.Newf(errors.ErrCodeInvalidWriter, "unsupported writer type: %s", c.config.WriterType)
	}

	// Filename layout: TICKER_START_END_MULTIPLIER_TIMESPAN.EXT
	outputFileName := fmt.Sprintf("%s_%s_%s_%d_%s.%s",
		params.Ticker,
		params.StartDate.Format("2006-01-02"),
		params.EndDate.Format("2006-01-02"),
		params.Multiplier,
		params.Timespan,
		extension)
	outputPath := filepath.Join(c.config.DataPath, outputFileName)

	if err := os.MkdirAll(c.config.DataPath, 0o755); err != nil {
		return nil, "", errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to create data directory %s", c.config.DataPath)
	}

	var marketWriter writer.MarketDataWriter
	if c.config.WriterType == WriterCSV {
		marketWriter = writer.NewCSVWriter(outputPath)
	} else {
		marketWriter = writer.NewDuckDBWriter(outputPath)
	}

	if err := marketWriter.Initialize(); err != nil {
		return nil, "", errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to initialize %s writer at %s", c.config.WriterType, outputPath)
	}

	return marketWriter, outputPath, nil
}

// removePartialFile deletes the output file left by a failed download.
func (c *Client) removePartialFile(path string) {
	if path == "" {
		return
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.log.Warn("failed to remove partial download file",
			zap.String("path", path),
			zap.Error(err),
		)
	}
}
