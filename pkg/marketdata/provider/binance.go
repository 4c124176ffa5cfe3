package provider

import (
	"context"
	"fmt"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/polygon-io/client-go/rest/models"

	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
	"github.com/stratsim-lab/stratsim/pkg/marketdata/writer"
)

// binancePageSize is the kline page size requested from the REST API. A
// response shorter than this marks the last page.
const binancePageSize = 500

// BinanceKlinesService is the slice of the binance klines request builder
// the download loop needs.
type BinanceKlinesService interface {
	Symbol(symbol string) BinanceKlinesService
	Interval(interval string) BinanceKlinesService
	StartTime(startTime int64) BinanceKlinesService
	EndTime(endTime int64) BinanceKlinesService
	Limit(limit int) BinanceKlinesService
	Do(ctx context.Context) ([]*binance.Kline, error)
}

// BinanceAPIClient abstracts the binance REST client so downloads can be
// tested without a live endpoint.
type BinanceAPIClient interface {
	NewKlinesService() BinanceKlinesService
}

// binanceAPIAdapter adapts the binance SDK client to BinanceAPIClient.
type binanceAPIAdapter struct {
	client *binance.Client
}

func (a binanceAPIAdapter) NewKlinesService() BinanceKlinesService {
	return &binanceKlinesAdapter{svc: a.client.NewKlinesService()}
}

type binanceKlinesAdapter struct {
	svc *binance.KlinesService
}

func (a *binanceKlinesAdapter) Symbol(symbol string) BinanceKlinesService {
	a.svc.Symbol(symbol)

	return a
}

func (a *binanceKlinesAdapter) Interval(interval string) BinanceKlinesService {
	a.svc.Interval(interval)

	return a
}

func (a *binanceKlinesAdapter) StartTime(startTime int64) BinanceKlinesService {
	a.svc.StartTime(startTime)

	return a
}

func (a *binanceKlinesAdapter) EndTime(endTime int64) BinanceKlinesService {
	a.svc.EndTime(endTime)

	return a
}

func (a *binanceKlinesAdapter) Limit(limit int) BinanceKlinesService {
	a.svc.Limit(limit)

	return a
}

func (a *binanceKlinesAdapter) Do(ctx context.Context) ([]*binance.Kline, error) {
	return a.svc.Do(ctx)
}

type BinanceClient struct {
	apiClient BinanceAPIClient
	ws        BinanceWebSocketService
	writer    writer.MarketDataWriter
}

// BinanceEndpointConfig overrides the default Binance endpoints. Empty
// fields keep the defaults. Used to point the client at a mock server.
type BinanceEndpointConfig struct {
	RestBaseURL string
	WsBaseURL   string
}

// NewBinanceClient creates a Binance provider against the public
// endpoints. Market data on Binance needs no authentication.
func NewBinanceClient() (Provider, error) {
	return &BinanceClient{
		apiClient: binanceAPIAdapter{client: binance.NewClient("", "")},
		ws:        defaultBinanceWsService{},
	}, nil
}

// NewBinanceClientWithEndpoints creates a Binance provider against custom
// endpoints.
func NewBinanceClientWithEndpoints(config BinanceEndpointConfig) (Provider, error) {
	client := binance.NewClient("", "")
	if config.RestBaseURL != "" {
		client.BaseURL = config.RestBaseURL
	}

	var ws BinanceWebSocketService = defaultBinanceWsService{}
	if config.WsBaseURL != "" {
		ws = &endpointBinanceWsService{baseURL: config.WsBaseURL}
	}

	return &BinanceClient{
		apiClient: binanceAPIAdapter{client: client},
		ws:        ws,
	}, nil
}

// NewBinanceClientWithAPI creates a Binance provider with an injected API
// client.
func NewBinanceClientWithAPI(api BinanceAPIClient) *BinanceClient {
	return &BinanceClient{
		apiClient: api,
		ws:        defaultBinanceWsService{},
	}
}

// NewBinanceClientWithWebSocket creates a Binance provider with an injected
// websocket service. The REST client may be nil when only streaming is used.
func NewBinanceClientWithWebSocket(client *binance.Client, ws BinanceWebSocketService) Provider {
	var api BinanceAPIClient
	if client != nil {
		api = binanceAPIAdapter{client: client}
	}

	return &BinanceClient{
		apiClient: api,
		ws:        ws,
	}
}

func (c *BinanceClient) ConfigWriter(w writer.MarketDataWriter) {
	c.writer = w
}

// Download downloads historical klines for the ticker and date range and
// writes them through the configured writer. Binance caps responses at 500
// klines, so the range is paged by the close time of the last kline.
func (c *BinanceClient) Download(ctx context.Context, ticker string, startDate time.Time, endDate time.Time, multiplier int, timespan models.Timespan, onProgress OnDownloadProgress) (path string, err error) {
	interval, err := convertTimespanToBinanceInterval(timespan, multiplier)
	if err != nil {
		return "", err
	}

	if c.writer == nil {
		return "", errors.New(errors.ErrCodeInvalidWriter, "no writer configured for BinanceClient, call ConfigWriter first")
	}

	startTimeMillis := startDate.UnixMilli()
	endTimeMillis := endDate.UnixMilli()
	currentStartTime := startTimeMillis

	for {
		if err := ctx.Err(); err != nil {
			return "", errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "download canceled for %s", ticker)
		}

		klines, err := c.apiClient.NewKlinesService().
			Symbol(ticker).
			Interval(interval).
			StartTime(currentStartTime).
			EndTime(endTimeMillis).
			Limit(binancePageSize).
			Do(ctx)
		if err != nil {
			return "", errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch klines from Binance for %s", ticker)
		}

		if onProgress != nil {
			onProgress(float64(currentStartTime-startTimeMillis), float64(endTimeMillis-startTimeMillis), fmt.Sprintf("Downloading %s klines from Binance", ticker))
		}

		if err := processKlines(c.writer, ticker, klines); err != nil {
			return "", err
		}

		// A short page is the last page.
		if len(klines) < binancePageSize {
			break
		}

		// Continue after the close of the last kline to avoid duplicates.
		currentStartTime = klines[len(klines)-1].CloseTime + 1
		if currentStartTime >= endTimeMillis {
			break
		}
	}

	outputPath, err := c.writer.Finalize()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to finalize writer", err)
	}

	return outputPath, nil
}

// processKlines converts a page of klines to bars and writes them.
func processKlines(w writer.MarketDataWriter, ticker string, klines []*binance.Kline) error {
	for _, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closePrice, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)

		bar := types.Bar{
			Time:   time.UnixMilli(k.OpenTime),
			Symbol: ticker,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		}

		if err := w.Write(bar); err != nil {
			return errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to write bar for %s", ticker)
		}
	}

	return nil
}

// convertTimespanToBinanceInterval converts a timespan and multiplier to a
// Binance interval string.
// Binance intervals: 1s, 1m, 3m, 5m, 15m, 30m, 1h, 2h, 4h, 6h, 8h, 12h, 1d, 3d, 1w, 1M
// Ref: https://binance-docs.github.io/apidocs/spot/en/#kline-candlestick-data
func convertTimespanToBinanceInterval(timespan models.Timespan, multiplier int) (string, error) {
	switch timespan {
	case models.Second:
		if multiplier == 1 {
			return "1s", nil
		}

		return "", errors.Newf(errors.ErrCodeInvalidTimespan, "unsupported second multiplier for Binance: %d", multiplier)
	case models.Minute:
		return fmt.Sprintf("%dm", multiplier), nil
	case models.Hour:
		return fmt.Sprintf("%dh", multiplier), nil
	case models.Day:
		return fmt.Sprintf("%dd", multiplier), nil
	case models.Week:
		if multiplier == 1 {
			return "1w", nil
		}

		return "", errors.Newf(errors.ErrCodeInvalidTimespan, "unsupported weekly multiplier for Binance: %d", multiplier)
	case models.Month:
		if multiplier == 1 {
			return "1M", nil
		}

		return "", errors.Newf(errors.ErrCodeInvalidTimespan, "unsupported monthly multiplier for Binance: %d", multiplier)
	default:
		return "", errors.Newf(errors.ErrCodeInvalidTimespan, "unsupported timespan for Binance: %s", timespan)
	}
}
