package provider

import (
	"context"
	"fmt"
	"iter"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/schollz/progressbar/v3"

	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
	"github.com/stratsim-lab/stratsim/pkg/marketdata/writer"
)

// PolygonAggsIterator is the slice of the polygon aggregates iterator the
// download loop needs.
type PolygonAggsIterator interface {
	Next() bool
	Item() models.Agg
	Err() error
}

// PolygonAPIClient abstracts the polygon REST client so downloads can be
// tested without a live endpoint.
type PolygonAPIClient interface {
	ListAggs(ctx context.Context, params *models.ListAggsParams, options ...models.RequestOption) PolygonAggsIterator
}

// polygonAPIAdapter adapts the polygon SDK client to PolygonAPIClient.
type polygonAPIAdapter struct {
	client *polygon.Client
}

func (a polygonAPIAdapter) ListAggs(ctx context.Context, params *models.ListAggsParams, options ...models.RequestOption) PolygonAggsIterator {
	return a.client.ListAggs(ctx, params, options...)
}

type PolygonClient struct {
	apiClient PolygonAPIClient
	writer    writer.MarketDataWriter
}

func NewPolygonClient(apiKey string) (Provider, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "apiKey is required")
	}

	return &PolygonClient{
		apiClient: polygonAPIAdapter{client: polygon.New(apiKey)},
		writer:    nil,
	}, nil
}

// NewPolygonClientWithAPI creates a polygon provider with an injected API
// client.
func NewPolygonClientWithAPI(api PolygonAPIClient) *PolygonClient {
	return &PolygonClient{
		apiClient: api,
		writer:    nil,
	}
}

func (c *PolygonClient) ConfigWriter(w writer.MarketDataWriter) {
	c.writer = w
}

func (c *PolygonClient) Download(ctx context.Context, ticker string, startDate time.Time, endDate time.Time, multiplier int, timespan models.Timespan, onProgress OnDownloadProgress) (path string, err error) {
	if c.writer == nil {
		return "", errors.New(errors.ErrCodeInvalidWriter, "no writer configured for PolygonClient, call ConfigWriter first")
	}

	totalDays := int(endDate.Sub(startDate).Hours()/24) + 1

	bar := progressbar.NewOptions(totalDays,
		progressbar.OptionSetDescription(fmt.Sprintf("Downloading %s", ticker)),
		progressbar.OptionShowCount(),
	)

	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     ticker,
		Multiplier: multiplier,
		Timespan:   timespan,
		From:       models.Millis(startDate),
		To:         models.Millis(endDate),
	}.WithLimit(50000)

	aggs := c.apiClient.ListAggs(ctx, params)

	processedCount := 0

	for aggs.Next() {
		if err := ctx.Err(); err != nil {
			return "", errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "download canceled for %s", ticker)
		}

		agg := aggs.Item()
		data := types.Bar{
			Time:   time.Time(agg.Timestamp),
			Symbol: ticker,
			Open:   agg.Open,
			High:   agg.High,
			Low:    agg.Low,
			Close:  agg.Close,
			Volume: agg.Volume,
		}

		if err := c.writer.Write(data); err != nil {
			return "", errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to write data for %s", ticker)
		}

		processedCount++
		if processedCount%1000 == 0 {
			daysElapsed := int(time.Time(agg.Timestamp).Sub(startDate).Hours() / 24)
			bar.Set(daysElapsed)

			if onProgress != nil {
				onProgress(float64(daysElapsed), float64(totalDays), fmt.Sprintf("Downloading %s", ticker))
			}
		}
	}

	if aggs.Err() != nil {
		return "", errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, aggs.Err(), "error iterating polygon aggregates for %s", ticker)
	}

	bar.Finish()

	if onProgress != nil {
		onProgress(float64(totalDays), float64(totalDays), fmt.Sprintf("Downloaded %d bars for %s", processedCount, ticker))
	}

	outputPath, err := c.writer.Finalize()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to finalize writer", err)
	}

	return outputPath, nil
}

// Stream is not supported for Polygon. The iterator yields a single error.
func (c *PolygonClient) Stream(ctx context.Context, symbols []string, interval string) iter.Seq2[types.Bar, error] {
	return func(yield func(types.Bar, error) bool) {
		yield(types.Bar{}, errors.New(errors.ErrCodeStreamNotSupported, "streaming is not supported for the polygon provider"))
	}
}
