// Package provider implements market data providers. A provider downloads
// historical bars into a configured writer and, where the venue supports it,
// streams live bars over websocket.
package provider

import (
	"context"
	"iter"
	"time"

	"github.com/polygon-io/client-go/rest/models"

	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/marketdata/writer"
)

// OnDownloadProgress is called during a download with a progress marker and
// a human readable message. The units of current and total depend on the
// provider. A nil callback is allowed.
type OnDownloadProgress = func(current float64, total float64, message string)

type Provider interface {
	// ConfigWriter configures the writer the provider downloads into.
	// The caller owns the writer lifecycle: it initializes the writer
	// before the download and closes it afterwards. The provider only
	// writes bars and finalizes on success.
	ConfigWriter(writer writer.MarketDataWriter)
	// Download downloads bars for the ticker and date range and writes
	// them through the configured writer. It returns the output path
	// reported by the writer's Finalize.
	// example:
	// Download(ctx, "AAPL", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC), 1, models.Minute, onProgress)
	Download(ctx context.Context, ticker string, startDate time.Time, endDate time.Time, multiplier int, timespan models.Timespan, onProgress OnDownloadProgress) (path string, err error)
	// Stream returns an iterator that yields live bars via websocket.
	// The iterator yields bar and error pairs. Cancel the context to
	// stop streaming.
	Stream(ctx context.Context, symbols []string, interval string) iter.Seq2[types.Bar, error]
}
