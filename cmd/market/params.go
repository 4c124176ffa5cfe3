package main

import (
	"fmt"
	"time"

	"github.com/stratsim-lab/stratsim/pkg/marketdata"
)

// buildDownloadParams converts the CLI flag values into validated download
// parameters, mapping the interval string onto the provider multiplier and
// timespan pair.
func buildDownloadParams(ticker string, start, end time.Time, interval string) (marketdata.DownloadParams, error) {
	timespan := marketdata.Timespan(interval)
	if err := timespan.Validate(); err != nil {
		return marketdata.DownloadParams{}, err
	}

	if !end.After(start) {
		return marketdata.DownloadParams{}, fmt.Errorf("end date %s must be after start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	return marketdata.DownloadParams{
		Ticker:     ticker,
		StartDate:  start,
		EndDate:    end,
		Multiplier: timespan.Multiplier(),
		Timespan:   timespan.Timespan(),
	}, nil
}
