package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/stretchr/testify/suite"

	"github.com/stratsim-lab/stratsim/internal/types"
	stratsimerrors "github.com/stratsim-lab/stratsim/pkg/errors"
)

// mockWriter is a simple mock implementation of MarketDataWriter for testing.
type mockWriter struct {
	writeErr          error
	finalizeErr       error
	closeErr          error
	outputPath        string
	writtenData       []types.Bar
	writeCallCount    int
	finalizeCallCount int
	closeCallCount    int
	initializeCalls   int
}

func (m *mockWriter) Initialize() error {
	m.initializeCalls++

	return nil
}

func (m *mockWriter) Write(bar types.Bar) error {
	m.writeCallCount++
	if m.writeErr != nil {
		return m.writeErr
	}

	m.writtenData = append(m.writtenData, bar)

	return nil
}

func (m *mockWriter) Finalize() (string, error) {
	m.finalizeCallCount++
	if m.finalizeErr != nil {
		return "", m.finalizeErr
	}

	return m.outputPath, nil
}

func (m *mockWriter) Close() error {
	m.closeCallCount++

	return m.closeErr
}

func (m *mockWriter) GetOutputPath() string {
	return m.outputPath
}

// mockBinanceAPIClient implements BinanceAPIClient for testing.
type mockBinanceAPIClient struct {
	klines    []*binance.Kline
	klinesErr error
	// Per-call responses for pagination testing.
	callCount     int
	klinesPerCall [][]*binance.Kline
	errorsPerCall []error
}

func (m *mockBinanceAPIClient) NewKlinesService() BinanceKlinesService {
	return &mockBinanceKlinesService{client: m}
}

type mockBinanceKlinesService struct {
	client   *mockBinanceAPIClient
	symbol   string
	interval string
	start    int64
	end      int64
	limit    int
}

func (m *mockBinanceKlinesService) Symbol(symbol string) BinanceKlinesService {
	m.symbol = symbol

	return m
}

func (m *mockBinanceKlinesService) Interval(interval string) BinanceKlinesService {
	m.interval = interval

	return m
}

func (m *mockBinanceKlinesService) StartTime(startTime int64) BinanceKlinesService {
	m.start = startTime

	return m
}

func (m *mockBinanceKlinesService) EndTime(endTime int64) BinanceKlinesService {
	m.end = endTime

	return m
}

func (m *mockBinanceKlinesService) Limit(limit int) BinanceKlinesService {
	m.limit = limit

	return m
}

func (m *mockBinanceKlinesService) Do(_ context.Context) ([]*binance.Kline, error) {
	if len(m.client.klinesPerCall) > 0 {
		idx := m.client.callCount
		m.client.callCount++

		if idx < len(m.client.klinesPerCall) {
			var err error
			if idx < len(m.client.errorsPerCall) {
				err = m.client.errorsPerCall[idx]
			}

			return m.client.klinesPerCall[idx], err
		}

		return nil, nil
	}

	return m.client.klines, m.client.klinesErr
}

type BinanceClientTestSuite struct {
	suite.Suite
}

func TestBinanceClientSuite(t *testing.T) {
	suite.Run(t, new(BinanceClientTestSuite))
}

func (suite *BinanceClientTestSuite) TestNewBinanceClient() {
	client, err := NewBinanceClient()
	suite.NoError(err)
	suite.NotNil(client)

	binanceClient, ok := client.(*BinanceClient)
	suite.True(ok)
	suite.NotNil(binanceClient.apiClient)
	suite.NotNil(binanceClient.ws)
	suite.Nil(binanceClient.writer)
}

func (suite *BinanceClientTestSuite) TestNewBinanceClientWithAPI() {
	mockAPI := &mockBinanceAPIClient{}
	client := NewBinanceClientWithAPI(mockAPI)
	suite.NotNil(client)
	suite.Equal(mockAPI, client.apiClient)
	suite.Nil(client.writer)
}

func (suite *BinanceClientTestSuite) TestConfigWriter() {
	client, err := NewBinanceClient()
	suite.Require().NoError(err)

	binanceClient := client.(*BinanceClient)
	suite.Nil(binanceClient.writer)

	mockW := &mockWriter{}
	binanceClient.ConfigWriter(mockW)
	suite.Equal(mockW, binanceClient.writer)
}

func (suite *BinanceClientTestSuite) TestDownloadWithoutWriter() {
	client, err := NewBinanceClient()
	suite.Require().NoError(err)

	startDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	endDate := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	_, err = client.Download(context.Background(), "BTCUSDT", startDate, endDate, 1, models.Minute, nil)
	suite.Error(err)
	suite.Contains(err.Error(), "no writer configured")
	suite.True(stratsimerrors.HasCode(err, stratsimerrors.ErrCodeInvalidWriter))
}

func (suite *BinanceClientTestSuite) TestDownloadWithInvalidTimespan() {
	client, err := NewBinanceClient()
	suite.Require().NoError(err)

	binanceClient := client.(*BinanceClient)
	binanceClient.ConfigWriter(&mockWriter{})

	startDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	endDate := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	// Quarter is not supported by Binance.
	_, err = binanceClient.Download(context.Background(), "BTCUSDT", startDate, endDate, 1, models.Quarter, nil)
	suite.Error(err)
	suite.Contains(err.Error(), "unsupported timespan")
	suite.True(stratsimerrors.HasCode(err, stratsimerrors.ErrCodeInvalidTimespan))
}

func (suite *BinanceClientTestSuite) TestConvertTimespanToBinanceInterval() {
	tests := []struct {
		name       string
		timespan   models.Timespan
		multiplier int
		want       string
		wantErr    bool
		errMsg     string
	}{
		{name: "1 second", timespan: models.Second, multiplier: 1, want: "1s"},
		{name: "5 seconds - unsupported", timespan: models.Second, multiplier: 5, wantErr: true, errMsg: "unsupported second multiplier"},
		{name: "1 minute", timespan: models.Minute, multiplier: 1, want: "1m"},
		{name: "5 minutes", timespan: models.Minute, multiplier: 5, want: "5m"},
		{name: "15 minutes", timespan: models.Minute, multiplier: 15, want: "15m"},
		{name: "30 minutes", timespan: models.Minute, multiplier: 30, want: "30m"},
		{name: "1 hour", timespan: models.Hour, multiplier: 1, want: "1h"},
		{name: "4 hours", timespan: models.Hour, multiplier: 4, want: "4h"},
		{name: "1 day", timespan: models.Day, multiplier: 1, want: "1d"},
		{name: "3 days", timespan: models.Day, multiplier: 3, want: "3d"},
		{name: "1 week", timespan: models.Week, multiplier: 1, want: "1w"},
		{name: "2 weeks - unsupported", timespan: models.Week, multiplier: 2, wantErr: true, errMsg: "unsupported weekly multiplier"},
		{name: "1 month", timespan: models.Month, multiplier: 1, want: "1M"},
		{name: "3 months - unsupported", timespan: models.Month, multiplier: 3, wantErr: true, errMsg: "unsupported monthly multiplier"},
		{name: "quarter - unsupported", timespan: models.Quarter, multiplier: 1, wantErr: true, errMsg: "unsupported timespan"},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			got, err := convertTimespanToBinanceInterval(tt.timespan, tt.multiplier)
			if tt.wantErr {
				suite.Error(err)
				suite.Contains(err.Error(), tt.errMsg)
			} else {
				suite.NoError(err)
				suite.Equal(tt.want, got)
			}
		})
	}
}

func (suite *BinanceClientTestSuite) TestProcessKlines() {
	klines := []*binance.Kline{
		{
			OpenTime:  1704067200000, // 2024-01-01 00:00:00 UTC
			Open:      "42000.50",
			High:      "42500.00",
			Low:       "41800.00",
			Close:     "42300.00",
			Volume:    "1000.5",
			CloseTime: 1704067259999,
		},
		{
			OpenTime:  1704067260000, // 2024-01-01 00:01:00 UTC
			Open:      "42300.00",
			High:      "42400.00",
			Low:       "42200.00",
			Close:     "42350.00",
			Volume:    "500.25",
			CloseTime: 1704067319999,
		},
	}

	mockW := &mockWriter{}

	err := processKlines(mockW, "BTCUSDT", klines)
	suite.NoError(err)
	suite.Require().Len(mockW.writtenData, 2)

	bar0 := mockW.writtenData[0]
	suite.Equal("BTCUSDT", bar0.Symbol)
	suite.Equal(time.UnixMilli(1704067200000), bar0.Time)
	suite.InDelta(42000.50, bar0.Open, 0.01)
	suite.InDelta(42500.00, bar0.High, 0.01)
	suite.InDelta(41800.00, bar0.Low, 0.01)
	suite.InDelta(42300.00, bar0.Close, 0.01)
	suite.InDelta(1000.5, bar0.Volume, 0.01)

	bar1 := mockW.writtenData[1]
	suite.Equal(time.UnixMilli(1704067260000), bar1.Time)
	suite.InDelta(42350.00, bar1.Close, 0.01)
}

func (suite *BinanceClientTestSuite) TestProcessKlinesEmpty() {
	mockW := &mockWriter{}
	err := processKlines(mockW, "BTCUSDT", []*binance.Kline{})
	suite.NoError(err)
	suite.Len(mockW.writtenData, 0)
}

func (suite *BinanceClientTestSuite) TestProcessKlinesWriteError() {
	klines := []*binance.Kline{
		{
			OpenTime:  1704067200000,
			Open:      "42000.50",
			High:      "42500.00",
			Low:       "41800.00",
			Close:     "42300.00",
			Volume:    "1000.5",
			CloseTime: 1704067259999,
		},
	}

	mockW := &mockWriter{writeErr: errors.New("write failed")}

	err := processKlines(mockW, "BTCUSDT", klines)
	suite.Error(err)
	suite.Contains(err.Error(), "failed to write bar")
}

func (suite *BinanceClientTestSuite) TestDownloadSuccess() {
	klines := []*binance.Kline{
		{
			OpenTime:  1704067200000,
			Open:      "42000.50",
			High:      "42500.00",
			Low:       "41800.00",
			Close:     "42300.00",
			Volume:    "1000.5",
			CloseTime: 1704067259999,
		},
		{
			OpenTime:  1704067260000,
			Open:      "42300.00",
			High:      "42400.00",
			Low:       "42200.00",
			Close:     "42350.00",
			Volume:    "500.25",
			CloseTime: 1704067319999,
		},
	}

	mockAPI := &mockBinanceAPIClient{klines: klines}
	mockW := &mockWriter{outputPath: "/tmp/test.parquet"}

	client := NewBinanceClientWithAPI(mockAPI)
	client.ConfigWriter(mockW)

	startDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	endDate := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	path, err := client.Download(context.Background(), "BTCUSDT", startDate, endDate, 1, models.Minute, nil)
	suite.NoError(err)
	suite.Equal("/tmp/test.parquet", path)
	suite.Len(mockW.writtenData, 2)
	suite.Equal(1, mockW.finalizeCallCount)

	// The writer lifecycle belongs to the caller, not the provider.
	suite.Equal(0, mockW.initializeCalls)
	suite.Equal(0, mockW.closeCallCount)
}

func (suite *BinanceClientTestSuite) TestDownloadEmptyKlines() {
	mockAPI := &mockBinanceAPIClient{klines: []*binance.Kline{}}
	mockW := &mockWriter{outputPath: "/tmp/empty.parquet"}

	client := NewBinanceClientWithAPI(mockAPI)
	client.ConfigWriter(mockW)

	startDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	endDate := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	path, err := client.Download(context.Background(), "BTCUSDT", startDate, endDate, 1, models.Minute, nil)
	suite.NoError(err)
	suite.Equal("/tmp/empty.parquet", path)
	suite.Len(mockW.writtenData, 0)
}

func (suite *BinanceClientTestSuite) TestDownloadAPIError() {
	mockAPI := &mockBinanceAPIClient{klinesErr: errors.New("API rate limit exceeded")}
	mockW := &mockWriter{outputPath: "/tmp/test.parquet"}

	client := NewBinanceClientWithAPI(mockAPI)
	client.ConfigWriter(mockW)

	startDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	endDate := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	_, err := client.Download(context.Background(), "BTCUSDT", startDate, endDate, 1, models.Minute, nil)
	suite.Error(err)
	suite.Contains(err.Error(), "failed to fetch klines from Binance")
	suite.Contains(err.Error(), "API rate limit exceeded")

	// A failed fetch must not finalize partial data.
	suite.Equal(0, mockW.finalizeCallCount)
}

func (suite *BinanceClientTestSuite) TestDownloadFinalizeError() {
	klines := []*binance.Kline{
		{
			OpenTime:  1704067200000,
			Open:      "42000.50",
			High:      "42500.00",
			Low:       "41800.00",
			Close:     "42300.00",
			Volume:    "1000.5",
			CloseTime: 1704067259999,
		},
	}

	mockAPI := &mockBinanceAPIClient{klines: klines}
	mockW := &mockWriter{finalizeErr: errors.New("disk full")}

	client := NewBinanceClientWithAPI(mockAPI)
	client.ConfigWriter(mockW)

	startDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	endDate := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	_, err := client.Download(context.Background(), "BTCUSDT", startDate, endDate, 1, models.Minute, nil)
	suite.Error(err)
	suite.Contains(err.Error(), "failed to finalize writer")
}

func (suite *BinanceClientTestSuite) TestDownloadPagination() {
	// A full page triggers a second request.
	firstPage := make([]*binance.Kline, binancePageSize)
	for i := 0; i < binancePageSize; i++ {
		firstPage[i] = &binance.Kline{
			OpenTime:  1704067200000 + int64(i*60000),
			Open:      "42000.50",
			High:      "42500.00",
			Low:       "41800.00",
			Close:     "42300.00",
			Volume:    "1000.5",
			CloseTime: 1704067200000 + int64(i*60000) + 59999,
		}
	}

	secondPage := []*binance.Kline{
		{
			OpenTime:  1704067200000 + int64(binancePageSize*60000),
			Open:      "42300.00",
			High:      "42400.00",
			Low:       "42200.00",
			Close:     "42350.00",
			Volume:    "500.25",
			CloseTime: 1704067200000 + int64(binancePageSize*60000) + 59999,
		},
	}

	mockAPI := &mockBinanceAPIClient{
		klinesPerCall: [][]*binance.Kline{firstPage, secondPage},
	}
	mockW := &mockWriter{outputPath: "/tmp/paginated.parquet"}

	client := NewBinanceClientWithAPI(mockAPI)
	client.ConfigWriter(mockW)

	startDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	endDate := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	path, err := client.Download(context.Background(), "BTCUSDT", startDate, endDate, 1, models.Minute, nil)
	suite.NoError(err)
	suite.Equal("/tmp/paginated.parquet", path)
	suite.Len(mockW.writtenData, binancePageSize+1)
	suite.Equal(2, mockAPI.callCount)

	// Bar times stay strictly increasing across the page boundary.
	for i := 1; i < len(mockW.writtenData); i++ {
		suite.True(mockW.writtenData[i].Time.After(mockW.writtenData[i-1].Time))
	}
}

func (suite *BinanceClientTestSuite) TestDownloadPaginationAPIErrorOnSecondPage() {
	firstPage := make([]*binance.Kline, binancePageSize)
	for i := 0; i < binancePageSize; i++ {
		firstPage[i] = &binance.Kline{
			OpenTime:  1704067200000 + int64(i*60000),
			Open:      "42000.50",
			High:      "42500.00",
			Low:       "41800.00",
			Close:     "42300.00",
			Volume:    "1000.5",
			CloseTime: 1704067200000 + int64(i*60000) + 59999,
		}
	}

	mockAPI := &mockBinanceAPIClient{
		klinesPerCall: [][]*binance.Kline{firstPage, nil},
		errorsPerCall: []error{nil, errors.New("connection timeout")},
	}
	mockW := &mockWriter{outputPath: "/tmp/test.parquet"}

	client := NewBinanceClientWithAPI(mockAPI)
	client.ConfigWriter(mockW)

	startDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	endDate := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	_, err := client.Download(context.Background(), "BTCUSDT", startDate, endDate, 1, models.Minute, nil)
	suite.Error(err)
	suite.Contains(err.Error(), "failed to fetch klines from Binance")
	suite.Contains(err.Error(), "connection timeout")
	suite.Equal(0, mockW.finalizeCallCount)
}

func (suite *BinanceClientTestSuite) TestDownloadProgressIsRelative() {
	klines := []*binance.Kline{
		{
			OpenTime:  1704067200000,
			Open:      "42000.50",
			High:      "42500.00",
			Low:       "41800.00",
			Close:     "42300.00",
			Volume:    "1000.5",
			CloseTime: 1704067259999,
		},
	}

	mockAPI := &mockBinanceAPIClient{klines: klines}
	mockW := &mockWriter{outputPath: "/tmp/test.parquet"}

	client := NewBinanceClientWithAPI(mockAPI)
	client.ConfigWriter(mockW)

	startDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	endDate := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	var calls int

	_, err := client.Download(context.Background(), "BTCUSDT", startDate, endDate, 1, models.Minute, func(current float64, total float64, message string) {
		calls++
		// Progress markers are offsets into the range, not raw timestamps.
		suite.GreaterOrEqual(current, float64(0))
		suite.LessOrEqual(current, total)
		suite.Less(total, float64(1e12))
		suite.Contains(message, "BTCUSDT")
	})
	suite.NoError(err)
	suite.GreaterOrEqual(calls, 1)
}

func (suite *BinanceClientTestSuite) TestDownloadCancellation() {
	mockAPI := &mockBinanceAPIClient{klines: []*binance.Kline{}}
	mockW := &mockWriter{outputPath: "/tmp/test.parquet"}

	client := NewBinanceClientWithAPI(mockAPI)
	client.ConfigWriter(mockW)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	startDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	endDate := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	_, err := client.Download(ctx, "BTCUSDT", startDate, endDate, 1, models.Minute, nil)
	suite.Error(err)
	suite.ErrorIs(err, context.Canceled)
	suite.Equal(0, mockW.finalizeCallCount)
}
