// Package mockserver provides an in-process Binance-compatible market data
// server for tests and demos. It serves the kline REST endpoint and a kline
// websocket stream with deterministic, seeded data.
package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/stratsim-lab/stratsim/mocks"
)

// klinesMaxLimit mirrors the page size the Binance kline endpoint serves.
const klinesMaxLimit = 500

// ServerConfig controls the data the mock server serves.
type ServerConfig struct {
	// Symbols the server knows. Requests for other symbols return an
	// empty result.
	Symbols []string
	// InitialPrice seeds every symbol's price.
	InitialPrice float64
	// Seed makes generated klines reproducible.
	Seed int64
	// StreamInterval is the wall-clock delay between websocket kline
	// updates.
	StreamInterval time.Duration
	// FinalizeEvery closes the streamed candle on every Nth update.
	FinalizeEvery int
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() ServerConfig {
	return ServerConfig{
		Symbols:        []string{"BTCUSDT"},
		InitialPrice:   50000,
		Seed:           42,
		StreamInterval: 50 * time.Millisecond,
		FinalizeEvery:  2,
	}
}

// MockServer is a Binance-compatible test server. Start it, point a client
// at BaseURL and WebSocketURL, and Stop it when done.
type MockServer struct {
	config   ServerConfig
	router   *mux.Router
	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader
	done     chan struct{}
	stopOnce sync.Once

	mu     sync.RWMutex
	prices map[string]float64
}

// NewMockServer creates a mock server. Zero config fields fall back to
// DefaultConfig values.
func NewMockServer(config ServerConfig) *MockServer {
	defaults := DefaultConfig()

	if len(config.Symbols) == 0 {
		config.Symbols = defaults.Symbols
	}

	if config.InitialPrice == 0 {
		config.InitialPrice = defaults.InitialPrice
	}

	if config.Seed == 0 {
		config.Seed = defaults.Seed
	}

	if config.StreamInterval == 0 {
		config.StreamInterval = defaults.StreamInterval
	}

	if config.FinalizeEvery == 0 {
		config.FinalizeEvery = defaults.FinalizeEvery
	}

	s := &MockServer{
		config: config,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		done:   make(chan struct{}),
		prices: make(map[string]float64, len(config.Symbols)),
	}

	for _, symbol := range config.Symbols {
		s.prices[strings.ToUpper(symbol)] = config.InitialPrice
	}

	s.router.HandleFunc("/api/v3/klines", s.handleKlines).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v3/ticker/price", s.handleTickerPrice).Methods(http.MethodGet)
	s.router.HandleFunc("/ws/{symbol}@kline_{interval}", s.handleKlineStream)

	return s
}

// Start binds the server to a random local port.
func (s *MockServer) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = listener
	s.server = &http.Server{Handler: s.router}

	go func() {
		_ = s.server.Serve(listener)
	}()

	return nil
}

// Stop shuts the server down and ends all websocket streams.
func (s *MockServer) Stop() error {
	var err error

	s.stopOnce.Do(func() {
		close(s.done)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
			err = s.server.Close()
		}
	})

	return err
}

// BaseURL returns the REST base URL, e.g. http://127.0.0.1:43210.
func (s *MockServer) BaseURL() string {
	return "http://" + s.listener.Addr().String()
}

// WebSocketURL returns the websocket base URL, e.g. ws://127.0.0.1:43210.
func (s *MockServer) WebSocketURL() string {
	return "ws://" + s.listener.Addr().String()
}

// SetPrice overrides the current price for a symbol.
func (s *MockServer) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[strings.ToUpper(symbol)] = price
}

// GetPrice returns the current price for a symbol, or zero when unknown.
func (s *MockServer) GetPrice(symbol string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.prices[strings.ToUpper(symbol)]
}

func (s *MockServer) knownSymbol(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.prices[symbol]

	return ok
}

// handleKlines serves GET /api/v3/klines in the Binance array format:
// [openTime, open, high, low, close, volume, closeTime, ...].
func (s *MockServer) handleKlines(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	symbol := strings.ToUpper(query.Get("symbol"))
	if symbol == "" {
		http.Error(w, `{"code":-1102,"msg":"Mandatory parameter 'symbol' was not sent."}`, http.StatusBadRequest)

		return
	}

	interval := query.Get("interval")
	if interval == "" {
		interval = "1m"
	}

	intervalDuration, err := parseInterval(interval)
	if err != nil {
		http.Error(w, `{"code":-1120,"msg":"Invalid interval."}`, http.StatusBadRequest)

		return
	}

	limit := klinesMaxLimit
	if rawLimit := query.Get("limit"); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil && parsed > 0 && parsed < klinesMaxLimit {
			limit = parsed
		}
	}

	startTime, _ := strconv.ParseInt(query.Get("startTime"), 10, 64)
	endTime, _ := strconv.ParseInt(query.Get("endTime"), 10, 64)

	intervalMillis := intervalDuration.Milliseconds()
	if endTime == 0 {
		endTime = time.Now().UnixMilli()
	}

	if startTime == 0 {
		startTime = endTime - int64(limit)*intervalMillis
	}

	// Klines open on interval boundaries.
	firstOpen := startTime
	if remainder := firstOpen % intervalMillis; remainder != 0 {
		firstOpen += intervalMillis - remainder
	}

	count := 0
	if firstOpen <= endTime {
		count = int((endTime-firstOpen)/intervalMillis) + 1
	}

	if count > limit {
		count = limit
	}

	klines := make([][]any, 0, count)

	if count > 0 && s.knownSymbol(symbol) {
		klines = s.generateKlines(symbol, firstOpen, intervalDuration, count)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(klines)
}

// generateKlines produces deterministic klines for the window. The seed is
// derived from the server seed and the window start, so the same request
// always returns the same data.
func (s *MockServer) generateKlines(symbol string, firstOpen int64, interval time.Duration, count int) [][]any {
	config := mocks.DefaultConfig()
	config.Symbol = symbol
	config.StartTime = time.UnixMilli(firstOpen).UTC()
	config.Interval = interval
	config.Count = count
	config.InitialPrice = s.GetPrice(symbol)
	config.Volatility = 0.01

	generator := mocks.NewDataGenerator(s.config.Seed + firstOpen)
	bars := generator.Generate(config)

	intervalMillis := interval.Milliseconds()
	klines := make([][]any, 0, len(bars))

	for _, bar := range bars {
		openTime := bar.Time.UnixMilli()
		klines = append(klines, []any{
			openTime,
			formatPrice(bar.Open),
			formatPrice(bar.High),
			formatPrice(bar.Low),
			formatPrice(bar.Close),
			formatPrice(bar.Volume),
			openTime + intervalMillis - 1,
			"0",
			0,
			"0",
			"0",
			"0",
		})
	}

	return klines
}

// handleTickerPrice serves GET /api/v3/ticker/price. With a symbol it
// returns one entry, without it returns all symbols.
func (s *MockServer) handleTickerPrice(w http.ResponseWriter, r *http.Request) {
	type tickerPrice struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}

	w.Header().Set("Content-Type", "application/json")

	if symbol := strings.ToUpper(r.URL.Query().Get("symbol")); symbol != "" {
		_ = json.NewEncoder(w).Encode(tickerPrice{Symbol: symbol, Price: formatPrice(s.GetPrice(symbol))})

		return
	}

	s.mu.RLock()
	all := make([]tickerPrice, 0, len(s.prices))
	for symbol, price := range s.prices {
		all = append(all, tickerPrice{Symbol: symbol, Price: formatPrice(price)})
	}
	s.mu.RUnlock()

	_ = json.NewEncoder(w).Encode(all)
}

// wsKlineEvent matches the Binance kline stream payload.
type wsKlineEvent struct {
	EventType string  `json:"e"`
	EventTime int64   `json:"E"`
	Symbol    string  `json:"s"`
	Kline     wsKline `json:"k"`
}

type wsKline struct {
	StartTime int64  `json:"t"`
	EndTime   int64  `json:"T"`
	Symbol    string `json:"s"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	IsFinal   bool   `json:"x"`
}

// handleKlineStream upgrades to a websocket and streams kline updates for
// the symbol in the path, finalizing a candle every FinalizeEvery updates.
func (s *MockServer) handleKlineStream(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol := strings.ToUpper(vars["symbol"])
	interval := vars["interval"]

	intervalDuration, err := parseInterval(interval)
	if err != nil {
		http.Error(w, "invalid interval", http.StatusBadRequest)

		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Drain client frames to notice a closed connection.
	clientClosed := make(chan struct{})

	go func() {
		defer close(clientClosed)

		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	s.streamKlines(conn, symbol, interval, intervalDuration, clientClosed)
}

// streamKlines emits kline updates until the client disconnects or the
// server stops.
func (s *MockServer) streamKlines(conn *websocket.Conn, symbol, interval string, intervalDuration time.Duration, clientClosed <-chan struct{}) {
	ticker := time.NewTicker(s.config.StreamInterval)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(s.config.Seed))

	openPrice := s.GetPrice(symbol)
	price := openPrice
	high := price
	low := price
	openTime := time.Now().UTC().Truncate(intervalDuration)
	updates := 0

	for {
		select {
		case <-s.done:
			return
		case <-clientClosed:
			return
		case <-ticker.C:
			updates++

			price += price * 0.001 * (rng.Float64() - 0.5)
			if price > high {
				high = price
			}

			if price < low {
				low = price
			}

			isFinal := updates%s.config.FinalizeEvery == 0
			now := time.Now().UTC()

			event := wsKlineEvent{
				EventType: "kline",
				EventTime: now.UnixMilli(),
				Symbol:    symbol,
				Kline: wsKline{
					StartTime: openTime.UnixMilli(),
					EndTime:   openTime.Add(intervalDuration).UnixMilli() - 1,
					Symbol:    symbol,
					Interval:  interval,
					Open:      formatPrice(openPrice),
					Close:     formatPrice(price),
					High:      formatPrice(high),
					Low:       formatPrice(low),
					Volume:    formatPrice(float64(updates) * 10),
					IsFinal:   isFinal,
				},
			}

			if err := conn.WriteJSON(event); err != nil {
				return
			}

			if isFinal {
				openTime = openTime.Add(intervalDuration)
				openPrice = price
				high = price
				low = price

				s.SetPrice(symbol, price)
			}
		}
	}
}

// parseInterval converts a Binance interval string to a duration.
func parseInterval(interval string) (time.Duration, error) {
	switch interval {
	case "1s":
		return time.Second, nil
	case "1m":
		return time.Minute, nil
	case "3m":
		return 3 * time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "2h":
		return 2 * time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "6h":
		return 6 * time.Hour, nil
	case "8h":
		return 8 * time.Hour, nil
	case "12h":
		return 12 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	case "3d":
		return 3 * 24 * time.Hour, nil
	case "1w":
		return 7 * 24 * time.Hour, nil
	case "1M":
		return 30 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown interval: %s", interval)
	}
}

func formatPrice(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
