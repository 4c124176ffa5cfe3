package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/gorilla/websocket"

	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// streamBufferSize is the event buffer per Stream call. Kline events arrive
// at most once per second per symbol, so a small buffer is enough.
const streamBufferSize = 100

// WsKlineHandler handles a kline event from the websocket.
type WsKlineHandler func(event *BinanceWsKlineEvent)

// WsErrorHandler handles a websocket error.
type WsErrorHandler func(err error)

// BinanceWebSocketService abstracts the kline websocket connection so the
// stream can be tested without a live endpoint.
type BinanceWebSocketService interface {
	// WsKlineServe starts a kline subscription for the symbol and
	// interval. It returns a done channel that closes when the
	// connection ends and a stop channel that stops the connection
	// when closed.
	WsKlineServe(symbol string, interval string, handler WsKlineHandler, errHandler WsErrorHandler) (doneC chan struct{}, stopC chan struct{}, err error)
}

// BinanceWsKlineEvent mirrors the Binance kline stream payload.
type BinanceWsKlineEvent struct {
	EventType string         `json:"e"`
	EventTime int64          `json:"E"`
	Symbol    string         `json:"s"`
	Kline     BinanceWsKline `json:"k"`
}

// BinanceWsKline is the kline part of a stream event. Prices and volume
// arrive as strings.
type BinanceWsKline struct {
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

// defaultBinanceWsService connects through the binance SDK.
type defaultBinanceWsService struct{}

func (defaultBinanceWsService) WsKlineServe(symbol string, interval string, handler WsKlineHandler, errHandler WsErrorHandler) (chan struct{}, chan struct{}, error) {
	return binance.WsKlineServe(symbol, interval, func(event *binance.WsKlineEvent) {
		handler(convertBinanceWsEvent(event))
	}, binance.ErrHandler(errHandler))
}

// endpointBinanceWsService dials a custom websocket endpoint using the same
// stream path scheme as Binance: <base>/ws/<symbol>@kline_<interval>.
type endpointBinanceWsService struct {
	baseURL string
}

func (s *endpointBinanceWsService) WsKlineServe(symbol string, interval string, handler WsKlineHandler, errHandler WsErrorHandler) (chan struct{}, chan struct{}, error) {
	endpoint := fmt.Sprintf("%s/ws/%s@kline_%s", s.baseURL, strings.ToLower(symbol), interval)

	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		return nil, nil, err
	}

	doneC := make(chan struct{})
	stopC := make(chan struct{})

	go func() {
		<-stopC
		conn.Close()
	}()

	go func() {
		defer close(doneC)

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				// A read error after stop is the connection being torn down.
				select {
				case <-stopC:
				default:
					errHandler(err)
				}

				return
			}

			var event BinanceWsKlineEvent
			if err := json.Unmarshal(message, &event); err != nil {
				errHandler(err)

				continue
			}

			handler(&event)
		}
	}()

	return doneC, stopC, nil
}

// Stream subscribes to kline streams for the given symbols and yields one
// bar per finalized candle. Unfinished candle updates are dropped. The
// iterator ends when the context is canceled or a websocket error arrives.
func (c *BinanceClient) Stream(ctx context.Context, symbols []string, interval string) iter.Seq2[types.Bar, error] {
	return func(yield func(types.Bar, error) bool) {
		if len(symbols) == 0 {
			yield(types.Bar{}, errors.New(errors.ErrCodeInvalidParameter, "no symbols provided"))

			return
		}

		if !isValidBinanceInterval(interval) {
			yield(types.Bar{}, errors.Newf(errors.ErrCodeInvalidTimespan, "invalid interval for Binance streaming: %s", interval))

			return
		}

		events := make(chan *BinanceWsKlineEvent, streamBufferSize)
		wsErrors := make(chan error, len(symbols))

		stops := make([]chan struct{}, 0, len(symbols))
		defer func() {
			for _, stopC := range stops {
				close(stopC)
			}
		}()

		for _, symbol := range symbols {
			_, stopC, err := c.ws.WsKlineServe(symbol, interval,
				func(event *BinanceWsKlineEvent) {
					select {
					case events <- event:
					case <-ctx.Done():
					}
				},
				func(err error) {
					select {
					case wsErrors <- err:
					default:
					}
				},
			)
			if err != nil {
				yield(types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to start websocket for %s", symbol))

				return
			}

			stops = append(stops, stopC)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case err := <-wsErrors:
				yield(types.Bar{}, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "websocket error", err))

				return
			case event := <-events:
				if !event.Kline.IsFinal {
					continue
				}

				if !yield(convertWsKlineToBar(event), nil) {
					return
				}
			}
		}
	}
}

// convertBinanceWsEvent maps the SDK event type onto the local one.
func convertBinanceWsEvent(event *binance.WsKlineEvent) *BinanceWsKlineEvent {
	return &BinanceWsKlineEvent{
		EventType: event.Event,
		EventTime: event.Time,
		Symbol:    event.Symbol,
		Kline: BinanceWsKline{
			StartTime: event.Kline.StartTime,
			EndTime:   event.Kline.EndTime,
			Symbol:    event.Kline.Symbol,
			Interval:  event.Kline.Interval,
			Open:      event.Kline.Open,
			Close:     event.Kline.Close,
			High:      event.Kline.High,
			Low:       event.Kline.Low,
			Volume:    event.Kline.Volume,
			IsFinal:   event.Kline.IsFinal,
		},
	}
}

// convertWsKlineToBar converts a kline event to a bar. The bar is stamped
// with the kline open time.
func convertWsKlineToBar(event *BinanceWsKlineEvent) types.Bar {
	open, _ := strconv.ParseFloat(event.Kline.Open, 64)
	high, _ := strconv.ParseFloat(event.Kline.High, 64)
	low, _ := strconv.ParseFloat(event.Kline.Low, 64)
	closePrice, _ := strconv.ParseFloat(event.Kline.Close, 64)
	volume, _ := strconv.ParseFloat(event.Kline.Volume, 64)

	return types.Bar{
		Time:   time.UnixMilli(event.Kline.StartTime),
		Symbol: event.Symbol,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}
}

// isValidBinanceInterval reports whether the interval is a kline stream
// interval Binance accepts.
func isValidBinanceInterval(interval string) bool {
	switch interval {
	case "1s", "1m", "3m", "5m", "15m", "30m",
		"1h", "2h", "4h", "6h", "8h", "12h",
		"1d", "3d", "1w", "1M":
		return true
	default:
		return false
	}
}
