package types

import "time"

type SignalType string

const (
	// SignalTypeBuy tells the runner to open or add to a position
	SignalTypeBuy SignalType = "buy"
	// SignalTypeSell tells the runner to close the held position
	SignalTypeSell SignalType = "sell"
	// SignalTypeHold tells the runner to take no action
	SignalTypeHold SignalType = "hold"
)

// IsActionable reports whether the signal type requests a trade.
func (t SignalType) IsActionable() bool {
	return t == SignalTypeBuy || t == SignalTypeSell
}

// Signal is a strategy's decision for a single bar. Signals are transient:
// they drive the runner's admission check and the decision tape but are never
// persisted beyond the trade log entry they may cause.
type Signal struct {
	// Time is the time of the bar the signal was evaluated at
	Time time.Time
	// Type is the type of the signal
	Type SignalType
	// Symbol is the symbol the signal applies to
	Symbol string
	// Reason names the rule that produced the signal, e.g. "initial_entry",
	// "stop_loss", "take_profit", "max_holding"
	Reason string
}
