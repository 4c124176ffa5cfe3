package types

import "time"

// MarkAction records what the runner did with a signal.
type MarkAction string

const (
	// MarkActionExecuted means the signal passed admission and produced a trade
	MarkActionExecuted MarkAction = "executed"
	// MarkActionHeld means no trade happened: either the strategy signalled
	// hold, or an actionable signal was downgraded by the admission policy
	MarkActionHeld MarkAction = "held"
)

// Mark is one entry of the decision tape: the signal a strategy emitted at a
// bar and what the runner did with it. The tape is an observability artifact,
// separate from the trade log.
type Mark struct {
	Time   time.Time
	Symbol string
	Signal Signal
	Action MarkAction
	// Reason explains the action, e.g. "insufficient cash" for a downgraded buy
	Reason string
}
