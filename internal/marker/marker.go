// Package marker records the decision tape of a backtest run: one entry per
// strategy evaluation, whether or not a trade came out of it.
package marker

import "github.com/stratsim-lab/stratsim/internal/types"

// Marker is a marker that can be used to mark a point in time with a signal
// and the action taken on it.
type Marker interface {
	// Mark records the signal emitted on a bar and whether it executed. The
	// reason explains a downgrade to hold; it is empty for executed actions.
	Mark(bar types.Bar, signal types.Signal, action types.MarkAction, reason string) error
	// GetMarks returns all recorded marks in insertion order.
	GetMarks() ([]types.Mark, error)
}
