package marker

import "github.com/stratsim-lab/stratsim/internal/types"

// MemoryMarker keeps the decision tape in memory. It is owned by a single
// runner and is not safe for concurrent use.
type MemoryMarker struct {
	marks []types.Mark
}

// NewMemoryMarker creates an empty in-memory decision tape.
func NewMemoryMarker() *MemoryMarker {
	return &MemoryMarker{}
}

// Mark implements Marker.
func (m *MemoryMarker) Mark(bar types.Bar, signal types.Signal, action types.MarkAction, reason string) error {
	m.marks = append(m.marks, types.Mark{
		Time:   bar.Time,
		Symbol: bar.Symbol,
		Signal: signal,
		Action: action,
		Reason: reason,
	})

	return nil
}

// GetMarks implements Marker.
func (m *MemoryMarker) GetMarks() ([]types.Mark, error) {
	marks := make([]types.Mark, len(m.marks))
	copy(marks, m.marks)

	return marks, nil
}
