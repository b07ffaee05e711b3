package logic

import "errors"

// DefaultCapacity is the number of samples kept for display.
const DefaultCapacity = 20

// ErrNothingToExport is returned when the export log is empty.
var ErrNothingToExport = errors.New("nothing to export")

// Window holds a fixed-capacity display window and an unbounded export log.
// Not safe for concurrent use. The dashboard loop owns it.
type Window struct {
	capacity int
	display  []Sample
	log      []Sample
}

// NewWindow creates a window with the given display capacity.
// A capacity <= 0 selects DefaultCapacity.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{
		capacity: capacity,
		display:  make([]Sample, 0, capacity),
	}
}

// Push appends a sample to the export log and the display window.
// Once the display window is full exactly one oldest entry is evicted.
func (w *Window) Push(s Sample) {
	w.log = append(w.log, s)

	if len(w.display) >= w.capacity {
		copy(w.display, w.display[1:])
		w.display[len(w.display)-1] = s
		return
	}
	w.display = append(w.display, s)
}

// Clear empties both the display window and the export log.
func (w *Window) Clear() {
	w.display = w.display[:0]
	w.log = nil
}

// Snapshot returns a copy of the display window, oldest first.
func (w *Window) Snapshot() []Sample {
	out := make([]Sample, len(w.display))
	copy(out, w.display)
	return out
}

// Export returns a copy of the export log, oldest first.
// Returns ErrNothingToExport if no sample was pushed since the last Clear.
func (w *Window) Export() ([]Sample, error) {
	if len(w.log) == 0 {
		return nil, ErrNothingToExport
	}
	out := make([]Sample, len(w.log))
	copy(out, w.log)
	return out, nil
}

// Last returns the most recent sample, if any.
func (w *Window) Last() (Sample, bool) {
	if len(w.display) == 0 {
		return Sample{}, false
	}
	return w.display[len(w.display)-1], true
}

// Len returns the number of samples in the display window.
func (w *Window) Len() int {
	return len(w.display)
}

// ExportLen returns the number of samples in the export log.
func (w *Window) ExportLen() int {
	return len(w.log)
}

// Capacity returns the display window capacity.
func (w *Window) Capacity() int {
	return w.capacity
}
