// Package window provides fixed-capacity sliding windows over float64
// observations.
package window

import (
	"fmt"
)

// Window is a ring buffer that retains the most recent observations pushed
// into it, up to a fixed capacity.
type Window struct {
	count  int
	values []float64
}

// Option configures a window at creation.
type Option func(w *Window) error

// New creates a window holding up to cap observations.
func New(cap int, opts ...Option) (*Window, error) {
	if cap <= 0 {
		return nil, fmt.Errorf("window must be initialized with a capacity >= 1")
	}
	w := &Window{
		values: make([]float64, cap),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// WithValues seeds a window from existing observations, oldest first.  The
// number of observations does not have to equal the capacity.
func WithValues(values []float64) Option {
	return func(w *Window) error {
		for _, v := range values {
			w.Push(v)
		}
		return nil
	}
}

// Push adds a new observation, evicting the oldest once the window is full.
func (w *Window) Push(v float64) {
	if len(w.values) == 0 {
		return
	}

	w.values[w.nextIndex()] = v
	w.count++
}

// Values returns a copy of the retained observations in temporal order from
// oldest to most recent.  A window that is not yet full returns only what
// has been pushed.
func (w *Window) Values() []float64 {
	switch {
	case w.count < len(w.values):
		out := make([]float64, w.count)
		copy(out, w.values[:w.count])
		return out
	default:
		out := make([]float64, 0, len(w.values))
		oldest := w.nextIndex()
		return append(append(out, w.values[oldest:]...), w.values[0:oldest]...)
	}
}

// Last returns the n most recent observations in temporal order.  If fewer
// than n have been pushed, all of them are returned.
func (w *Window) Last(n int) []float64 {
	vals := w.Values()
	if n >= len(vals) {
		return vals
	}
	return vals[len(vals)-n:]
}

// Count returns the total number of observations pushed over the window's
// lifetime.
func (w *Window) Count() int {
	return w.count
}

// Full reports whether the window has reached its capacity.
func (w *Window) Full() bool {
	return w.count >= len(w.values)
}

// nextIndex returns the index of the oldest observation in the window, the
// slot to be overwritten by new data.
func (w *Window) nextIndex() int {
	if len(w.values) == 0 {
		return 0
	}
	return w.count % len(w.values)
}
