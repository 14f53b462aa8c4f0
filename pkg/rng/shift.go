package rng

var _ RNG = &ShiftRNG{}

// ShiftRNG wraps another generator and raises its output by a fixed offset
// once the given number of samples has been drawn.  It simulates a process
// whose center moves partway through the stream.
type ShiftRNG struct {
	inner  RNG
	offset float64
	after  int
	drawn  int
}

func (r *ShiftRNG) Rand() float64 {
	r.drawn++
	v := r.inner.Rand()
	if r.drawn > r.after {
		v += r.offset
	}
	return v
}

// NewShiftRNG applies offset to every sample of inner after the first `after`
// samples.  An offset of 0 leaves the stream untouched.
func NewShiftRNG(inner RNG, offset float64, after int) *ShiftRNG {
	return &ShiftRNG{
		inner:  inner,
		offset: offset,
		after:  after,
	}
}
