package rng

import (
	"math"
	"math/rand"
	"time"
)

var _ RNG = &LogNormalRNG{}

// LogNormalRNG generates log-normal numbers, the usual shape for duration
// metrics such as lead or cycle times.  Mu and sigma describe the underlying
// normal distribution, not the samples themselves.
type LogNormalRNG struct {
	mu    float64
	sigma float64
	r     *rand.Rand
}

func (r *LogNormalRNG) Rand() float64 {
	return math.Exp(r.r.NormFloat64()*r.sigma + r.mu)
}

func NewLogNormalRNG(mu float64, sigma float64) *LogNormalRNG {
	return &LogNormalRNG{
		mu:    mu,
		sigma: sigma,
		r:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}
