package rng

import (
	"math/rand"
	"time"
)

var _ RNG = &NormalRNG{}

// NormalRNG generates normally distributed numbers around a process center.
type NormalRNG struct {
	mean  float64
	stdev float64
	r     *rand.Rand
}

func (r *NormalRNG) Rand() float64 {
	return r.r.NormFloat64()*r.stdev + r.mean
}

func NewNormalRNG(mean float64, stdev float64) *NormalRNG {
	return NewNormalRNGWithSeed(mean, stdev, time.Now().UnixNano())
}

// NewNormalRNGWithSeed returns a generator with a fixed seed so seeded charts
// can be reproduced exactly.
func NewNormalRNGWithSeed(mean float64, stdev float64, seed int64) *NormalRNG {
	return &NormalRNG{
		mean:  mean,
		stdev: stdev,
		r:     rand.New(rand.NewSource(seed)),
	}
}
