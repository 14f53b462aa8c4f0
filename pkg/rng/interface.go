package rng

// RNG produces a stream of pseudo-random samples.
type RNG interface {
	Rand() float64
}
