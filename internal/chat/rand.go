package chat

import (
	"math/rand"
	"time"
)

// Roller is the randomness source behind reply decisions. Injected so tests
// can pin outcomes deterministically.
type Roller interface {
	// Percent draws a uniform value in [0, 100).
	Percent() float64
	// Bool is true with probability p in [0, 1].
	Bool(p float64) bool
	// Shuffle permutes n elements via swap.
	Shuffle(n int, swap func(i, j int))
	// Jitter draws a uniform duration in [0, max).
	Jitter(max time.Duration) time.Duration
}

type mathRoller struct{}

// NewRoller returns a Roller backed by math/rand.
func NewRoller() Roller {
	return mathRoller{}
}

func (mathRoller) Percent() float64 {
	return rand.Float64() * 100
}

func (mathRoller) Bool(p float64) bool {
	return rand.Float64() < p
}

func (mathRoller) Shuffle(n int, swap func(i, j int)) {
	rand.Shuffle(n, swap)
}

func (mathRoller) Jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
