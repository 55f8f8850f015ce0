package retryhttp

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultBaseDelay is the wait after the first failed attempt, before jitter.
	DefaultBaseDelay = time.Second
	// DefaultJitter is the exclusive upper bound of the random delay added to every wait.
	DefaultJitter = time.Second

	maxShift = 30
)

// FullJitter is a backoff.BackOff whose wait after failed attempt i
// (0-indexed) is 2^i*Base plus a uniform random delay in [0, Jitter).
type FullJitter struct {
	Base   time.Duration
	Jitter time.Duration
	// Rand returns a value in [0, 1). Defaults to math/rand.
	Rand func() float64

	attempt int
}

var _ backoff.BackOff = (*FullJitter)(nil)

func NewFullJitter() *FullJitter {
	return &FullJitter{Base: DefaultBaseDelay, Jitter: DefaultJitter}
}

func (b *FullJitter) NextBackOff() time.Duration {
	wait := Delay(b.attempt, b.Base, b.Jitter, b.random())
	b.attempt++
	return wait
}

func (b *FullJitter) Reset() {
	b.attempt = 0
}

func (b *FullJitter) random() float64 {
	if b.Rand != nil {
		return b.Rand()
	}
	return rand.Float64()
}

// Delay computes the wait after failed attempt i for a jitter sample r in [0, 1).
func Delay(attempt int, base, jitter time.Duration, r float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxShift {
		attempt = maxShift
	}
	if r < 0 {
		r = 0
	}
	if r >= 1 {
		r = 0
	}
	return base<<attempt + time.Duration(r*float64(jitter))
}
