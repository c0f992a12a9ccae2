// Package throttle paces navigations with a randomized, human-like delay.
package throttle

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	// DefaultMean is the mean delay applied before each navigation
	DefaultMean = 500 * time.Millisecond

	scaleFactor = 0.3
	minFactor   = 0.2
)

// Throttle draws delays from Normal(mean, 0.3*mean). Draws below 0.2*mean are
// reflected back above that floor, so every delay is at least the floor.
type Throttle struct {
	mean  time.Duration
	mu    sync.Mutex
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Throttle
type Option func(*Throttle)

// WithRand sets the random source, mostly for deterministic tests
func WithRand(r *rand.Rand) Option {
	return func(t *Throttle) { t.rng = r }
}

// WithSleep replaces the sleep function
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(t *Throttle) { t.sleep = sleep }
}

// New creates a throttle with the given mean. A zero mean disables waiting.
func New(mean time.Duration, opts ...Option) *Throttle {
	t := &Throttle{
		mean:  mean,
		rng:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		sleep: Sleep,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Mean returns the configured mean delay
func (t *Throttle) Mean() time.Duration {
	return t.mean
}

// Floor returns the smallest delay Next can return
func (t *Throttle) Floor() time.Duration {
	return time.Duration(float64(t.mean) * minFactor)
}

// Next draws the next delay
func (t *Throttle) Next() time.Duration {
	if t.mean <= 0 {
		return 0
	}
	mean := t.mean.Seconds()
	floor := mean * minFactor

	t.mu.Lock()
	draw := t.rng.NormFloat64()*mean*scaleFactor + mean
	t.mu.Unlock()

	if draw < floor {
		draw = math.Abs(floor-draw) + floor
	}
	return time.Duration(draw * float64(time.Second))
}

// Wait sleeps for the next delay and returns it. It returns early with the
// context error when ctx is cancelled.
func (t *Throttle) Wait(ctx context.Context) (time.Duration, error) {
	if t == nil {
		return 0, nil
	}
	d := t.Next()
	if d == 0 {
		return 0, nil
	}
	return d, t.sleep(ctx, d)
}

// Sleep blocks for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
