package otlpmmap

import (
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// WaitStrategy decides how a blocking operation behaves between retries of a
// non-blocking primitive. The substrate itself never sleeps or touches a
// kernel wait primitive; all waiting happens in the caller-supplied strategy.
//
// Wait is called with an attempt counter that starts at zero and increases
// by one per retry. Returning false aborts the operation with ErrTimeout.
type WaitStrategy interface {
	Wait(spin int) bool
}

// SpinWait busy-spins, yielding the processor to the Go scheduler after the
// first few attempts. It never gives up.
type SpinWait struct {
	// HotSpins is the number of attempts before yielding begins.
	// Zero means 64.
	HotSpins int
}

func (s *SpinWait) Wait(spin int) bool {
	hot := s.HotSpins
	if hot == 0 {
		hot = 64
	}
	if spin >= hot {
		runtime.Gosched()
	}
	return true
}

// defaultWait is the strategy used when a blocking entry point receives nil.
var defaultWait WaitStrategy = &SpinWait{}

// BackoffWait sleeps between retries with capped exponential backoff. It is
// the right strategy for a collector tailing a mostly idle producer, where
// burning a core on a spin loop is unacceptable.
//
// A BackoffWait must not be shared between concurrent operations.
type BackoffWait struct {
	// MaxElapsed, when nonzero, bounds the total time spent waiting before
	// the operation fails with ErrTimeout.
	MaxElapsed time.Duration

	b       backoff.ExponentialBackOff
	started time.Time
}

// NewBackoffWait returns a BackoffWait with the library's default intervals
// and no deadline.
func NewBackoffWait() *BackoffWait {
	return &BackoffWait{}
}

func (w *BackoffWait) Wait(spin int) bool {
	if spin == 0 {
		w.b = backoff.ExponentialBackOff{
			InitialInterval:     time.Millisecond,
			RandomizationFactor: backoff.DefaultRandomizationFactor,
			Multiplier:          backoff.DefaultMultiplier,
			MaxInterval:         100 * time.Millisecond,
		}
		w.b.Reset()
		w.started = time.Now()
	}
	if w.MaxElapsed != 0 && time.Since(w.started) >= w.MaxElapsed {
		return false
	}
	time.Sleep(w.b.NextBackOff())
	return true
}
