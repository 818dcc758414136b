package helpers

import (
	"sync"
	"time"

	"github.com/temoto/sense/helpers/atomic_clock"
)

// Backoff is limited exponential delay between retries of failing operation.
//
//	for {
//	  time.Sleep(backoff.DelayBefore())
//	  err := op()
//	  backoff.Update(err == nil)
//	}
//
// First delay is 0. Each failure multiplies next delay by K (default 2),
// clamped to [Min, Max]. Time spent since last Update counts toward delay.
type Backoff struct {
	Min time.Duration
	Max time.Duration
	K   float32
	Res time.Duration // delay resolution for nice logs, default=1ms

	mu   sync.Mutex
	next time.Duration
	last atomic_clock.Clock
}

func (b *Backoff) DelayBefore() time.Duration {
	b.mu.Lock()
	next := b.next
	b.mu.Unlock()
	if next == 0 {
		return 0
	}
	wait := b.clamp(next) - atomic_clock.Since(&b.last)
	if wait <= 0 {
		return 0
	}
	return b.round(wait)
}

func (b *Backoff) Update(success bool) {
	if success {
		b.Reset()
	} else {
		b.Failure()
	}
}

func (b *Backoff) Failure() {
	k := b.K
	if k < 1 {
		k = 2
	}
	b.mu.Lock()
	b.next = b.clamp(time.Duration(float32(b.next) * k))
	b.mu.Unlock()
	b.last.SetNow()
}

func (b *Backoff) Reset() {
	b.mu.Lock()
	b.next = b.Min
	b.mu.Unlock()
	b.last.SetNow()
}

func (b *Backoff) clamp(d time.Duration) time.Duration {
	if d < b.Min {
		d = b.Min
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return b.round(d)
}

func (b *Backoff) round(d time.Duration) time.Duration {
	res := b.Res
	if res <= 0 {
		res = time.Millisecond
	}
	return d.Round(res)
}
