// Package atomic_clock is int64 nanosecond timestamp safe for concurrent access.
package atomic_clock

import (
	"sync/atomic"
	"time"
)

type Clock struct{ v atomic.Int64 }

func (c *Clock) SetNow() { c.v.Store(time.Now().UnixNano()) }

// Since returns time passed from last SetNow, zero Clock counts from Unix epoch.
func Since(begin *Clock) time.Duration {
	return time.Duration(time.Now().UnixNano() - begin.v.Load())
}
