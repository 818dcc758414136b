package atomic_clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock(t *testing.T) {
	t.Parallel()
	const delta = 100 * time.Millisecond

	var zero Clock
	assert.Greater(t, Since(&zero), 24*time.Hour)

	var c Clock
	c.SetNow()
	assert.Less(t, Since(&c), delta)
	time.Sleep(10 * time.Millisecond)
	assert.GreaterOrEqual(t, Since(&c), 10*time.Millisecond)
}
