package call

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestSplitName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input   string
		service string
		method  string
		valid   bool
	}{
		{"board.Board.OnboardTemp", "board.Board", "OnboardTemp", true},
		{"Blinky.Blink", "Blinky", "Blink", true},
		{"Blink", "", "", false},
		{".Blink", "", "", false},
		{"board.Board.", "", "", false},
	}
	for _, c := range cases {
		c := c
		t.Run(c.input, func(t *testing.T) {
			service, method, err := SplitName(c.input)
			if !c.valid {
				assert.True(t, errors.IsNotValid(err), "err=%v", err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, c.service, service)
			assert.Equal(t, c.method, method)
		})
	}
}
