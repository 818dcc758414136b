package hdlc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/sense/helpers"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	rand := helpers.RandUnix()
	e := Encoder{}
	d := NewDecoder(e.Limit())
	for size := 0; size <= e.Limit(); size++ {
		payload := make([]byte, size)
		rand.Read(payload)
		address := uint64(rand.Int63())
		b, err := e.Encode(address, payload)
		require.NoError(t, err)
		frames := d.Feed(b)
		require.Len(t, frames, 1, "size=%d", size)
		assert.Equal(t, address, frames[0].Address)
		assert.Equal(t, ControlUI, frames[0].Control)
		assert.True(t, bytes.Equal(payload, frames[0].Payload), "size=%d", size)
	}
	assert.Equal(t, int64(0), d.Stat.Dropped())
}

func TestChunkBoundaries(t *testing.T) {
	t.Parallel()
	f1 := UIFrame(82, []byte{0x7e, 0x7d, 0x01, 0x02})
	f2 := UIFrame(1, []byte("log line"))
	stream := append(append([]byte{}, f1...), f2...)
	expect := []Frame{
		{Address: 82, Control: ControlUI, Payload: []byte{0x7e, 0x7d, 0x01, 0x02}},
		{Address: 1, Control: ControlUI, Payload: []byte("log line")},
	}

	type Case struct {
		name  string
		chunk int
	}
	cases := []Case{
		{"whole", len(stream)},
		{"byte", 1},
		{"2", 2},
		{"3", 3},
		{"7", 7},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			d := NewDecoder(0)
			var got []Frame
			for i := 0; i < len(stream); i += c.chunk {
				end := i + c.chunk
				if end > len(stream) {
					end = len(stream)
				}
				got = append(got, d.Feed(stream[i:end])...)
			}
			assert.Equal(t, expect, got)
		})
	}
}

func TestCorruptionRecovery(t *testing.T) {
	t.Parallel()
	good := UIFrame(82, []byte("second"))

	type Case struct {
		name   string
		input  []byte
		stat   func(*Stat) int64
		frames int
	}
	corrupt := UIFrame(82, []byte("first"))
	corrupt[4] ^= 0x01 // payload byte, not special
	badEscape := helpers.MustHex("7ea5037d0101020304")
	abortEscape := helpers.MustHex("7ea503017d")
	short := helpers.MustHex("7ea5037e")
	cases := []Case{
		{"crc", corrupt, func(s *Stat) int64 { return s.Corrupt.Value() }, 1},
		{"escape", badEscape, func(s *Stat) int64 { return s.Escape.Value() }, 1},
		{"escape-flag", abortEscape, func(s *Stat) int64 { return s.Escape.Value() }, 1},
		{"short", short, func(s *Stat) int64 { return s.Malformed.Value() }, 1},
		{"garbage", []byte("noise"), func(s *Stat) int64 { return s.Dropped() }, 0},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			d := NewDecoder(0)
			var dropped []error
			d.OnDrop = func(err error) { dropped = append(dropped, err) }
			input := append(append([]byte{}, c.input...), good...)
			frames := d.Feed(input)
			require.Len(t, frames, 1)
			assert.Equal(t, []byte("second"), frames[0].Payload)
			assert.Equal(t, int64(c.frames), c.stat(&d.Stat))
			assert.Len(t, dropped, c.frames)
		})
	}
}

func TestOversize(t *testing.T) {
	t.Parallel()
	big, err := Encoder{MaxPayload: 100}.Encode(82, make([]byte, 100))
	require.NoError(t, err)
	d := NewDecoder(50)
	frames := d.Feed(append(big, UIFrame(82, []byte{1})...))
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{1}, frames[0].Payload)
	assert.Equal(t, int64(1), d.Stat.Oversize.Value())
}

func TestStateAcrossFeeds(t *testing.T) {
	t.Parallel()
	d := NewDecoder(0)
	assert.Equal(t, StateIdle, d.State())
	assert.Empty(t, d.Feed([]byte{Flag, 0xa5}))
	assert.Equal(t, StateReading, d.State())
	assert.Empty(t, d.Feed([]byte{Escape}))
	assert.Equal(t, StateUnescaping, d.State())
	d.Reset()
	assert.Equal(t, StateIdle, d.State())
}
