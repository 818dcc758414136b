package hdlc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/sense/helpers"
)

func TestEncode(t *testing.T) {
	t.Parallel()

	type Case struct {
		address uint64
		payload string
		expect  string
	}
	cases := []Case{
		{82, "", "7ea503e90ba00b7e"},
		{82, "7e7d01", "7ea5037d5e7d5d01623aa9df7e"},
		{1, "68656c6c6f", "7e030368656c6c6fd6e622da7e"},
		{128, "00", "7e0003030086322f087e"},
		{16384, "6162", "7e00000303616286ea6b7d5e7e"},
	}
	helpers.RandUnix().Shuffle(len(cases), func(a int, b int) { cases[a], cases[b] = cases[b], cases[a] })
	for _, c := range cases {
		c := c
		t.Run(fmt.Sprintf("%d/%s", c.address, c.payload), func(t *testing.T) {
			b, err := Encoder{}.Encode(c.address, helpers.MustHex(c.payload))
			require.NoError(t, err)
			assert.Equal(t, c.expect, fmt.Sprintf("%x", b))
		})
	}
}

func TestEncodeTooLarge(t *testing.T) {
	t.Parallel()
	e := Encoder{MaxPayload: 4}
	_, err := e.Encode(82, make([]byte, 4))
	require.NoError(t, err)
	_, err = e.Encode(82, make([]byte, 5))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestAddress(t *testing.T) {
	t.Parallel()
	for _, a := range []uint64{0, 1, 82, 127, 128, 16383, 16384, 1 << 32, 1<<63 - 1, 1<<64 - 1} {
		b := AppendAddress(nil, a)
		got, n, err := DecodeAddress(b)
		require.NoError(t, err, "address=%d", a)
		assert.Equal(t, len(b), n)
		assert.Equal(t, a, got)
	}
	_, _, err := DecodeAddress([]byte{0x02, 0x04})
	assert.Equal(t, ErrAddress, err)
}
