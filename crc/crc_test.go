package crc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/temoto/sense/helpers"
)

func makeCheckN(fun func([]byte) uint32, tag string) func(t *testing.T, input string, expect uint32) {
	return func(t *testing.T, input string, expect uint32) {
		if got := fun([]byte(input)); got != expect {
			t.Errorf("%s(%q)=%08x expected=%08x", tag, input, got, expect)
		}
	}
}

func TestFCS32(t *testing.T) {
	t.Parallel()
	check := makeCheckN(FCS32, "FCS32")
	check(t, "", 0x00000000)
	check(t, "a", 0xe8b7be43)
	check(t, "abc", 0x352441c2)
	check(t, "123456789", 0xcbf43926)
}

func TestFCS32Update(t *testing.T) {
	t.Parallel()
	c := FCS32Update(0, []byte("1234"))
	c = FCS32Update(c, []byte("56789"))
	assert.Equal(t, uint32(0xcbf43926), c)
}

func TestAppendCheck(t *testing.T) {
	t.Parallel()
	b := helpers.MustHex("a503")
	b = AppendFCS32(b, FCS32(b))
	assert.Equal(t, helpers.MustHex("a503e90ba00b"), b)
	assert.True(t, CheckFCS32(b))
	b[1] ^= 0x01
	assert.False(t, CheckFCS32(b))
	assert.False(t, CheckFCS32([]byte{1, 2, 3}))
}
