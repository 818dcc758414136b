package helpers

import (
	"encoding/hex"
	"strings"
)

// MustHex decodes test fixtures, spaces are ignored: "7e a5 03".
func MustHex(s string) []byte {
	b, err := hex.DecodeString(strings.Join(strings.Fields(s), ""))
	if err != nil {
		panic(err)
	}
	return b
}
