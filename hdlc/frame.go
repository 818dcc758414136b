// Package hdlc implements the HDLC-like framing used on the device link.
//
// Wire format: 7E | escaped(address control payload fcs) | 7E
// Address is a one-terminated LSB-first varint, control is 0x03 for UI frames,
// FCS is CRC-32/IEEE over address+control+payload, little-endian.
package hdlc

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/sense/crc"
)

const (
	Flag      byte = 0x7e
	Escape    byte = 0x7d
	EscapeXor byte = 0x20

	ControlUI byte = 0x03

	DefaultMaxPayload = 1024
	MaxAddressLen     = 10
	// address:1 control:1 fcs:4
	MinFrameLen = 1 + 1 + crc.FCS32Len
)

const (
	ErrFrameTooLarge = errors.ConstError("hdlc: frame too large")
	ErrFrameCorrupt  = errors.ConstError("hdlc: frame check sequence mismatch")
	ErrEscape        = errors.ConstError("hdlc: invalid escape sequence")
	ErrFrameShort    = errors.ConstError("hdlc: frame too short")
	ErrAddress       = errors.ConstError("hdlc: invalid address")
)

type Frame struct {
	Address uint64
	Control byte
	Payload []byte
}

func (f Frame) String() string {
	return fmt.Sprintf("hdlc.Frame(address=%d control=%02x payload=%x)", f.Address, f.Control, f.Payload)
}

func AppendAddress(dst []byte, address uint64) []byte {
	for {
		b := byte(address&0x7f) << 1
		address >>= 7
		if address == 0 {
			return append(dst, b|1)
		}
		dst = append(dst, b)
	}
}

// DecodeAddress returns address and number of bytes consumed.
func DecodeAddress(b []byte) (uint64, int, error) {
	var address uint64
	for i, x := range b {
		if i >= MaxAddressLen {
			break
		}
		address |= uint64(x>>1) << (7 * uint(i))
		if x&1 == 1 {
			return address, i + 1, nil
		}
	}
	return 0, 0, ErrAddress
}

type Encoder struct {
	// Zero means DefaultMaxPayload.
	MaxPayload int
}

func (e Encoder) Limit() int {
	if e.MaxPayload <= 0 {
		return DefaultMaxPayload
	}
	return e.MaxPayload
}

// Encode returns UI frame bytes ready to write.
func (e Encoder) Encode(address uint64, payload []byte) ([]byte, error) {
	return e.AppendFrame(make([]byte, 0, 2*len(payload)+16), address, ControlUI, payload)
}

func (e Encoder) AppendFrame(dst []byte, address uint64, control byte, payload []byte) ([]byte, error) {
	if len(payload) > e.Limit() {
		return dst, errors.Annotatef(ErrFrameTooLarge, "payload=%d max=%d", len(payload), e.Limit())
	}
	var head [MaxAddressLen + 1]byte
	h := AppendAddress(head[:0], address)
	h = append(h, control)
	sum := crc.FCS32Update(crc.FCS32(h), payload)
	var tail [crc.FCS32Len]byte

	dst = append(dst, Flag)
	dst = appendEscaped(dst, h)
	dst = appendEscaped(dst, payload)
	dst = appendEscaped(dst, crc.AppendFCS32(tail[:0], sum))
	dst = append(dst, Flag)
	return dst, nil
}

// UIFrame encodes with default limits and panics on oversize payload.
// Use for fixed small payloads only.
func UIFrame(address uint64, payload []byte) []byte {
	b, err := Encoder{}.Encode(address, payload)
	if err != nil {
		panic(err)
	}
	return b
}

func appendEscaped(dst []byte, b []byte) []byte {
	for _, x := range b {
		if x == Flag || x == Escape {
			dst = append(dst, Escape, x^EscapeXor)
		} else {
			dst = append(dst, x)
		}
	}
	return dst
}
