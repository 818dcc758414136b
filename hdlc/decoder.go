package hdlc

import (
	"github.com/temoto/sense/crc"
)

type State uint8

const (
	// waiting for flag
	StateIdle State = iota
	StateReading
	StateUnescaping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateUnescaping:
		return "unescaping"
	}
	return "invalid"
}

// Decoder extracts validated frames from arbitrary chunks of the byte stream.
// Partial frames are kept between Feed calls.
// Not safe for concurrent use.
type Decoder struct {
	// Optional, called for each dropped frame with one of
	// ErrFrameCorrupt, ErrEscape, ErrFrameShort, ErrAddress, ErrFrameTooLarge.
	OnDrop func(err error)
	Stat   Stat

	maxLen int
	state  State
	buf    []byte
}

// NewDecoder accepts frames with payload up to maxPayload bytes.
// Zero means DefaultMaxPayload.
func NewDecoder(maxPayload int) *Decoder {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	maxLen := maxPayload + MaxAddressLen + 1 + crc.FCS32Len
	return &Decoder{
		maxLen: maxLen,
		buf:    make([]byte, 0, 64),
	}
}

func (d *Decoder) State() State { return d.state }

// Reset drops partial frame, next byte must be a flag.
func (d *Decoder) Reset() {
	d.state = StateIdle
	d.buf = d.buf[:0]
}

// Feed returns complete frames found so far, possibly none.
func (d *Decoder) Feed(chunk []byte) []Frame {
	var out []Frame
	d.Stat.Bytes.Add(int64(len(chunk)))
	for _, b := range chunk {
		switch d.state {
		case StateIdle:
			if b == Flag {
				d.begin()
			}

		case StateReading:
			switch b {
			case Flag:
				if len(d.buf) != 0 {
					if f, ok := d.finish(); ok {
						out = append(out, f)
					}
				}
				d.begin()
			case Escape:
				d.state = StateUnescaping
			default:
				d.push(b)
			}

		case StateUnescaping:
			if b == Flag {
				// frame aborted, flag opens the next one
				d.drop(ErrEscape)
				d.begin()
				continue
			}
			x := b ^ EscapeXor
			if x != Flag && x != Escape {
				d.drop(ErrEscape)
				d.Reset()
				continue
			}
			d.state = StateReading
			d.push(x)
		}
	}
	return out
}

func (d *Decoder) begin() {
	d.state = StateReading
	d.buf = d.buf[:0]
}

func (d *Decoder) push(b byte) {
	if len(d.buf) >= d.maxLen {
		d.drop(ErrFrameTooLarge)
		d.Reset()
		return
	}
	d.buf = append(d.buf, b)
}

func (d *Decoder) drop(err error) {
	switch err {
	case ErrFrameCorrupt:
		d.Stat.Corrupt.Add(1)
	case ErrEscape:
		d.Stat.Escape.Add(1)
	case ErrFrameTooLarge:
		d.Stat.Oversize.Add(1)
	default:
		d.Stat.Malformed.Add(1)
	}
	if d.OnDrop != nil {
		d.OnDrop(err)
	}
}

func (d *Decoder) finish() (Frame, bool) {
	b := d.buf
	if len(b) < MinFrameLen {
		d.drop(ErrFrameShort)
		return Frame{}, false
	}
	if !crc.CheckFCS32(b) {
		d.drop(ErrFrameCorrupt)
		return Frame{}, false
	}
	b = b[:len(b)-crc.FCS32Len]
	address, n, err := DecodeAddress(b)
	if err != nil || n >= len(b) {
		d.drop(ErrAddress)
		return Frame{}, false
	}
	f := Frame{
		Address: address,
		Control: b[n],
		Payload: append([]byte(nil), b[n+1:]...),
	}
	d.Stat.Frames.Add(1)
	return f, true
}
