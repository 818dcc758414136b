// Package wire is minimal protobuf encoding for hand written messages.
// Zero values are omitted like proto3 does, use Put* to force a field.
package wire

import (
	"io"
	"math"

	"github.com/golang/protobuf/proto"
	"github.com/juju/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

type (
	Number = protowire.Number
	Type   = protowire.Type
)

const (
	VarintType  = protowire.VarintType
	Fixed32Type = protowire.Fixed32Type
	Fixed64Type = protowire.Fixed64Type
	BytesType   = protowire.BytesType
)

type Encoder struct {
	b   *proto.Buffer
	err error
}

func NewEncoder() *Encoder { return &Encoder{b: proto.NewBuffer(nil)} }

func (e *Encoder) tag(num Number, typ Type) {
	e.check(e.b.EncodeVarint(protowire.EncodeTag(num, typ)))
}

func (e *Encoder) check(err error) {
	if err != nil && e.err == nil {
		e.err = err
	}
}

func (e *Encoder) Uvarint(num Number, v uint64) {
	if v != 0 {
		e.PutUvarint(num, v)
	}
}

func (e *Encoder) PutUvarint(num Number, v uint64) {
	e.tag(num, VarintType)
	e.check(e.b.EncodeVarint(v))
}

func (e *Encoder) Bool(num Number, v bool) {
	if v {
		e.PutUvarint(num, 1)
	}
}

func (e *Encoder) Fixed32(num Number, v uint32) {
	if v != 0 {
		e.tag(num, Fixed32Type)
		e.check(e.b.EncodeFixed32(uint64(v)))
	}
}

func (e *Encoder) Float(num Number, v float32) {
	if v != 0 {
		e.Fixed32(num, math.Float32bits(v))
	}
}

func (e *Encoder) Bytes(num Number, v []byte) {
	if len(v) != 0 {
		e.tag(num, BytesType)
		e.check(e.b.EncodeRawBytes(v))
	}
}

func (e *Encoder) String(num Number, v string) {
	if v != "" {
		e.tag(num, BytesType)
		e.check(e.b.EncodeStringBytes(v))
	}
}

func (e *Encoder) Result() ([]byte, error) {
	return e.b.Bytes(), errors.Trace(e.err)
}

// Decoder reads fields in wire order.
type Decoder struct {
	b   *proto.Buffer
	typ Type
	num Number
}

func NewDecoder(b []byte) *Decoder { return &Decoder{b: proto.NewBuffer(b)} }

// Next returns io.EOF after last field.
func (d *Decoder) Next() (Number, Type, error) {
	if len(d.b.Unread()) == 0 {
		return 0, 0, io.EOF
	}
	x, err := d.b.DecodeVarint()
	if err != nil {
		return 0, 0, errors.NotValidf("field tag: %v", err)
	}
	d.num, d.typ = protowire.DecodeTag(x)
	if d.num < protowire.MinValidNumber {
		return 0, 0, errors.NotValidf("field number=%d", d.num)
	}
	return d.num, d.typ, nil
}

func (d *Decoder) expect(typ Type) error {
	if d.typ != typ {
		return errors.NotValidf("field=%d wire type=%d expected=%d", d.num, d.typ, typ)
	}
	return nil
}

func (d *Decoder) Uvarint() (uint64, error) {
	if err := d.expect(VarintType); err != nil {
		return 0, err
	}
	v, err := d.b.DecodeVarint()
	return v, errors.Annotatef(err, "field=%d", d.num)
}

func (d *Decoder) Uint32() (uint32, error) {
	v, err := d.Uvarint()
	return uint32(v), err
}

func (d *Decoder) Bool() (bool, error) {
	v, err := d.Uvarint()
	return v != 0, err
}

func (d *Decoder) Fixed32() (uint32, error) {
	if err := d.expect(Fixed32Type); err != nil {
		return 0, err
	}
	v, err := d.b.DecodeFixed32()
	return uint32(v), errors.Annotatef(err, "field=%d", d.num)
}

func (d *Decoder) Float() (float32, error) {
	v, err := d.Fixed32()
	return math.Float32frombits(v), err
}

func (d *Decoder) Bytes() ([]byte, error) {
	if err := d.expect(BytesType); err != nil {
		return nil, err
	}
	v, err := d.b.DecodeRawBytes(true)
	return v, errors.Annotatef(err, "field=%d", d.num)
}

func (d *Decoder) String() (string, error) {
	if err := d.expect(BytesType); err != nil {
		return "", err
	}
	v, err := d.b.DecodeStringBytes()
	return v, errors.Annotatef(err, "field=%d", d.num)
}

// Skip current field value.
func (d *Decoder) Skip() error {
	unread := d.b.Unread()
	n := protowire.ConsumeFieldValue(d.num, d.typ, unread)
	if n < 0 {
		return errors.NotValidf("field=%d skip: %v", d.num, protowire.ParseError(n))
	}
	d.b.SetBuf(unread[n:])
	return nil
}

// Walk calls fun for each field; fun must consume the value or call Skip.
func Walk(b []byte, fun func(d *Decoder, num Number) error) error {
	d := NewDecoder(b)
	for {
		num, _, err := d.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err = fun(d, num); err != nil {
			return err
		}
	}
}
