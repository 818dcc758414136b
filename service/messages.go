package service

import (
	"github.com/juju/errors"
	"github.com/temoto/sense/internal/wire"
)

// Empty is request or response without fields.
type Empty struct{}

func (Empty) Marshal() ([]byte, error) { return nil, nil }
func (Empty) Unmarshal(b []byte) error {
	return wire.Walk(b, func(d *wire.Decoder, _ wire.Number) error { return d.Skip() })
}

type Measurement struct {
	Temperature      float32 // celsius
	Pressure         float32 // hPa
	Humidity         float32 // percent
	GasResistance    float32 // ohm
	Score            uint32  // 0..1024
	CollectionTimeMs uint64
}

func (m *Measurement) Marshal() ([]byte, error) {
	e := wire.NewEncoder()
	e.Float(1, m.Temperature)
	e.Float(2, m.Pressure)
	e.Float(3, m.Humidity)
	e.Float(4, m.GasResistance)
	e.Uvarint(5, uint64(m.Score))
	e.Uvarint(6, m.CollectionTimeMs)
	return e.Result()
}

func (m *Measurement) Unmarshal(b []byte) error {
	*m = Measurement{}
	err := wire.Walk(b, func(d *wire.Decoder, num wire.Number) (err error) {
		switch num {
		case 1:
			m.Temperature, err = d.Float()
		case 2:
			m.Pressure, err = d.Float()
		case 3:
			m.Humidity, err = d.Float()
		case 4:
			m.GasResistance, err = d.Float()
		case 5:
			m.Score, err = d.Uint32()
		case 6:
			m.CollectionTimeMs, err = d.Uvarint()
		default:
			err = d.Skip()
		}
		return err
	})
	return errors.Annotate(err, "Measurement")
}

// SampleRequest is MeasureStreamRequest and OnboardTempStreamRequest.
type SampleRequest struct {
	SampleIntervalMs uint32
}

func (r *SampleRequest) Marshal() ([]byte, error) {
	e := wire.NewEncoder()
	e.Uvarint(1, uint64(r.SampleIntervalMs))
	return e.Result()
}

func (r *SampleRequest) Unmarshal(b []byte) error {
	*r = SampleRequest{}
	err := wire.Walk(b, func(d *wire.Decoder, num wire.Number) (err error) {
		if num == 1 {
			r.SampleIntervalMs, err = d.Uint32()
			return err
		}
		return d.Skip()
	})
	return errors.Annotate(err, "SampleRequest")
}

type OnboardTempResponse struct {
	Temp float32
}

func (r *OnboardTempResponse) Marshal() ([]byte, error) {
	e := wire.NewEncoder()
	e.Float(1, r.Temp)
	return e.Result()
}

func (r *OnboardTempResponse) Unmarshal(b []byte) error {
	*r = OnboardTempResponse{}
	err := wire.Walk(b, func(d *wire.Decoder, num wire.Number) (err error) {
		if num == 1 {
			r.Temp, err = d.Float()
			return err
		}
		return d.Skip()
	})
	return errors.Annotate(err, "OnboardTempResponse")
}

type State struct {
	AlarmActive    bool
	AlarmThreshold uint32
	AqScore        uint32
	AqDescription  string
}

func (s *State) Marshal() ([]byte, error) {
	e := wire.NewEncoder()
	e.Bool(1, s.AlarmActive)
	e.Uvarint(2, uint64(s.AlarmThreshold))
	e.Uvarint(3, uint64(s.AqScore))
	e.String(4, s.AqDescription)
	return e.Result()
}

func (s *State) Unmarshal(b []byte) error {
	*s = State{}
	err := wire.Walk(b, func(d *wire.Decoder, num wire.Number) (err error) {
		switch num {
		case 1:
			s.AlarmActive, err = d.Bool()
		case 2:
			s.AlarmThreshold, err = d.Uint32()
		case 3:
			s.AqScore, err = d.Uint32()
		case 4:
			s.AqDescription, err = d.String()
		default:
			err = d.Skip()
		}
		return err
	})
	return errors.Annotate(err, "State")
}

type ChangeThresholdRequest struct {
	Increment bool
}

func (r *ChangeThresholdRequest) Marshal() ([]byte, error) {
	e := wire.NewEncoder()
	e.Bool(1, r.Increment)
	return e.Result()
}

func (r *ChangeThresholdRequest) Unmarshal(b []byte) error {
	*r = ChangeThresholdRequest{}
	err := wire.Walk(b, func(d *wire.Decoder, num wire.Number) (err error) {
		if num == 1 {
			r.Increment, err = d.Bool()
			return err
		}
		return d.Skip()
	})
	return errors.Annotate(err, "ChangeThresholdRequest")
}

// BlinkRequest with BlinkCount=0 and HasBlinkCount=false blinks forever.
type BlinkRequest struct {
	IntervalMs    uint32
	BlinkCount    uint32
	HasBlinkCount bool
}

func (r *BlinkRequest) Marshal() ([]byte, error) {
	e := wire.NewEncoder()
	e.Uvarint(1, uint64(r.IntervalMs))
	if r.HasBlinkCount {
		e.PutUvarint(2, uint64(r.BlinkCount))
	}
	return e.Result()
}

func (r *BlinkRequest) Unmarshal(b []byte) error {
	*r = BlinkRequest{}
	err := wire.Walk(b, func(d *wire.Decoder, num wire.Number) (err error) {
		switch num {
		case 1:
			r.IntervalMs, err = d.Uint32()
		case 2:
			r.BlinkCount, err = d.Uint32()
			r.HasBlinkCount = true
		default:
			err = d.Skip()
		}
		return err
	})
	return errors.Annotate(err, "BlinkRequest")
}

type IsIdleResponse struct {
	IsIdle bool
}

func (r *IsIdleResponse) Marshal() ([]byte, error) {
	e := wire.NewEncoder()
	e.Bool(1, r.IsIdle)
	return e.Result()
}

func (r *IsIdleResponse) Unmarshal(b []byte) error {
	*r = IsIdleResponse{}
	err := wire.Walk(b, func(d *wire.Decoder, num wire.Number) (err error) {
		if num == 1 {
			r.IsIdle, err = d.Bool()
			return err
		}
		return d.Skip()
	})
	return errors.Annotate(err, "IsIdleResponse")
}
