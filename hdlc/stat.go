package hdlc

import (
	"expvar"
	"fmt"
)

type Stat struct {
	Bytes     expvar.Int
	Frames    expvar.Int
	Corrupt   expvar.Int
	Escape    expvar.Int
	Oversize  expvar.Int
	Malformed expvar.Int
}

func (s *Stat) Dropped() int64 {
	return s.Corrupt.Value() + s.Escape.Value() + s.Oversize.Value() + s.Malformed.Value()
}

func (s *Stat) String() string {
	return fmt.Sprintf(`{"bytes":%d,"frames":%d,"corrupt":%d,"escape":%d,"oversize":%d,"malformed":%d}`,
		s.Bytes.Value(), s.Frames.Value(), s.Corrupt.Value(), s.Escape.Value(), s.Oversize.Value(), s.Malformed.Value())
}
