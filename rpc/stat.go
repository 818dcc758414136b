package rpc

import (
	"expvar"
	"fmt"
)

type Stat struct {
	Sent      expvar.Int
	Received  expvar.Int
	Unmatched expvar.Int
	Corrupt   expvar.Int
	Remote    expvar.Int
	Cancelled expvar.Int
}

func (s *Stat) String() string {
	return fmt.Sprintf(`{"sent":%d,"received":%d,"unmatched":%d,"corrupt":%d,"remote":%d,"cancelled":%d}`,
		s.Sent.Value(), s.Received.Value(), s.Unmatched.Value(), s.Corrupt.Value(), s.Remote.Value(), s.Cancelled.Value())
}
