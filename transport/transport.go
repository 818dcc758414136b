// Package transport provides byte stream links to the device.
// Chunk boundaries carry no meaning, framing is done by hdlc.
package transport

import (
	"context"
	"expvar"
	"fmt"
	"io"

	"github.com/juju/errors"
)

const ErrClosed = errors.ConstError("transport closed")

// Transport is owned by single session.
// Read is called from one goroutine only, Write may be called concurrently
// but callers serialize frames themselves.
// After Close, Read and Write return ErrClosed; Open may be called again.
type Transport interface {
	Open(ctx context.Context) error
	io.ReadWriteCloser
	String() string
}

type Stat struct {
	Opens expvar.Int
	Recv  expvar.Int
	Sent  expvar.Int
}

func (s *Stat) String() string {
	return fmt.Sprintf(`{"opens":%d,"recv":%d,"sent":%d}`, s.Opens.Value(), s.Recv.Value(), s.Sent.Value())
}

// Stater is implemented by all transports in this package.
type Stater interface {
	TransportStat() *Stat
}
