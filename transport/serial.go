package transport

import (
	"os"
	"sync"

	"github.com/juju/errors"
)

const DefaultBaud = 115200

// Serial is raw tty link, e.g. /dev/ttyACM0 of USB CDC device.
type Serial struct {
	Path string
	Baud int
	Stat Stat

	mu sync.Mutex
	f  *os.File
}

var _ Transport = &Serial{}

func NewSerial(path string, baud int) *Serial {
	if baud == 0 {
		baud = DefaultBaud
	}
	return &Serial{Path: path, Baud: baud}
}

func (s *Serial) String() string       { return "serial:" + s.Path }
func (s *Serial) TransportStat() *Stat { return &s.Stat }

func (s *Serial) file() *os.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f
}

func (s *Serial) Read(b []byte) (int, error) {
	f := s.file()
	if f == nil {
		return 0, ErrClosed
	}
	n, err := f.Read(b)
	s.Stat.Recv.Add(int64(n))
	return n, s.mapError(f, err)
}

func (s *Serial) Write(b []byte) (int, error) {
	f := s.file()
	if f == nil {
		return 0, ErrClosed
	}
	n, err := f.Write(b)
	s.Stat.Sent.Add(int64(n))
	return n, s.mapError(f, err)
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return errors.Annotatef(err, "%s close", s)
}

func (s *Serial) mapError(f *os.File, err error) error {
	if err == nil {
		return nil
	}
	if s.file() != f || errors.Is(err, os.ErrClosed) {
		return ErrClosed
	}
	return errors.Annotatef(err, "%s", s)
}
