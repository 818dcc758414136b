package transport

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/sense/helpers"
)

const DefaultDialTimeout = 5 * time.Second

// Socket is TCP link, e.g. to device simulator or serial-to-network bridge.
type Socket struct {
	Network     string // default "tcp"
	Address     string
	DialTimeout time.Duration
	Stat        Stat

	mu   sync.Mutex
	conn net.Conn
	r    io.Reader
	w    io.Writer
}

var _ Transport = &Socket{}

func NewSocket(address string, dialTimeout time.Duration) *Socket {
	return &Socket{Network: "tcp", Address: address, DialTimeout: dialTimeout}
}

func (s *Socket) String() string       { return "socket:" + s.Address }
func (s *Socket) TransportStat() *Stat { return &s.Stat }

func (s *Socket) Open(ctx context.Context) error {
	network := s.Network
	if network == "" {
		network = "tcp"
	}
	timeout := s.DialTimeout
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, network, s.Address)
	if err != nil {
		return errors.Annotatef(err, "%s open", s)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetLinger(0)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = conn
	s.r = helpers.NewStatReader(conn, &s.Stat.Recv)
	s.w = helpers.NewStatWriter(conn, &s.Stat.Sent)
	s.Stat.Opens.Add(1)
	return nil
}

func (s *Socket) current() (net.Conn, io.Reader, io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn, s.r, s.w
}

func (s *Socket) Read(b []byte) (int, error) {
	conn, r, _ := s.current()
	if conn == nil {
		return 0, ErrClosed
	}
	n, err := r.Read(b)
	return n, s.mapError(conn, err)
}

func (s *Socket) Write(b []byte) (int, error) {
	conn, _, w := s.current()
	if conn == nil {
		return 0, ErrClosed
	}
	n, err := w.Write(b)
	return n, s.mapError(conn, err)
}

func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn, s.r, s.w = nil, nil, nil
	return errors.Annotatef(err, "%s close", s)
}

// Errors of connection replaced or closed by us become ErrClosed.
func (s *Socket) mapError(conn net.Conn, err error) error {
	if err == nil {
		return nil
	}
	if current, _, _ := s.current(); current != conn || errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return errors.Annotatef(err, "%s", s)
}
