package transport

import (
	"context"
	"sync"

	"github.com/temoto/sense/helpers"
)

const pipeQueue = 256

type pipeLink struct {
	once     sync.Once
	closed   chan struct{}
	a2b, b2a chan []byte
}

func newPipeLink() *pipeLink {
	return &pipeLink{
		closed: make(chan struct{}),
		a2b:    make(chan []byte, pipeQueue),
		b2a:    make(chan []byte, pipeQueue),
	}
}

func (l *pipeLink) close() { l.once.Do(func() { close(l.closed) }) }

// pipeHub is shared by both ends, Open after Close swaps in new link.
type pipeHub struct {
	mu   sync.Mutex
	link *pipeLink
}

func (h *pipeHub) current() *pipeLink {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.link
}

func (h *pipeHub) reopen() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if helpers.IsClosed(h.link.closed) {
		h.link = newPipeLink()
	}
}

// Pipe is in-memory end of duplex link that keeps written chunks intact,
// so tests control exactly how bytes are split.
type Pipe struct {
	Stat Stat

	name    string
	hub     *pipeHub
	host    bool
	mu      sync.Mutex // guards link, pending
	link    *pipeLink
	pending []byte
}

var _ Transport = &Pipe{}

// NewPipe returns connected ends. Closing either end closes both,
// Open on either end after that connects both to fresh link.
func NewPipe() (host *Pipe, device *Pipe) {
	hub := &pipeHub{link: newPipeLink()}
	host = &Pipe{name: "pipe:host", hub: hub, host: true, link: hub.link}
	device = &Pipe{name: "pipe:device", hub: hub, link: hub.link}
	return host, device
}

func (p *Pipe) String() string       { return p.name }
func (p *Pipe) TransportStat() *Stat { return &p.Stat }
func (p *Pipe) Close() error         { p.hub.current().close(); return nil }

func (p *Pipe) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.hub.reopen()
	p.sync()
	p.Stat.Opens.Add(1)
	return nil
}

// sync follows link replaced by Open of either end.
func (p *Pipe) sync() *pipeLink {
	l := p.hub.current()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.link != l {
		p.link = l
		p.pending = nil
	}
	return p.link
}

func (p *Pipe) ends(l *pipeLink) (rx <-chan []byte, tx chan<- []byte) {
	if p.host {
		return l.b2a, l.a2b
	}
	return l.a2b, l.b2a
}

func (p *Pipe) Read(b []byte) (int, error) {
	l := p.sync()
	if helpers.IsClosed(l.closed) {
		return 0, ErrClosed
	}
	p.mu.Lock()
	chunk := p.pending
	p.mu.Unlock()
	if len(chunk) == 0 {
		rx, _ := p.ends(l)
		select {
		case chunk = <-rx:
		case <-l.closed:
			return 0, ErrClosed
		}
	}
	n := copy(b, chunk)
	p.mu.Lock()
	p.pending = chunk[n:]
	p.mu.Unlock()
	p.Stat.Recv.Add(int64(n))
	return n, nil
}

func (p *Pipe) Write(b []byte) (int, error) {
	l := p.sync()
	if helpers.IsClosed(l.closed) {
		return 0, ErrClosed
	}
	_, tx := p.ends(l)
	chunk := append([]byte(nil), b...)
	select {
	case tx <- chunk:
		p.Stat.Sent.Add(int64(len(b)))
		return len(b), nil
	case <-l.closed:
		return 0, ErrClosed
	}
}
