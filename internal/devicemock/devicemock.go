// Package devicemock is in-process device speaking HDLC framed RPC.
// Used by tests and `sense simulate`.
package devicemock

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/sense/hdlc"
	"github.com/temoto/sense/helpers"
	"github.com/temoto/sense/log2"
	"github.com/temoto/sense/rpc"
)

type UnaryFunc func(ctx context.Context, req []byte) (rpc.Status, []byte)

// StreamFunc sends chunks until ctx is done (client cancelled or disconnected)
// and returns final status. OK completes stream, other status becomes SERVER_ERROR.
type StreamFunc func(ctx context.Context, req []byte, send func([]byte) error) rpc.Status

type methodKey struct{ service, method uint32 }

type Device struct {
	Log     *log2.Log
	Address uint64

	mu      sync.Mutex
	unary   map[methodKey]UnaryFunc
	stream  map[methodKey]StreamFunc
	seen    map[methodKey]int
	cancels int
}

func New(log *log2.Log) *Device {
	return &Device{
		Log:     log.Named("device"),
		Address: rpc.DefaultAddress,
		unary:   make(map[methodKey]UnaryFunc),
		stream:  make(map[methodKey]StreamFunc),
		seen:    make(map[methodKey]int),
	}
}

func key(m rpc.Method) methodKey { return methodKey{m.ServiceID, m.MethodID} }

func (d *Device) HandleUnary(m rpc.Method, f UnaryFunc) {
	d.mu.Lock()
	d.unary[key(m)] = f
	d.mu.Unlock()
}

func (d *Device) HandleStream(m rpc.Method, f StreamFunc) {
	d.mu.Lock()
	d.stream[key(m)] = f
	d.mu.Unlock()
}

// Requests returns number of requests received for m.
func (d *Device) Requests(m rpc.Method) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[key(m)]
}

// Cancels returns number of CLIENT_ERROR packets received.
func (d *Device) Cancels() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancels
}

// ServeListener accepts connections until ctx is done or listener fails.
func (d *Device) ServeListener(ctx context.Context, ln net.Listener) error {
	a := alive.NewAlive()
	go func() {
		select {
		case <-ctx.Done():
		case <-a.StopChan():
		}
		_ = ln.Close()
		a.Stop()
	}()
	defer a.Wait()
	defer a.Stop()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Annotate(err, "devicemock accept")
		}
		if !a.Add(1) {
			conn.Close()
			return nil
		}
		go func() {
			defer a.Done()
			stop := make(chan struct{})
			go func() {
				select {
				case <-a.StopChan():
				case <-stop:
				}
				_ = conn.Close()
			}()
			err := d.Serve(ctx, conn)
			close(stop)
			d.Log.Debugf("devicemock conn=%s end err=%v", conn.RemoteAddr(), err)
		}()
	}
}

// Serve handles one link until read fails. Streams are cancelled on return.
func (d *Device) Serve(ctx context.Context, rw io.ReadWriter) error {
	ctx, cancel := context.WithCancel(ctx)
	c := &conn{
		dev:     d,
		ctx:     ctx,
		w:       rw,
		streams: make(map[uint32]context.CancelFunc),
	}
	defer c.wg.Wait()
	defer cancel()

	dec := hdlc.NewDecoder(0)
	buf := make([]byte, 512)
	for {
		n, err := rw.Read(buf)
		if n > 0 {
			for _, f := range dec.Feed(buf[:n]) {
				if f.Address == d.Address {
					c.handle(f.Payload)
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

type conn struct {
	dev *Device
	ctx context.Context
	wg  sync.WaitGroup

	wmu sync.Mutex
	w   io.Writer

	smu     sync.Mutex
	streams map[uint32]context.CancelFunc
}

func (c *conn) send(p *rpc.Packet) error {
	b, err := p.Marshal()
	if err != nil {
		return err
	}
	frame, err := hdlc.Encoder{}.Encode(c.dev.Address, b)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return helpers.WriteAll(c.w, frame)
}

func (c *conn) reply(req *rpc.Packet, typ rpc.PacketType, status rpc.Status, payload []byte) error {
	return c.send(&rpc.Packet{
		Type:      typ,
		ChannelID: req.ChannelID,
		ServiceID: req.ServiceID,
		MethodID:  req.MethodID,
		CallID:    req.CallID,
		Status:    status,
		Payload:   payload,
	})
}

func (c *conn) handle(b []byte) {
	var p rpc.Packet
	if err := p.Unmarshal(b); err != nil {
		c.dev.Log.Debugf("devicemock bad packet err=%v", err)
		return
	}
	k := methodKey{p.ServiceID, p.MethodID}

	switch p.Type {
	case rpc.PacketClientError:
		c.dev.mu.Lock()
		c.dev.cancels++
		c.dev.mu.Unlock()
		c.smu.Lock()
		if cancel, ok := c.streams[p.CallID]; ok {
			cancel()
			delete(c.streams, p.CallID)
		}
		c.smu.Unlock()
		return

	case rpc.PacketRequest:
	default:
		return
	}

	c.dev.mu.Lock()
	c.dev.seen[k]++
	unary := c.dev.unary[k]
	stream := c.dev.stream[k]
	c.dev.mu.Unlock()

	switch {
	case unary != nil:
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			status, resp := unary(c.ctx, p.Payload)
			typ := rpc.PacketResponse
			if status != rpc.StatusOK {
				typ, resp = rpc.PacketServerError, nil
			}
			if err := c.reply(&p, typ, status, resp); err != nil {
				c.dev.Log.Debugf("devicemock reply err=%v", err)
			}
		}()

	case stream != nil:
		sctx, cancel := context.WithCancel(c.ctx)
		c.smu.Lock()
		c.streams[p.CallID] = cancel
		c.smu.Unlock()
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer cancel()
			status := stream(sctx, p.Payload, func(chunk []byte) error {
				if sctx.Err() != nil {
					return sctx.Err()
				}
				return c.reply(&p, rpc.PacketServerStream, rpc.StatusOK, chunk)
			})
			if sctx.Err() != nil {
				return
			}
			c.smu.Lock()
			delete(c.streams, p.CallID)
			c.smu.Unlock()
			typ := rpc.PacketResponse
			if status != rpc.StatusOK {
				typ = rpc.PacketServerError
			}
			if err := c.reply(&p, typ, status, nil); err != nil {
				c.dev.Log.Debugf("devicemock reply err=%v", err)
			}
		}()

	default:
		if err := c.reply(&p, rpc.PacketServerError, rpc.StatusNotFound, nil); err != nil {
			c.dev.Log.Debugf("devicemock reply err=%v", err)
		}
	}
}
