package rpc

import (
	"context"
	"sort"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/sense/hdlc"
	"github.com/temoto/sense/helpers"
	"github.com/temoto/sense/log2"
)

type ClientOptions struct {
	Log *log2.Log
	// By default stream packets of unknown calls are answered with
	// CLIENT_ERROR FAILED_PRECONDITION so device stops the orphan stream.
	NoOrphanReply bool
}

// Client multiplexes calls over one Channel.
// Inbound frames must be fed from single goroutine via ProcessFrame,
// calls may be issued from any goroutine.
type Client struct {
	Log  *log2.Log
	Stat Stat

	ch  *Channel
	opt ClientOptions

	mu     sync.Mutex
	calls  map[uint32]*Call
	lastID uint32
	stubs  map[string]*MethodStub
}

func NewClient(ch *Channel, opt ClientOptions) *Client {
	return &Client{
		Log:   opt.Log,
		ch:    ch,
		opt:   opt,
		calls: make(map[uint32]*Call),
		stubs: make(map[string]*MethodStub),
	}
}

func (c *Client) Channel() *Channel { return c.ch }

// Method returns shared stub, registering method on first use.
func (c *Client) Method(m Method) *MethodStub {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := m.FullName()
	if s, ok := c.stubs[key]; ok {
		return s
	}
	s := &MethodStub{client: c, method: m}
	c.stubs[key] = s
	return s
}

func (c *Client) Register(ms ...Method) {
	for _, m := range ms {
		c.Method(m)
	}
}

// Stub finds registered method by names.
func (c *Client) Stub(service, name string) (*MethodStub, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.stubs[service+"."+name]; ok {
		return s, nil
	}
	return nil, errors.NotFoundf("rpc method %s.%s", service, name)
}

func (c *Client) Methods() []Method {
	c.mu.Lock()
	ms := make([]Method, 0, len(c.stubs))
	for _, s := range c.stubs {
		ms = append(ms, s.method)
	}
	c.mu.Unlock()
	sort.Slice(ms, func(a, b int) bool { return ms[a].FullName() < ms[b].FullName() })
	return ms
}

// Pending returns number of registered calls.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// Unary sends request and waits for response.
// Non-OK status in RESPONSE packet is returned as is with nil error,
// SERVER_ERROR is returned as *Error with Kind Remote or CapabilityUnavailable.
func (c *Client) Unary(ctx context.Context, m Method, payload []byte) (Status, []byte, error) {
	call := c.register(m, StreamHandler{}, true)
	if err := c.start(call, payload); err != nil {
		return StatusUnknown, nil, err
	}

	select {
	case <-call.future.Done():
		r, err := call.future.Result()
		if err != nil {
			return StatusOf(err), nil, err
		}
		return r.status, r.payload, nil

	case <-ctx.Done():
		if err := c.cancel(call, ctx.Err(), true); err != nil {
			c.Log.Debugf("rpc %s cancel err=%v", call, err)
		}
		select {
		case <-call.future.Done():
			if r, err := call.future.Result(); err == nil {
				return r.status, r.payload, nil
			}
		default:
		}
		return StatusCancelled, nil, cancelledError(m, ctx.Err())
	}
}

// Invoke starts server streaming call.
func (c *Client) Invoke(m Method, payload []byte, h StreamHandler) (*Call, error) {
	call := c.register(m, h, false)
	if err := c.start(call, payload); err != nil {
		return nil, err
	}
	return call, nil
}

// ProcessFrame handles frame if it is addressed to this client.
func (c *Client) ProcessFrame(f hdlc.Frame) bool {
	if f.Address != c.ch.Address {
		return false
	}
	if err := c.ProcessPacket(f.Payload); err != nil {
		c.Log.Debugf("rpc process err=%v", err)
	}
	return true
}

// ProcessPacket decodes packet and dispatches it to matching call.
// Packets for unknown calls are dropped without error.
func (c *Client) ProcessPacket(b []byte) error {
	var p Packet
	if err := p.Unmarshal(b); err != nil {
		c.Stat.Corrupt.Add(1)
		return &Error{Kind: KindFrameCorrupt, Err: err}
	}
	c.Stat.Received.Add(1)
	if p.ChannelID != c.ch.ID {
		c.Stat.Unmatched.Add(1)
		c.Log.Debugf("rpc drop channel=%d expected=%d", p.ChannelID, c.ch.ID)
		return nil
	}

	terminal := p.Type == PacketResponse || p.Type == PacketServerError
	c.mu.Lock()
	call, ok := c.calls[p.CallID]
	if ok && !call.method.match(&p) {
		call, ok = nil, false
	}
	if ok && terminal {
		delete(c.calls, p.CallID)
	}
	c.mu.Unlock()

	if !ok {
		c.unmatched(&p)
		return nil
	}
	c.dispatch(call, &p)
	return nil
}

// AbortAll fails every pending call with cancellation error and clears registry.
// Stream handlers receive OnError, unary callers return the error.
// Like Call.Cancel it waits for running callbacks, so it must not be called from one.
func (c *Client) AbortAll(cause error) int {
	c.mu.Lock()
	calls := make([]*Call, 0, len(c.calls))
	for id, call := range c.calls {
		calls = append(calls, call)
		delete(c.calls, id)
	}
	c.mu.Unlock()

	sort.Slice(calls, func(a, b int) bool { return calls[a].id < calls[b].id })
	n := 0
	for _, call := range calls {
		if c.abort(call, cause) {
			n++
		}
	}
	if n != 0 {
		c.Log.Debugf("rpc aborted calls=%d cause=%v", n, cause)
	}
	return n
}

func (c *Client) abort(call *Call, cause error) bool {
	call.cb.Lock()
	defer call.cb.Unlock()
	if !call.finish(CallCancelled) {
		return false
	}
	c.Stat.Cancelled.Add(1)
	err := cancelledError(call.method, cause)
	if call.unary() {
		call.future.Fail(err)
	} else if call.handler.OnError != nil {
		call.handler.OnError(err)
	}
	return true
}

func (c *Client) register(m Method, h StreamHandler, unary bool) *Call {
	call := &Call{client: c, method: m, handler: h}
	if unary {
		call.future = helpers.NewFuture[unaryResult]()
	}
	c.mu.Lock()
	for {
		c.lastID++
		if c.lastID == 0 {
			continue
		}
		if _, used := c.calls[c.lastID]; !used {
			break
		}
	}
	call.id = c.lastID
	c.calls[call.id] = call
	c.mu.Unlock()
	return call
}

func (c *Client) remove(call *Call) {
	c.mu.Lock()
	if c.calls[call.id] == call {
		delete(c.calls, call.id)
	}
	c.mu.Unlock()
}

func (c *Client) start(call *Call, payload []byte) error {
	p := Packet{
		Type:      PacketRequest,
		ServiceID: call.method.ServiceID,
		MethodID:  call.method.MethodID,
		CallID:    call.id,
		Payload:   payload,
	}
	if err := c.ch.sendPacket(&p); err != nil {
		c.remove(call)
		call.finish(CallFailed)
		return errors.Annotatef(err, "%s request", call.method)
	}
	c.Stat.Sent.Add(1)
	call.activate()
	return nil
}

// cancel with wait holds call.cb for the transition, so a callback
// already past its state check finishes before cancel returns.
func (c *Client) cancel(call *Call, cause error, wait bool) error {
	c.remove(call)
	if call.State().Terminal() {
		return nil
	}
	if wait {
		call.cb.Lock()
	}
	ok := call.finish(CallCancelled)
	if wait {
		call.cb.Unlock()
	}
	if !ok {
		return nil
	}
	c.Stat.Cancelled.Add(1)
	if call.unary() {
		if cause == nil {
			cause = context.Canceled
		}
		call.future.Fail(cancelledError(call.method, cause))
	}
	p := Packet{
		Type:      PacketClientError,
		ServiceID: call.method.ServiceID,
		MethodID:  call.method.MethodID,
		CallID:    call.id,
		Status:    StatusCancelled,
	}
	return errors.Annotatef(c.ch.sendPacket(&p), "%s cancel", call.method)
}

func (c *Client) dispatch(call *Call, p *Packet) {
	h := &call.handler
	call.cb.Lock()
	defer call.cb.Unlock()
	switch p.Type {
	case PacketServerStream:
		if call.unary() {
			c.Log.Debugf("rpc %s unexpected stream packet", call)
			return
		}
		if call.pending() && h.OnNext != nil {
			h.OnNext(p.Payload)
		}

	case PacketResponse:
		if !call.finish(CallCompleted) {
			return
		}
		if call.unary() {
			call.future.Complete(unaryResult{status: p.Status, payload: p.Payload})
			return
		}
		if len(p.Payload) != 0 && h.OnNext != nil {
			h.OnNext(p.Payload)
		}
		if h.OnCompleted != nil {
			h.OnCompleted(p.Status)
		}

	case PacketServerError:
		if !call.finish(CallFailed) {
			return
		}
		c.Stat.Remote.Add(1)
		err := RemoteError(call.method, p.Status)
		if call.unary() {
			call.future.Fail(err)
		} else if h.OnError != nil {
			h.OnError(err)
		}

	default:
		c.Log.Debugf("rpc %s unexpected packet type=%s", call, p.Type)
	}
}

func (c *Client) unmatched(p *Packet) {
	c.Stat.Unmatched.Add(1)
	c.Log.Debugf("rpc drop %s", p)
	if p.Type != PacketServerStream || c.opt.NoOrphanReply {
		return
	}
	reply := Packet{
		Type:      PacketClientError,
		ServiceID: p.ServiceID,
		MethodID:  p.MethodID,
		CallID:    p.CallID,
		Status:    StatusFailedPrecondition,
	}
	if err := c.ch.sendPacket(&reply); err != nil {
		c.Log.Debugf("rpc orphan reply err=%v", err)
	}
}
