package rpc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/temoto/sense/helpers"
)

type CallState uint32

const (
	CallInvoked CallState = iota
	CallActive
	CallCompleted
	CallFailed
	CallCancelled
)

func (s CallState) String() string {
	switch s {
	case CallInvoked:
		return "invoked"
	case CallActive:
		return "active"
	case CallCompleted:
		return "completed"
	case CallFailed:
		return "failed"
	case CallCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("CallState(%d)", uint32(s))
}

func (s CallState) Terminal() bool { return s >= CallCompleted }

// StreamHandler callbacks run on the goroutine processing inbound frames,
// in packet arrival order. They must not block for long.
// Exactly one of OnCompleted, OnError is called at most once.
type StreamHandler struct {
	OnNext      func(payload []byte)
	OnCompleted func(status Status)
	OnError     func(err error)
}

type unaryResult struct {
	status  Status
	payload []byte
}

// Call is a pending invocation owned by Client registry.
type Call struct {
	client  *Client
	id      uint32
	method  Method
	state   uint32 // CallState
	handler StreamHandler
	future  *helpers.Future[unaryResult] // unary only

	// held across state check and callback, cancel waits on it
	cb sync.Mutex
}

func (c *Call) ID() uint32       { return c.id }
func (c *Call) Method() Method   { return c.method }
func (c *Call) State() CallState { return CallState(atomic.LoadUint32(&c.state)) }
func (c *Call) String() string   { return fmt.Sprintf("call(id=%d %s %s)", c.id, c.method, c.State()) }
func (c *Call) unary() bool      { return c.future != nil }
func (c *Call) activate() {
	atomic.CompareAndSwapUint32(&c.state, uint32(CallInvoked), uint32(CallActive))
}
func (c *Call) pending() bool { return !c.State().Terminal() }

// finish moves call into terminal state, only first transition wins.
func (c *Call) finish(s CallState) bool {
	for {
		old := atomic.LoadUint32(&c.state)
		if CallState(old).Terminal() {
			return false
		}
		if atomic.CompareAndSwapUint32(&c.state, old, uint32(s)) {
			return true
		}
	}
}

// Cancel stops listening: call is removed from registry and device is told
// with CLIENT_ERROR CANCELLED. Callback running on inbound goroutine is waited for,
// after Cancel returns no callback starts for this call.
// Cancel of finished call is no-op.
// Cancel must not be called from OnNext of the same call, use Abandon there.
func (c *Call) Cancel() error {
	return c.client.cancel(c, nil, true)
}

// Abandon is Cancel without waiting for running callback.
// Safe from this call's own callbacks: the running one is the last.
func (c *Call) Abandon() error {
	return c.client.cancel(c, nil, false)
}
