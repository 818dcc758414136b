package rpc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/temoto/sense/hdlc"
	"github.com/temoto/sense/log2"
)

var (
	testUnary  = NewMethod("test.Echo.Echo", Unary)
	testStream = NewMethod("test.Echo.Stream", ServerStreaming)
)

// deviceSink decodes what client writes to the link.
type deviceSink struct {
	mu  sync.Mutex
	dec *hdlc.Decoder
	ch  chan Packet
}

func (s *deviceSink) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.dec.Feed(b) {
		var p Packet
		if err := p.Unmarshal(f.Payload); err != nil {
			panic(err)
		}
		s.ch <- p
	}
	return len(b), nil
}

func (s *deviceSink) next(t testing.TB) Packet {
	t.Helper()
	select {
	case p := <-s.ch:
		return p
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timeout waiting for client packet")
	}
	return Packet{}
}

func (s *deviceSink) empty(t testing.TB) {
	t.Helper()
	select {
	case p := <-s.ch:
		require.FailNow(t, "unexpected client packet", p.String())
	default:
	}
}

func newTestClient(t testing.TB) (*Client, *deviceSink) {
	sink := &deviceSink{dec: hdlc.NewDecoder(0), ch: make(chan Packet, 128)}
	ch := NewChannel(DefaultChannelID, DefaultAddress, hdlc.Encoder{}, sink)
	c := NewClient(ch, ClientOptions{Log: log2.NewTest(t, log2.LDebug)})
	c.Register(testUnary, testStream)
	return c, sink
}

func reply(t testing.TB, c *Client, req Packet, typ PacketType, status Status, payload []byte) {
	t.Helper()
	require.NoError(t, c.ProcessPacket(replyBytes(t, req, typ, status, payload)))
}

func replyBytes(t testing.TB, req Packet, typ PacketType, status Status, payload []byte) []byte {
	t.Helper()
	p := Packet{
		Type:      typ,
		ChannelID: req.ChannelID,
		ServiceID: req.ServiceID,
		MethodID:  req.MethodID,
		CallID:    req.CallID,
		Status:    status,
		Payload:   payload,
	}
	b, err := p.Marshal()
	require.NoError(t, err)
	return b
}
