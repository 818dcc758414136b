package rpc

import (
	"io"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/sense/hdlc"
	"github.com/temoto/sense/helpers"
)

const (
	DefaultChannelID = 1
	DefaultAddress   = 82
)

// Channel is the only writer to the link.
// Send frames payload for device address and writes it whole,
// concurrent senders are serialized in issuance order.
type Channel struct {
	ID      uint32
	Address uint64

	enc hdlc.Encoder
	mu  sync.Mutex
	w   io.Writer
	buf []byte
}

func NewChannel(id uint32, address uint64, enc hdlc.Encoder, w io.Writer) *Channel {
	return &Channel{
		ID:      id,
		Address: address,
		enc:     enc,
		w:       w,
	}
}

func (c *Channel) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := c.enc.AppendFrame(c.buf[:0], c.Address, hdlc.ControlUI, payload)
	if err != nil {
		return errors.Annotatef(err, "channel=%d", c.ID)
	}
	c.buf = b
	if err = helpers.WriteAll(c.w, b); err != nil {
		return errors.Annotatef(err, "channel=%d write", c.ID)
	}
	return nil
}

func (c *Channel) sendPacket(p *Packet) error {
	p.ChannelID = c.ID
	b, err := p.Marshal()
	if err != nil {
		return err
	}
	return c.Send(b)
}
