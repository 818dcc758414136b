package rpc

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/sense/internal/wire"
)

type PacketType uint32

const (
	PacketRequest                 PacketType = 0
	PacketResponse                PacketType = 1
	PacketClientStream            PacketType = 2
	PacketServerStream            PacketType = 3
	PacketClientError             PacketType = 4
	PacketServerError             PacketType = 5
	PacketClientRequestCompletion PacketType = 8
)

func (t PacketType) String() string {
	switch t {
	case PacketRequest:
		return "REQUEST"
	case PacketResponse:
		return "RESPONSE"
	case PacketClientStream:
		return "CLIENT_STREAM"
	case PacketServerStream:
		return "SERVER_STREAM"
	case PacketClientError:
		return "CLIENT_ERROR"
	case PacketServerError:
		return "SERVER_ERROR"
	case PacketClientRequestCompletion:
		return "CLIENT_REQUEST_COMPLETION"
	}
	return fmt.Sprintf("PacketType(%d)", uint32(t))
}

// Packet fields: type:1 varint, channel_id:2 varint, service_id:3 fixed32,
// method_id:4 fixed32, payload:5 bytes, status:6 varint, call_id:7 varint.
type Packet struct {
	Type      PacketType
	ChannelID uint32
	ServiceID uint32
	MethodID  uint32
	Payload   []byte
	Status    Status
	CallID    uint32
}

func (p *Packet) String() string {
	return fmt.Sprintf("rpc.Packet(type=%s channel=%d service=%08x method=%08x call=%d status=%s payload=%x)",
		p.Type, p.ChannelID, p.ServiceID, p.MethodID, p.CallID, p.Status, p.Payload)
}

func (p *Packet) Marshal() ([]byte, error) {
	e := wire.NewEncoder()
	e.Uvarint(1, uint64(p.Type))
	e.Uvarint(2, uint64(p.ChannelID))
	e.Fixed32(3, p.ServiceID)
	e.Fixed32(4, p.MethodID)
	e.Bytes(5, p.Payload)
	e.Uvarint(6, uint64(p.Status))
	e.Uvarint(7, uint64(p.CallID))
	b, err := e.Result()
	return b, errors.Annotate(err, "rpc.Packet.Marshal")
}

func (p *Packet) Unmarshal(b []byte) error {
	*p = Packet{}
	err := wire.Walk(b, func(d *wire.Decoder, num wire.Number) error {
		var err error
		var v uint64
		switch num {
		case 1:
			v, err = d.Uvarint()
			p.Type = PacketType(v)
		case 2:
			v, err = d.Uvarint()
			p.ChannelID = uint32(v)
		case 3:
			p.ServiceID, err = d.Fixed32()
		case 4:
			p.MethodID, err = d.Fixed32()
		case 5:
			p.Payload, err = d.Bytes()
		case 6:
			v, err = d.Uvarint()
			p.Status = Status(v)
		case 7:
			v, err = d.Uvarint()
			p.CallID = uint32(v)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return errors.Annotate(err, "rpc.Packet.Unmarshal")
	}
	if p.ChannelID == 0 {
		return errors.NotValidf("rpc.Packet.Unmarshal channel=0")
	}
	return nil
}
