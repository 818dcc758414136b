package devicemock

import (
	"context"

	"github.com/temoto/sense/hdlc"
	"github.com/temoto/sense/log2"
	"github.com/temoto/sense/rpc"
	"github.com/temoto/sense/transport"
)

// Link serves device on in-memory pipe and returns client connected to it.
// stop closes the link and waits for both sides.
func (d *Device) Link(log *log2.Log) (client *rpc.Client, stop func()) {
	host, dev := transport.NewPipe()
	ch := rpc.NewChannel(rpc.DefaultChannelID, d.Address, hdlc.Encoder{}, host)
	client = rpc.NewClient(ch, rpc.ClientOptions{Log: log})

	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = d.Serve(context.Background(), dev)
	}()
	read := make(chan struct{})
	go func() {
		defer close(read)
		dec := hdlc.NewDecoder(0)
		buf := make([]byte, 256)
		for {
			n, err := host.Read(buf)
			for _, f := range dec.Feed(buf[:n]) {
				client.ProcessFrame(f)
			}
			if err != nil {
				client.AbortAll(rpc.ErrTransportClosed)
				return
			}
		}
	}()
	return client, func() {
		_ = host.Close()
		<-served
		<-read
	}
}
