package service

import (
	"context"

	"github.com/temoto/sense/rpc"
)

const MinOnboardTempIntervalMs = 100

type TempHandler struct {
	OnNext  func(celsius float32)
	OnError func(error)
}

type Board struct {
	client     *rpc.Client
	reboot     *rpc.MethodStub
	temp       *rpc.MethodStub
	tempStream *rpc.MethodStub
}

func NewBoard(c *rpc.Client) *Board {
	return &Board{
		client:     c,
		reboot:     c.Method(BoardReboot),
		temp:       c.Method(BoardOnboardTemp),
		tempStream: c.Method(BoardOnboardTempStream),
	}
}

func (b *Board) OnboardTemp(ctx context.Context) (float32, error) {
	var r OnboardTempResponse
	err := b.temp.Call(ctx, Empty{}, &r)
	return r.Temp, err
}

// Reboot response may never arrive, use short ctx deadline.
func (b *Board) Reboot(ctx context.Context) error {
	return b.reboot.Call(ctx, Empty{}, nil)
}

func (b *Board) OnboardTempStream(intervalMs uint32, h TempHandler) (*rpc.Call, error) {
	return b.tempStream.Invoke(&SampleRequest{SampleIntervalMs: intervalMs}, rpc.StreamHandler{
		OnNext: func(p []byte) {
			var r OnboardTempResponse
			if err := r.Unmarshal(p); err != nil {
				b.client.Log.Errorf("%s skip chunk err=%v", BoardOnboardTempStream, err)
				return
			}
			if h.OnNext != nil {
				h.OnNext(r.Temp)
			}
		},
		OnError: h.OnError,
	})
}
