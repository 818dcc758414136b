package service

import (
	"context"

	"github.com/temoto/sense/rpc"
)

const DefaultBlinkIntervalMs = 300

type Blinky struct {
	blink  *rpc.MethodStub
	toggle *rpc.MethodStub
	isIdle *rpc.MethodStub
}

func NewBlinky(c *rpc.Client) *Blinky {
	return &Blinky{
		blink:  c.Method(BlinkyBlink),
		toggle: c.Method(BlinkyToggleLed),
		isIdle: c.Method(BlinkyIsIdle),
	}
}

// Blink count=0 means forever.
func (b *Blinky) Blink(ctx context.Context, count uint32, intervalMs uint32) error {
	if intervalMs == 0 {
		intervalMs = DefaultBlinkIntervalMs
	}
	req := &BlinkRequest{IntervalMs: intervalMs, BlinkCount: count, HasBlinkCount: count != 0}
	return b.blink.Call(ctx, req, nil)
}

func (b *Blinky) ToggleLed(ctx context.Context) error {
	return b.toggle.Call(ctx, Empty{}, nil)
}

func (b *Blinky) IsIdle(ctx context.Context) (bool, error) {
	var r IsIdleResponse
	err := b.isIdle.Call(ctx, Empty{}, &r)
	return r.IsIdle, err
}
