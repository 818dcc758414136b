package devicemock

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/sense/log2"
	"github.com/temoto/sense/rpc"
	"github.com/temoto/sense/service"
)

func TestUnknownMethod(t *testing.T) {
	t.Parallel()
	d := New(log2.NewTest(t, log2.LDebug))
	client, stop := d.Link(log2.NewTest(t, log2.LDebug))
	defer stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m := rpc.NewMethod("test.Missing.Method", rpc.Unary)
	_, _, err := client.Unary(ctx, m, nil)
	require.Error(t, err)
	assert.True(t, rpc.IsNotFound(err))
	assert.Equal(t, 1, d.Requests(m))
}

func TestStreamCancel(t *testing.T) {
	t.Parallel()
	d := New(log2.NewTest(t, log2.LDebug))
	m := rpc.NewMethod("test.Counter.Count", rpc.ServerStreaming)
	stopped := make(chan struct{})
	d.HandleStream(m, func(ctx context.Context, req []byte, send func([]byte) error) rpc.Status {
		defer close(stopped)
		for i := byte(0); ; i++ {
			if err := send([]byte{i}); err != nil {
				return rpc.StatusCancelled
			}
			select {
			case <-ctx.Done():
				return rpc.StatusCancelled
			case <-time.After(time.Millisecond):
			}
		}
	})
	client, stop := d.Link(log2.NewTest(t, log2.LDebug))
	defer stop()

	got := make(chan byte, 1000)
	call, err := client.Invoke(m, nil, rpc.StreamHandler{OnNext: func(b []byte) { got <- b[0] }})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.Equal(t, byte(i), <-got)
	}
	require.NoError(t, call.Cancel())
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("device stream not stopped")
	}
	assert.GreaterOrEqual(t, d.Cancels(), 1)
}

func TestSenseDrift(t *testing.T) {
	t.Parallel()
	s := NewSense(log2.NewTest(t, log2.LDebug), false)
	s.SetState(service.State{AlarmThreshold: 1024})
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		s.Drift(r)
	}
	st := s.State()
	assert.True(t, st.AlarmActive)
	assert.LessOrEqual(t, st.AqScore, uint32(1023))
	assert.Contains(t, qualities, st.AqDescription)
}
