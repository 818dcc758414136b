package rpc

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/sense/hdlc"
)

func TestUnaryConcurrentReverse(t *testing.T) {
	t.Parallel()
	c, sink := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const N = 16
	type result struct {
		in, out byte
		err     error
	}
	results := make(chan result, N)
	for i := 0; i < N; i++ {
		go func(x byte) {
			status, b, err := c.Unary(ctx, testUnary, []byte{x})
			if err == nil && status != StatusOK {
				err = errors.Errorf("status=%s", status)
			}
			r := result{in: x, err: err}
			if len(b) == 2 {
				r.out = b[0]
			}
			results <- r
		}(byte(i))
	}

	reqs := make([]Packet, N)
	ids := make(map[uint32]bool)
	for i := range reqs {
		reqs[i] = sink.next(t)
		assert.Equal(t, PacketRequest, reqs[i].Type)
		assert.False(t, ids[reqs[i].CallID], "duplicate call id")
		ids[reqs[i].CallID] = true
	}
	require.Equal(t, N, c.Pending())
	for i := N - 1; i >= 0; i-- {
		reply(t, c, reqs[i], PacketResponse, StatusOK, []byte{reqs[i].Payload[0], 0xaa})
	}
	for i := 0; i < N; i++ {
		r := <-results
		require.NoError(t, r.err)
		assert.Equal(t, r.in, r.out)
	}
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, int64(N), c.Stat.Sent.Value())
}

func TestStreamCancel(t *testing.T) {
	t.Parallel()
	c, sink := newTestClient(t)
	var mu sync.Mutex
	var chunks [][]byte
	call, err := c.Invoke(testStream, nil, StreamHandler{
		OnNext: func(b []byte) {
			mu.Lock()
			chunks = append(chunks, b)
			mu.Unlock()
		},
		OnError: func(err error) { t.Errorf("unexpected OnError %v", err) },
	})
	require.NoError(t, err)
	req := sink.next(t)
	assert.Equal(t, CallActive, call.State())

	reply(t, c, req, PacketServerStream, StatusOK, []byte{1})
	reply(t, c, req, PacketServerStream, StatusOK, []byte{2})
	require.NoError(t, call.Cancel())
	assert.Equal(t, CallCancelled, call.State())
	cancelPacket := sink.next(t)
	assert.Equal(t, PacketClientError, cancelPacket.Type)
	assert.Equal(t, StatusCancelled, cancelPacket.Status)
	assert.Equal(t, req.CallID, cancelPacket.CallID)

	reply(t, c, req, PacketServerStream, StatusOK, []byte{3})
	mu.Lock()
	assert.Equal(t, [][]byte{{1}, {2}}, chunks)
	mu.Unlock()
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, int64(1), c.Stat.Unmatched.Value())
	orphan := sink.next(t)
	assert.Equal(t, PacketClientError, orphan.Type)
	assert.Equal(t, StatusFailedPrecondition, orphan.Status)

	// second cancel is no-op
	require.NoError(t, call.Cancel())
	sink.empty(t)
}

func TestCancelFromCallback(t *testing.T) {
	t.Parallel()
	c, sink := newTestClient(t)
	n := 0
	var call *Call
	call, err := c.Invoke(testStream, nil, StreamHandler{
		OnNext: func([]byte) {
			n++
			_ = call.Abandon()
		},
	})
	require.NoError(t, err)
	req := sink.next(t)
	reply(t, c, req, PacketServerStream, StatusOK, []byte{1})
	reply(t, c, req, PacketServerStream, StatusOK, []byte{2})
	assert.Equal(t, 1, n)
	assert.Equal(t, CallCancelled, call.State())

	// terminal callbacks may Cancel their own call
	var failed *Call
	failed, err = c.Invoke(testStream, nil, StreamHandler{
		OnError: func(error) { _ = failed.Cancel() },
	})
	require.NoError(t, err)
	req = sink.next(t)
	reply(t, c, req, PacketServerError, StatusNotFound, nil)
	assert.Equal(t, CallFailed, failed.State())
}

func TestCancelWaitsCallback(t *testing.T) {
	t.Parallel()
	c, sink := newTestClient(t)
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	call, err := c.Invoke(testStream, nil, StreamHandler{
		OnNext: func([]byte) {
			entered <- struct{}{}
			<-release
		},
	})
	require.NoError(t, err)
	req := sink.next(t)
	chunk := replyBytes(t, req, PacketServerStream, StatusOK, []byte{1})
	go func() { _ = c.ProcessPacket(chunk) }()
	<-entered

	cancelled := make(chan error, 1)
	go func() { cancelled <- call.Cancel() }()
	select {
	case <-cancelled:
		require.FailNow(t, "Cancel returned while OnNext is running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-cancelled)
	assert.Equal(t, CallCancelled, call.State())
}

func TestCancelRacesChunk(t *testing.T) {
	t.Parallel()
	c, sink := newTestClient(t)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-sink.ch:
			case <-stop:
				return
			}
		}
	}()

	const N = 2000
	for i := 0; i < N; i++ {
		var cancelled atomic.Bool
		var late atomic.Int32
		call, err := c.Invoke(testStream, nil, StreamHandler{
			OnNext: func([]byte) {
				if cancelled.Load() {
					late.Add(1)
				}
			},
		})
		require.NoError(t, err)
		req := Packet{ChannelID: DefaultChannelID, ServiceID: testStream.ServiceID, MethodID: testStream.MethodID, CallID: call.ID()}
		chunk := replyBytes(t, req, PacketServerStream, StatusOK, []byte{byte(i)})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = c.ProcessPacket(chunk)
		}()
		go func() {
			defer wg.Done()
			_ = call.Cancel()
			cancelled.Store(true)
		}()
		wg.Wait()
		require.Zero(t, late.Load(), "OnNext after Cancel returned, iteration %d", i)
	}
	assert.Equal(t, 0, c.Pending())
}

func TestAbortAll(t *testing.T) {
	t.Parallel()
	c, sink := newTestClient(t)
	ctx := context.Background()

	errch := make(chan error, 3)
	for i := 0; i < 2; i++ {
		go func() {
			_, _, err := c.Unary(ctx, testUnary, nil)
			errch <- err
		}()
	}
	_, err := c.Invoke(testStream, nil, StreamHandler{OnError: func(err error) { errch <- err }})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		sink.next(t)
	}
	require.Equal(t, 3, c.Pending())

	assert.Equal(t, 3, c.AbortAll(ErrTransportClosed))
	for i := 0; i < 3; i++ {
		err := <-errch
		require.Error(t, err)
		assert.Equal(t, KindTransportClosed, KindOf(err))
		assert.Equal(t, StatusCancelled, StatusOf(err))
		assert.True(t, errors.Is(err, ErrTransportClosed))
	}
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, 0, c.AbortAll(ErrTransportClosed))
}

func TestUnknownCallDropped(t *testing.T) {
	t.Parallel()
	c, sink := newTestClient(t)
	req := Packet{ChannelID: DefaultChannelID, ServiceID: testUnary.ServiceID, MethodID: testUnary.MethodID, CallID: 999}
	reply(t, c, req, PacketResponse, StatusOK, []byte{1})
	reply(t, c, Packet{ChannelID: 2, CallID: 1}, PacketServerStream, StatusOK, nil)
	assert.Equal(t, int64(2), c.Stat.Unmatched.Value())
	sink.empty(t)

	err := c.ProcessPacket([]byte{0xff})
	assert.Equal(t, KindFrameCorrupt, KindOf(err))
}

func TestMethodMismatchDropped(t *testing.T) {
	t.Parallel()
	c, sink := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := c.Unary(ctx, testUnary, nil)
		done <- err
	}()
	req := sink.next(t)
	wrong := req
	wrong.MethodID++
	reply(t, c, wrong, PacketResponse, StatusOK, nil)
	assert.Equal(t, 1, c.Pending())
	cancel()
	err := <-done
	assert.Equal(t, KindCancelled, KindOf(err))
	assert.True(t, errors.Is(err, context.Canceled))
	p := sink.next(t)
	assert.Equal(t, PacketClientError, p.Type)
	assert.Equal(t, 0, c.Pending())
}

func TestServerError(t *testing.T) {
	t.Parallel()
	type Case struct {
		status   Status
		kind     ErrorKind
		notFound bool
	}
	cases := []Case{
		{StatusNotFound, KindCapabilityUnavailable, true},
		{StatusUnavailable, KindRemote, false},
		{StatusInvalidArgument, KindRemote, false},
		{StatusUnimplemented, KindRemote, false},
	}
	for _, c := range cases {
		c := c
		t.Run(c.status.String(), func(t *testing.T) {
			t.Parallel()
			client, sink := newTestClient(t)
			done := make(chan error, 1)
			go func() {
				_, _, err := client.Unary(context.Background(), testUnary, nil)
				done <- err
			}()
			reply(t, client, sink.next(t), PacketServerError, c.status, nil)
			err := <-done
			require.Error(t, err)
			assert.Equal(t, c.kind, KindOf(err))
			assert.Equal(t, c.status, StatusOf(err))
			assert.Equal(t, c.notFound, IsNotFound(err))
		})
	}
}

func TestStreamCompleted(t *testing.T) {
	t.Parallel()
	c, sink := newTestClient(t)
	var (
		got    []byte
		status = StatusUnknown
	)
	call, err := c.Invoke(testStream, nil, StreamHandler{
		OnNext:      func(b []byte) { got = append(got, b...) },
		OnCompleted: func(s Status) { status = s },
	})
	require.NoError(t, err)
	req := sink.next(t)
	reply(t, c, req, PacketServerStream, StatusOK, []byte{1})
	reply(t, c, req, PacketResponse, StatusOK, []byte{2})
	reply(t, c, req, PacketServerStream, StatusOK, []byte{3})
	assert.Equal(t, []byte{1, 2}, got)
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, CallCompleted, call.State())
	assert.Equal(t, 0, c.Pending())
}

func TestProcessFrameAddress(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)
	assert.False(t, c.ProcessFrame(hdlc.Frame{Address: 1, Payload: []byte("log")}))
	assert.True(t, c.ProcessFrame(hdlc.Frame{Address: DefaultAddress, Payload: []byte{0xff}}))
	assert.Equal(t, int64(1), c.Stat.Corrupt.Value())
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, ErrTransportClosed }

func TestSendError(t *testing.T) {
	t.Parallel()
	c := NewClient(NewChannel(1, DefaultAddress, hdlc.Encoder{}, failWriter{}), ClientOptions{})
	_, _, err := c.Unary(context.Background(), testUnary, nil)
	require.Error(t, err)
	assert.Equal(t, KindTransportClosed, KindOf(err))
	_, err = c.Invoke(testStream, nil, StreamHandler{})
	require.Error(t, err)
	assert.Equal(t, 0, c.Pending())

	_, err = c.Invoke(testStream, make([]byte, hdlc.DefaultMaxPayload+1), StreamHandler{})
	assert.Equal(t, KindFrameTooLarge, KindOf(err))
}
