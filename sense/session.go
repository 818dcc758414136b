// Package sense connects to the board, probes its capabilities and turns
// sensor streams into plain readings for a Store.
package sense

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"golang.org/x/time/rate"

	"github.com/temoto/sense/hdlc"
	"github.com/temoto/sense/log2"
	"github.com/temoto/sense/rpc"
	"github.com/temoto/sense/service"
	"github.com/temoto/sense/transport"
)

type State uint32

const (
	StateDisconnected State = iota
	StateConnecting
	StateProbing
	StateStreamingFull
	StateStreamingBasic
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateProbing:
		return "probing"
	case StateStreamingFull:
		return "streaming-full"
	case StateStreamingBasic:
		return "streaming-basic"
	}
	return fmt.Sprintf("State(%d)", uint32(s))
}

const (
	DefaultProbeTimeout     = 5 * time.Second
	DefaultStatePoll        = 5 * time.Second
	DefaultSampleIntervalMs = 1000
	DefaultBasicIntervalMs  = 1000

	sampleQueue      = 64
	stateCallTimeout = 3 * time.Second
	readBufSize      = 512
)

type Options struct {
	Log       *log2.Log
	Transport transport.Transport
	// nil = discard
	Store Store

	Address    uint64 // default rpc.DefaultAddress
	ChannelID  uint32 // default rpc.DefaultChannelID
	MaxPayload int    // default hdlc.DefaultMaxPayload

	ProbeTimeout     time.Duration
	SampleIntervalMs uint32
	BasicIntervalMs  uint32
	// GetState is called at most once per StatePoll
	StatePoll time.Duration

	// OnError receives stream failure after successful probe, at most once per connection.
	OnError func(error)
}

// Session owns transport, decoder and RPC client.
// Client and Channel persist across reconnects.
type Session struct {
	Log *log2.Log

	opt    Options
	store  Store
	client *rpc.Client
	dec    *hdlc.Decoder

	air    *service.AirSensor
	board  *service.Board
	states *service.StateManager
	blinky *service.Blinky

	mu      sync.Mutex // serializes Connect, Disconnect
	storeMu sync.Mutex // orders connected flag updates with connection end
	state   uint32
	conn    atomic.Pointer[conn]
	// cancels Connect in progress, so Disconnect does not wait for probe
	abortConnect atomic.Pointer[context.CancelFunc]
}

// conn is one transport lifetime.
type conn struct {
	alive   *alive.Alive
	ctx     context.Context
	cancel  context.CancelFunc
	samples chan sample
	done    chan struct{}
	once    sync.Once

	streamErr sync.Once
	stream    atomic.Pointer[rpc.Call]

	// worker only
	limiter *rate.Limiter
	alarm   AlarmState
}

type sample struct {
	t     time.Time
	basic bool
	m     service.Measurement
	temp  float32
}

func NewSession(opt Options) *Session {
	if opt.Log == nil {
		opt.Log = log2.NewStderr(log2.LInfo)
	}
	if opt.Transport == nil {
		panic("code error sense.NewSession Transport=nil")
	}
	if opt.Address == 0 {
		opt.Address = rpc.DefaultAddress
	}
	if opt.ChannelID == 0 {
		opt.ChannelID = rpc.DefaultChannelID
	}
	if opt.MaxPayload <= 0 {
		opt.MaxPayload = hdlc.DefaultMaxPayload
	}
	if opt.ProbeTimeout <= 0 {
		opt.ProbeTimeout = DefaultProbeTimeout
	}
	if opt.SampleIntervalMs == 0 {
		opt.SampleIntervalMs = DefaultSampleIntervalMs
	}
	if opt.BasicIntervalMs == 0 {
		opt.BasicIntervalMs = DefaultBasicIntervalMs
	}
	if opt.StatePoll <= 0 {
		opt.StatePoll = DefaultStatePoll
	}

	s := &Session{
		Log:   opt.Log,
		opt:   opt,
		store: opt.Store,
		dec:   hdlc.NewDecoder(opt.MaxPayload),
	}
	if s.store == nil {
		s.store = nopStore{}
	}
	s.dec.OnDrop = func(err error) { s.Log.Debugf("session frame drop err=%v", err) }
	ch := rpc.NewChannel(opt.ChannelID, opt.Address, hdlc.Encoder{MaxPayload: opt.MaxPayload}, opt.Transport)
	s.client = rpc.NewClient(ch, rpc.ClientOptions{Log: opt.Log.Named("rpc")})
	service.Register(s.client)
	s.air = service.NewAirSensor(s.client)
	s.board = service.NewBoard(s.client)
	s.states = service.NewStateManager(s.client)
	s.blinky = service.NewBlinky(s.client)
	return s
}

func (s *Session) Client() *rpc.Client                 { return s.client }
func (s *Session) Decoder() *hdlc.Decoder              { return s.dec }
func (s *Session) Transport() transport.Transport      { return s.opt.Transport }
func (s *Session) AirSensor() *service.AirSensor       { return s.air }
func (s *Session) Board() *service.Board               { return s.board }
func (s *Session) StateManager() *service.StateManager { return s.states }
func (s *Session) Blinky() *service.Blinky             { return s.blinky }

func (s *Session) State() State { return State(atomic.LoadUint32(&s.state)) }
func (s *Session) setState(st State) {
	old := State(atomic.SwapUint32(&s.state, uint32(st)))
	if old != st {
		s.Log.Debugf("session state %s -> %s", old, st)
	}
}

func (s *Session) Connected() bool {
	st := s.State()
	return st == StateStreamingFull || st == StateStreamingBasic
}

func (s *Session) BasicMode() bool { return s.State() == StateStreamingBasic }

var closedChan = func() chan struct{} { ch := make(chan struct{}); close(ch); return ch }()

// Done is closed when current connection ends by Disconnect or transport loss.
func (s *Session) Done() <-chan struct{} {
	if c := s.conn.Load(); c != nil {
		return c.done
	}
	return closedChan
}

// Connect opens transport and probes device capabilities.
// Full telemetry is preferred, NOT_FOUND from device switches to basic mode,
// any other probe failure leaves session disconnected.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.State(); st != StateDisconnected {
		return errors.AlreadyExistsf("session state=%s", st)
	}
	ctx, abort := context.WithCancel(ctx)
	defer abort()
	s.abortConnect.Store(&abort)
	defer s.abortConnect.Store(nil)
	if old := s.conn.Load(); old != nil {
		// previous reader must be gone before decoder reset
		old.alive.Wait()
	}

	s.setState(StateConnecting)
	if err := s.opt.Transport.Open(ctx); err != nil {
		s.setState(StateDisconnected)
		return errors.Annotatef(err, "session open %s", s.opt.Transport)
	}
	s.dec.Reset()

	c := &conn{
		alive:   alive.NewAlive(),
		samples: make(chan sample, sampleQueue),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Every(s.opt.StatePoll), 1),
		alarm:   InvalidAlarm(),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	s.conn.Store(c)
	c.alive.Add(1)
	go s.readLoop(c)

	s.setState(StateProbing)
	basic, err := s.probe(ctx, c)
	if err != nil {
		s.closeConn(c, context.Canceled)
		c.alive.Wait()
		return errors.Annotate(err, "session probe")
	}

	next := StateStreamingFull
	if basic {
		next = StateStreamingBasic
	}
	s.storeMu.Lock()
	live := atomic.CompareAndSwapUint32(&s.state, uint32(StateProbing), uint32(next))
	if live {
		s.store.SetBasicMode(basic)
		s.store.SetConnected(true)
	}
	s.storeMu.Unlock()
	if !live {
		c.alive.Wait()
		return errors.Annotate(rpc.ErrTransportClosed, "session probe")
	}
	s.Log.Infof("session connected transport=%s basic=%t", s.opt.Transport, basic)
	if c.alive.Add(1) {
		go s.worker(c)
	}
	return nil
}

func (s *Session) probe(ctx context.Context, c *conn) (basic bool, err error) {
	firstEvent := make(chan error, 1)
	var firstOnce sync.Once
	// reports whether err was the first event
	signal := func(err error) (ok bool) {
		firstOnce.Do(func() { firstEvent <- err; ok = true })
		return
	}

	call, err := s.air.MeasureStream(s.opt.SampleIntervalMs, service.MeasurementHandler{
		OnNext: func(m service.Measurement) {
			signal(nil)
			s.push(c, sample{t: time.Now(), m: m})
		},
		OnError: func(err error) {
			if !signal(err) {
				s.streamFailed(c, err)
			}
		},
	})
	if err != nil {
		return false, err
	}
	c.stream.Store(call)

	timer := time.NewTimer(s.opt.ProbeTimeout)
	defer timer.Stop()
	select {
	case err = <-firstEvent:
	case <-timer.C:
		err = errors.Timeoutf("%s first event after %s", service.AirSensorMeasureStream, s.opt.ProbeTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	case <-c.done:
		err = rpc.ErrTransportClosed
	}
	if err == nil {
		return false, nil
	}
	_ = call.Cancel()
	if !rpc.IsNotFound(err) {
		return false, err
	}

	s.Log.Infof("session %s not supported, basic mode", service.AirSensorMeasureStream)
	call, err = s.board.OnboardTempStream(s.opt.BasicIntervalMs, service.TempHandler{
		OnNext: func(celsius float32) {
			s.push(c, sample{t: time.Now(), basic: true, temp: celsius})
		},
		OnError: func(err error) { s.streamFailed(c, err) },
	})
	if err != nil {
		return true, errors.Annotate(err, "basic stream")
	}
	c.stream.Store(call)
	return true, nil
}

// push runs on reader goroutine and must not block.
func (s *Session) push(c *conn, x sample) {
	select {
	case c.samples <- x:
	default:
		s.Log.Errorf("session sample queue full, dropped")
	}
}

func (s *Session) streamFailed(c *conn, err error) {
	switch rpc.KindOf(err) {
	case rpc.KindCancelled, rpc.KindTransportClosed:
		return
	}
	c.streamErr.Do(func() {
		s.Log.Errorf("session stream err=%v", err)
		if s.opt.OnError != nil {
			s.opt.OnError(err)
		}
	})
}

func (s *Session) readLoop(c *conn) {
	defer c.alive.Done()
	buf := make([]byte, readBufSize)
	for {
		n, err := s.opt.Transport.Read(buf)
		if n > 0 {
			for _, f := range s.dec.Feed(buf[:n]) {
				if !s.client.ProcessFrame(f) {
					s.Log.Debugf("session skip %s", f)
				}
			}
		}
		if err != nil {
			if c.alive.IsRunning() {
				s.Log.Errorf("session transport=%s read err=%v", s.opt.Transport, err)
			}
			s.closeConn(c, rpc.ErrTransportClosed)
			return
		}
	}
}

func (s *Session) worker(c *conn) {
	defer c.alive.Done()
	stopch := c.alive.StopChan()
	for {
		select {
		case x := <-c.samples:
			var r Reading
			if x.basic {
				r = BasicReading(x.t, x.temp)
			} else {
				r = FullReading(x.t, x.m, s.alarmState(c))
			}
			s.store.AddReading(r)
		case <-stopch:
			return
		}
	}
}

func (s *Session) alarmState(c *conn) AlarmState {
	if !c.limiter.Allow() {
		return c.alarm
	}
	ctx, cancel := context.WithTimeout(c.ctx, stateCallTimeout)
	defer cancel()
	st, err := s.states.GetState(ctx)
	if err != nil {
		s.Log.Errorf("session %s err=%v", service.StateManagerGetState, err)
		c.alarm = InvalidAlarm()
	} else {
		c.alarm = AlarmFromState(st)
	}
	return c.alarm
}

func (s *Session) closeConn(c *conn, cause error) {
	c.once.Do(func() {
		c.alive.Stop()
		c.cancel()
		if err := s.opt.Transport.Close(); err != nil {
			s.Log.Debugf("session transport close err=%v", err)
		}
		s.client.AbortAll(cause)
		s.storeMu.Lock()
		s.setState(StateDisconnected)
		s.store.SetConnected(false)
		s.store.SetBasicMode(false)
		close(c.done)
		s.storeMu.Unlock()
	})
}

// Disconnect cancels streams, closes transport and fails pending calls.
// Connect in progress is aborted and returns error.
func (s *Session) Disconnect(ctx context.Context) error {
	if abort := s.abortConnect.Load(); abort != nil {
		(*abort)()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.conn.Load()
	if c == nil {
		return nil
	}
	if call := c.stream.Load(); call != nil {
		if err := call.Cancel(); err != nil {
			s.Log.Debugf("session cancel %s err=%v", call, err)
		}
	}
	s.closeConn(c, context.Canceled)
	select {
	case <-c.alive.WaitChan():
		return nil
	case <-ctx.Done():
		return errors.Annotate(ctx.Err(), "session disconnect wait")
	}
}

// InvokeUnary calls method by names with raw payload.
func (s *Session) InvokeUnary(ctx context.Context, serviceName, methodName string, req []byte) (rpc.Status, []byte, error) {
	if !s.Connected() {
		return rpc.StatusUnavailable, nil, rpc.ErrTransportClosed
	}
	stub, err := s.client.Stub(serviceName, methodName)
	if err != nil {
		return rpc.StatusNotFound, nil, err
	}
	return stub.CallRaw(ctx, req)
}

// InvokeStream starts raw server stream by names.
func (s *Session) InvokeStream(serviceName, methodName string, req []byte, h rpc.StreamHandler) (*rpc.Call, error) {
	if !s.Connected() {
		return nil, rpc.ErrTransportClosed
	}
	stub, err := s.client.Stub(serviceName, methodName)
	if err != nil {
		return nil, err
	}
	return stub.InvokeRaw(req, h)
}
