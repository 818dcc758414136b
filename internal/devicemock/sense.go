package devicemock

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/temoto/sense/log2"
	"github.com/temoto/sense/rpc"
	"github.com/temoto/sense/service"
)

// Sense simulates board firmware.
// Basic firmware lacks air_sensor service, like boards without the sensor pack.
type Sense struct {
	*Device
	Basic bool

	mu          sync.Mutex
	measurement service.Measurement
	state       service.State
	boardTemp   float32
	blinks      uint32
	led         bool
}

func NewSense(log *log2.Log, basic bool) *Sense {
	s := &Sense{
		Device: New(log),
		Basic:  basic,
		measurement: service.Measurement{
			Temperature:   21.5,
			Pressure:      1013.25,
			Humidity:      40,
			GasResistance: 50000,
			Score:         768,
		},
		state: service.State{
			AlarmThreshold: 350,
			AqScore:        768,
			AqDescription:  "Good",
		},
		boardTemp: 23,
	}
	if !basic {
		s.HandleUnary(service.AirSensorMeasure, s.measure)
		s.HandleStream(service.AirSensorMeasureStream, s.measureStream)
		s.HandleUnary(service.AirSensorLogMetrics, ok)
	}
	s.HandleUnary(service.BoardOnboardTemp, s.onboardTemp)
	s.HandleStream(service.BoardOnboardTempStream, s.onboardTempStream)
	s.HandleUnary(service.BoardReboot, ok)
	s.HandleUnary(service.StateManagerGetState, s.getState)
	s.HandleUnary(service.StateManagerSilenceAlarm, s.silenceAlarm)
	s.HandleUnary(service.StateManagerChangeThreshold, s.changeThreshold)
	s.HandleUnary(service.BlinkyBlink, s.blink)
	s.HandleUnary(service.BlinkyToggleLed, s.toggleLed)
	s.HandleUnary(service.BlinkyIsIdle, marshalUnary(&service.IsIdleResponse{IsIdle: true}))
	return s
}

func (s *Sense) SetMeasurement(m service.Measurement) {
	s.mu.Lock()
	s.measurement = m
	s.mu.Unlock()
}

func (s *Sense) SetState(st service.State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Sense) SetBoardTemp(t float32) {
	s.mu.Lock()
	s.boardTemp = t
	s.mu.Unlock()
}

func (s *Sense) State() service.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sense) Blinks() (count uint32, led bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blinks, s.led
}

var qualities = []string{"Terrible", "Bad", "Mediocre", "Okay", "Good", "Very good", "Excellent", "Superb"}

// Drift random walks measurement and updates alarm like firmware does:
// alarm goes active when score falls below threshold.
func (s *Sense) Drift(r *rand.Rand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &s.measurement
	m.Temperature += float32(r.Intn(21)-10) / 100
	m.Humidity = clamp(m.Humidity+float32(r.Intn(11)-5)/10, 0, 100)
	score := int(m.Score) + r.Intn(41) - 20
	if score < 0 {
		score = 0
	} else if score > 1023 {
		score = 1023
	}
	m.Score = uint32(score)
	s.state.AqScore = m.Score
	s.state.AqDescription = qualities[m.Score*uint32(len(qualities))/1024]
	if m.Score < s.state.AlarmThreshold {
		s.state.AlarmActive = true
	}
	s.boardTemp += float32(r.Intn(11)-5) / 100
}

func clamp(x, min, max float32) float32 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}

func ok(context.Context, []byte) (rpc.Status, []byte) { return rpc.StatusOK, nil }

func marshalUnary(m rpc.Message) UnaryFunc {
	return func(context.Context, []byte) (rpc.Status, []byte) {
		b, err := m.Marshal()
		if err != nil {
			return rpc.StatusInternal, nil
		}
		return rpc.StatusOK, b
	}
}

func (s *Sense) measure(ctx context.Context, _ []byte) (rpc.Status, []byte) {
	s.mu.Lock()
	m := s.measurement
	s.mu.Unlock()
	return marshalUnary(&m)(ctx, nil)
}

func (s *Sense) measureStream(ctx context.Context, req []byte, send func([]byte) error) rpc.Status {
	var r service.SampleRequest
	if err := r.Unmarshal(req); err != nil || r.SampleIntervalMs < service.MinMeasureIntervalMs {
		return rpc.StatusInvalidArgument
	}
	return tick(ctx, r.SampleIntervalMs, func() error {
		s.mu.Lock()
		s.measurement.CollectionTimeMs += uint64(r.SampleIntervalMs)
		m := s.measurement
		s.mu.Unlock()
		b, err := m.Marshal()
		if err != nil {
			return err
		}
		return send(b)
	})
}

func (s *Sense) onboardTemp(ctx context.Context, _ []byte) (rpc.Status, []byte) {
	s.mu.Lock()
	r := service.OnboardTempResponse{Temp: s.boardTemp}
	s.mu.Unlock()
	return marshalUnary(&r)(ctx, nil)
}

func (s *Sense) onboardTempStream(ctx context.Context, req []byte, send func([]byte) error) rpc.Status {
	var r service.SampleRequest
	if err := r.Unmarshal(req); err != nil || r.SampleIntervalMs < service.MinOnboardTempIntervalMs {
		return rpc.StatusInvalidArgument
	}
	return tick(ctx, r.SampleIntervalMs, func() error {
		s.mu.Lock()
		resp := service.OnboardTempResponse{Temp: s.boardTemp}
		s.mu.Unlock()
		b, err := resp.Marshal()
		if err != nil {
			return err
		}
		return send(b)
	})
}

func (s *Sense) getState(ctx context.Context, _ []byte) (rpc.Status, []byte) {
	st := s.State()
	return marshalUnary(&st)(ctx, nil)
}

func (s *Sense) silenceAlarm(context.Context, []byte) (rpc.Status, []byte) {
	s.mu.Lock()
	s.state.AlarmActive = false
	s.mu.Unlock()
	return rpc.StatusOK, nil
}

func (s *Sense) changeThreshold(_ context.Context, req []byte) (rpc.Status, []byte) {
	var r service.ChangeThresholdRequest
	if err := r.Unmarshal(req); err != nil {
		return rpc.StatusInvalidArgument, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Increment {
		s.state.AlarmThreshold += 10
	} else if s.state.AlarmThreshold >= 10 {
		s.state.AlarmThreshold -= 10
	}
	return rpc.StatusOK, nil
}

func (s *Sense) blink(_ context.Context, req []byte) (rpc.Status, []byte) {
	var r service.BlinkRequest
	if err := r.Unmarshal(req); err != nil || r.IntervalMs == 0 {
		return rpc.StatusInvalidArgument, nil
	}
	s.mu.Lock()
	s.blinks += r.BlinkCount
	s.mu.Unlock()
	return rpc.StatusOK, nil
}

func (s *Sense) toggleLed(context.Context, []byte) (rpc.Status, []byte) {
	s.mu.Lock()
	s.led = !s.led
	s.mu.Unlock()
	return rpc.StatusOK, nil
}

func tick(ctx context.Context, intervalMs uint32, fun func() error) rpc.Status {
	t := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer t.Stop()
	for {
		if err := fun(); err != nil {
			return rpc.StatusCancelled
		}
		select {
		case <-ctx.Done():
			return rpc.StatusCancelled
		case <-t.C:
		}
	}
}
