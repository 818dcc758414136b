package service

import (
	"context"

	"github.com/temoto/sense/rpc"
)

// Device rejects sample interval below this with INVALID_ARGUMENT.
const MinMeasureIntervalMs = 500

type MeasurementHandler struct {
	OnNext  func(Measurement)
	OnError func(error)
}

type AirSensor struct {
	client        *rpc.Client
	measure       *rpc.MethodStub
	measureStream *rpc.MethodStub
	logMetrics    *rpc.MethodStub
}

func NewAirSensor(c *rpc.Client) *AirSensor {
	return &AirSensor{
		client:        c,
		measure:       c.Method(AirSensorMeasure),
		measureStream: c.Method(AirSensorMeasureStream),
		logMetrics:    c.Method(AirSensorLogMetrics),
	}
}

func (s *AirSensor) Measure(ctx context.Context) (Measurement, error) {
	var m Measurement
	err := s.measure.Call(ctx, Empty{}, &m)
	return m, err
}

func (s *AirSensor) LogMetrics(ctx context.Context) error {
	return s.logMetrics.Call(ctx, Empty{}, nil)
}

// MeasureStream runs until cancelled or device error.
// Undecodable chunks are logged and skipped.
func (s *AirSensor) MeasureStream(intervalMs uint32, h MeasurementHandler) (*rpc.Call, error) {
	return s.measureStream.Invoke(&SampleRequest{SampleIntervalMs: intervalMs}, rpc.StreamHandler{
		OnNext: func(b []byte) {
			var m Measurement
			if err := m.Unmarshal(b); err != nil {
				s.client.Log.Errorf("%s skip chunk err=%v", AirSensorMeasureStream, err)
				return
			}
			if h.OnNext != nil {
				h.OnNext(m)
			}
		},
		OnError: h.OnError,
	})
}
