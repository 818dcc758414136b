// Package service has typed messages and clients of the Sense device services.
package service

import "github.com/temoto/sense/rpc"

var (
	AirSensorMeasure       = rpc.NewMethod("air_sensor.AirSensor.Measure", rpc.Unary)
	AirSensorMeasureStream = rpc.NewMethod("air_sensor.AirSensor.MeasureStream", rpc.ServerStreaming)
	AirSensorLogMetrics    = rpc.NewMethod("air_sensor.AirSensor.LogMetrics", rpc.Unary)

	BoardReboot            = rpc.NewMethod("board.Board.Reboot", rpc.Unary)
	BoardOnboardTemp       = rpc.NewMethod("board.Board.OnboardTemp", rpc.Unary)
	BoardOnboardTempStream = rpc.NewMethod("board.Board.OnboardTempStream", rpc.ServerStreaming)

	StateManagerGetState        = rpc.NewMethod("state_manager.StateManager.GetState", rpc.Unary)
	StateManagerSilenceAlarm    = rpc.NewMethod("state_manager.StateManager.SilenceAlarm", rpc.Unary)
	StateManagerChangeThreshold = rpc.NewMethod("state_manager.StateManager.ChangeThreshold", rpc.Unary)

	BlinkyBlink     = rpc.NewMethod("blinky.Blinky.Blink", rpc.Unary)
	BlinkyToggleLed = rpc.NewMethod("blinky.Blinky.ToggleLed", rpc.Unary)
	BlinkyIsIdle    = rpc.NewMethod("blinky.Blinky.IsIdle", rpc.Unary)
)

func Methods() []rpc.Method {
	return []rpc.Method{
		AirSensorMeasure, AirSensorMeasureStream, AirSensorLogMetrics,
		BoardReboot, BoardOnboardTemp, BoardOnboardTempStream,
		StateManagerGetState, StateManagerSilenceAlarm, StateManagerChangeThreshold,
		BlinkyBlink, BlinkyToggleLed, BlinkyIsIdle,
	}
}

// Register makes all methods available by name, e.g. for console.
func Register(c *rpc.Client) { c.Register(Methods()...) }
