package sense

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/sense/service"
)

type Command struct {
	Name string
	Args string
	Help string
}

// Commands lists device commands understood by Exec.
var Commands = []Command{
	{"blink", "N [interval_ms]", "blink LED N times"},
	{"toggle", "", "toggle LED"},
	{"idle", "", "is blinky idle"},
	{"temp", "", "onboard temperature"},
	{"measure", "", "single air sensor measurement"},
	{"logmetrics", "", "ask device to log sensor metrics"},
	{"state", "", "alarm state"},
	{"silence", "", "silence alarm"},
	{"threshold", "up|down", "change alarm threshold"},
	{"reboot", "", "reboot device"},
}

// Exec runs one text command against connected device and returns printable result.
// Used by interactive console and MQTT command topic.
func Exec(ctx context.Context, s *Session, line string) (string, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return "", nil
	}
	name, args := parts[0], parts[1:]
	switch name {
	case "blink":
		if len(args) < 1 || len(args) > 2 {
			return "", errors.NotValidf("usage: blink N [interval_ms]")
		}
		count, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return "", errors.NotValidf("blink count=%q", args[0])
		}
		interval := uint64(service.DefaultBlinkIntervalMs)
		if len(args) == 2 {
			if interval, err = strconv.ParseUint(args[1], 10, 32); err != nil || interval == 0 {
				return "", errors.NotValidf("blink interval=%q", args[1])
			}
		}
		return "ok", s.Blinky().Blink(ctx, uint32(count), uint32(interval))

	case "toggle":
		return "ok", s.Blinky().ToggleLed(ctx)

	case "idle":
		idle, err := s.Blinky().IsIdle(ctx)
		return fmt.Sprintf("idle=%t", idle), err

	case "temp":
		t, err := s.Board().OnboardTemp(ctx)
		return fmt.Sprintf("temperature=%.2f", t), err

	case "measure":
		m, err := s.AirSensor().Measure(ctx)
		if err != nil {
			return "", err
		}
		return FullReading(time.Now(), m, InvalidAlarm()).String(), nil

	case "logmetrics":
		return "ok", s.AirSensor().LogMetrics(ctx)

	case "state":
		st, err := s.StateManager().GetState(ctx)
		if err != nil {
			return "", err
		}
		a := AlarmFromState(st)
		return fmt.Sprintf("alarm=%t threshold=%d score=%d quality=%s",
			a.Active, a.Threshold, NormalizeScore(st.AqScore), a.Description), nil

	case "silence":
		return "ok", s.StateManager().SilenceAlarm(ctx)

	case "threshold":
		if len(args) != 1 || (args[0] != "up" && args[0] != "down") {
			return "", errors.NotValidf("usage: threshold up|down")
		}
		return "ok", s.StateManager().ChangeThreshold(ctx, args[0] == "up")

	case "reboot":
		return "ok", s.Board().Reboot(ctx)
	}
	return "", errors.NotFoundf("command %q", name)
}
