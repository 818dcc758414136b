package sense

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/temoto/sense/service"
)

// Device reports air quality score in 0..MaxRawScore.
const MaxRawScore = 1024

const DescriptionInvalid = "invalid"

// Descriptions lists air quality descriptions from best to worst.
var Descriptions = []string{
	"superb",
	"excellent",
	"very good",
	"good",
	"okay",
	"mediocre",
	"bad",
	"terrible",
	DescriptionInvalid,
}

type AlarmState struct {
	Active      bool
	Threshold   uint32
	Description string
}

func InvalidAlarm() AlarmState { return AlarmState{Description: DescriptionInvalid} }

type Reading struct {
	Time        time.Time
	Temperature float32
	// percent 0..100
	Score    uint32
	Humidity float32
	Alarm    AlarmState
}

func (r Reading) String() string {
	return fmt.Sprintf("temperature=%.2f score=%d humidity=%.1f alarm=%t threshold=%d quality=%s",
		r.Temperature, r.Score, r.Humidity, r.Alarm.Active, r.Alarm.Threshold, r.Alarm.Description)
}

// NormalizeDescription maps device text (e.g. "VERY GOOD") to one of Descriptions.
func NormalizeDescription(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, d := range Descriptions {
		if s == d {
			return d
		}
	}
	return DescriptionInvalid
}

// NormalizeScore converts raw device score to percent.
func NormalizeScore(raw uint32) uint32 {
	if raw >= MaxRawScore {
		return 100
	}
	return uint32(math.Round(float64(raw) / MaxRawScore * 100))
}

func AlarmFromState(st service.State) AlarmState {
	return AlarmState{
		Active:      st.AlarmActive,
		Threshold:   st.AlarmThreshold,
		Description: NormalizeDescription(st.AqDescription),
	}
}

func FullReading(t time.Time, m service.Measurement, alarm AlarmState) Reading {
	return Reading{
		Time:        t,
		Temperature: m.Temperature,
		Score:       NormalizeScore(m.Score),
		Humidity:    m.Humidity,
		Alarm:       alarm,
	}
}

// BasicReading has only temperature, other fields are defaults.
func BasicReading(t time.Time, celsius float32) Reading {
	return Reading{
		Time:        t,
		Temperature: celsius,
		Alarm:       InvalidAlarm(),
	}
}
