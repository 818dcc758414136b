package sense

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/temoto/sense/service"
)

func TestNormalizeScore(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw    uint32
		expect uint32
	}{
		{0, 0},
		{5, 0},
		{6, 1},
		{512, 50},
		{768, 75},
		{1023, 100},
		{1024, 100},
		{5000, 100},
	}
	for _, c := range cases {
		c := c
		t.Run(fmt.Sprint(c.raw), func(t *testing.T) {
			assert.Equal(t, c.expect, NormalizeScore(c.raw))
		})
	}
}

func TestNormalizeDescription(t *testing.T) {
	t.Parallel()

	cases := []struct{ input, expect string }{
		{"SUPERB", "superb"},
		{"VERY GOOD", "very good"},
		{" okay ", "okay"},
		{"terrible", "terrible"},
		{"INVALID", "invalid"},
		{"", "invalid"},
		{"fantastic", "invalid"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.input, func(t *testing.T) {
			assert.Equal(t, c.expect, NormalizeDescription(c.input))
		})
	}
}

func TestReadings(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	alarm := AlarmFromState(service.State{AlarmActive: true, AlarmThreshold: 300, AqDescription: "BAD"})
	r := FullReading(now, service.Measurement{Temperature: 24.5, Humidity: 55, Score: 256, Pressure: 1000}, alarm)
	assert.Equal(t, Reading{
		Time:        now,
		Temperature: 24.5,
		Score:       25,
		Humidity:    55,
		Alarm:       AlarmState{Active: true, Threshold: 300, Description: "bad"},
	}, r)

	b := BasicReading(now, 19)
	assert.Equal(t, float32(19), b.Temperature)
	assert.Equal(t, uint32(0), b.Score)
	assert.Equal(t, float32(0), b.Humidity)
	assert.Equal(t, AlarmState{Description: DescriptionInvalid}, b.Alarm)
}

func TestMemStore(t *testing.T) {
	t.Parallel()

	s := NewMemStore(3)
	assert.Equal(t, DescriptionInvalid, s.Current().Alarm.Description)
	assert.Len(t, s.History(), 0)

	other := NewMemStore(10)
	ms := MultiStore{s, other}
	ms.SetConnected(true)
	ms.SetBasicMode(true)
	for i := 1; i <= 5; i++ {
		ms.AddReading(BasicReading(time.Time{}, float32(i)))
	}
	assert.True(t, s.Connected())
	assert.True(t, other.BasicMode())
	assert.Equal(t, float32(5), s.Current().Temperature)
	h := s.History()
	if assert.Len(t, h, 3) {
		assert.Equal(t, float32(3), h[0].Temperature)
		assert.Equal(t, float32(5), h[2].Temperature)
	}
	assert.Len(t, other.History(), 5)
}
