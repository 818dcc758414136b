package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/sense/internal/devicemock"
	"github.com/temoto/sense/log2"
	"github.com/temoto/sense/sense"
	"github.com/temoto/sense/service"
	"github.com/temoto/sense/transport"
)

func TestCollector(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log := log2.NewTest(t, log2.LDebug)

	dev := devicemock.NewSense(log, false)
	host, devEnd := transport.NewPipe()
	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = dev.Serve(context.Background(), devEnd)
	}()
	store := sense.NewMemStore(0)
	pub := &fakePublisher{}
	ms := NewMQTTStoreWith(log, "", pub, nil)
	s := sense.NewSession(sense.Options{
		Log:              log,
		Transport:        host,
		Store:            sense.MultiStore{store, ms},
		SampleIntervalMs: service.MinMeasureIntervalMs,
	})
	defer func() {
		_ = s.Disconnect(context.Background())
		<-served
	}()

	c := NewCollector(s, store, &ms.Stat)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	// no reading yet
	n, err := testutil.GatherAndCount(reg, "sense_temperature_celsius")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, s.Connect(ctx))
	require.Eventually(t, func() bool { return !store.Current().Time.IsZero() }, 3*time.Second, 5*time.Millisecond)

	expect := `
# HELP sense_session_connected 1 when device stream is active.
# TYPE sense_session_connected gauge
sense_session_connected 1
# HELP sense_session_basic_mode 1 when device lacks air sensor.
# TYPE sense_session_basic_mode gauge
sense_session_basic_mode 0
# HELP sense_temperature_celsius Last temperature reading.
# TYPE sense_temperature_celsius gauge
sense_temperature_celsius 21.5
# HELP sense_air_quality_score Last air quality score, percent.
# TYPE sense_air_quality_score gauge
sense_air_quality_score 75
# HELP sense_link_opens_total Successful transport opens.
# TYPE sense_link_opens_total counter
sense_link_opens_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expect),
		"sense_session_connected", "sense_session_basic_mode", "sense_temperature_celsius",
		"sense_air_quality_score", "sense_link_opens_total"))

	n, err = testutil.GatherAndCount(reg, "sense_hdlc_dropped_total", "sense_rpc_packets_total", "sense_mqtt_published_total")
	require.NoError(t, err)
	assert.Equal(t, 4+2+1, n)
	assert.Greater(t, s.Decoder().Stat.Frames.Value(), int64(0))
}
