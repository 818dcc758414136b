package telemetry

import (
	"expvar"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/temoto/sense/sense"
	"github.com/temoto/sense/transport"
)

const namespace = "sense"

// Collector reads codec, RPC, transport and session counters at scrape time.
type Collector struct {
	sess  *sense.Session
	store *sense.MemStore
	mqtt  *MQTTStat

	hdlcBytes   *prometheus.Desc
	hdlcFrames  *prometheus.Desc
	hdlcDropped *prometheus.Desc

	rpcPackets   *prometheus.Desc
	rpcUnmatched *prometheus.Desc
	rpcCorrupt   *prometheus.Desc
	rpcRemote    *prometheus.Desc
	rpcCancelled *prometheus.Desc
	rpcPending   *prometheus.Desc

	linkBytes *prometheus.Desc
	linkOpens *prometheus.Desc

	state     *prometheus.Desc
	connected *prometheus.Desc
	basicMode *prometheus.Desc

	temperature *prometheus.Desc
	humidity    *prometheus.Desc
	score       *prometheus.Desc
	alarm       *prometheus.Desc
	threshold   *prometheus.Desc

	mqttPublished *prometheus.Desc
	mqttErrors    *prometheus.Desc
	mqttCommands  *prometheus.Desc
}

var _ prometheus.Collector = &Collector{}

func desc(subsystem, name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
}

// NewCollector store and mqtt may be nil.
func NewCollector(s *sense.Session, store *sense.MemStore, mqtt *MQTTStat) *Collector {
	return &Collector{
		sess:  s,
		store: store,
		mqtt:  mqtt,

		hdlcBytes:   desc("hdlc", "bytes_total", "Bytes fed to frame decoder."),
		hdlcFrames:  desc("hdlc", "frames_total", "Valid frames decoded."),
		hdlcDropped: desc("hdlc", "dropped_total", "Frames dropped by decoder.", "reason"),

		rpcPackets:   desc("rpc", "packets_total", "RPC packets.", "direction"),
		rpcUnmatched: desc("rpc", "unmatched_total", "Inbound packets without pending call."),
		rpcCorrupt:   desc("rpc", "corrupt_total", "Undecodable inbound packets."),
		rpcRemote:    desc("rpc", "remote_errors_total", "Calls failed by device error status."),
		rpcCancelled: desc("rpc", "cancelled_total", "Calls cancelled locally."),
		rpcPending:   desc("rpc", "pending_calls", "Calls waiting for device."),

		linkBytes: desc("link", "bytes_total", "Transport bytes.", "direction"),
		linkOpens: desc("link", "opens_total", "Successful transport opens."),

		state:     desc("session", "state", "Session state, 0=disconnected 1=connecting 2=probing 3=full 4=basic."),
		connected: desc("session", "connected", "1 when device stream is active."),
		basicMode: desc("session", "basic_mode", "1 when device lacks air sensor."),

		temperature: desc("", "temperature_celsius", "Last temperature reading."),
		humidity:    desc("", "humidity_percent", "Last relative humidity reading."),
		score:       desc("", "air_quality_score", "Last air quality score, percent."),
		alarm:       desc("", "alarm_active", "1 when air quality alarm is active."),
		threshold:   desc("", "alarm_threshold", "Air quality alarm threshold."),

		mqttPublished: desc("mqtt", "published_total", "MQTT messages published."),
		mqttErrors:    desc("mqtt", "errors_total", "MQTT publish failures."),
		mqttCommands:  desc("mqtt", "commands_total", "MQTT commands received."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.hdlcBytes, c.hdlcFrames, c.hdlcDropped,
		c.rpcPackets, c.rpcUnmatched, c.rpcCorrupt, c.rpcRemote, c.rpcCancelled, c.rpcPending,
		c.linkBytes, c.linkOpens,
		c.state, c.connected, c.basicMode,
		c.temperature, c.humidity, c.score, c.alarm, c.threshold,
		c.mqttPublished, c.mqttErrors, c.mqttCommands,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counter := func(d *prometheus.Desc, v *expvar.Int, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v.Value()), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	hs := &c.sess.Decoder().Stat
	counter(c.hdlcBytes, &hs.Bytes)
	counter(c.hdlcFrames, &hs.Frames)
	counter(c.hdlcDropped, &hs.Corrupt, "crc")
	counter(c.hdlcDropped, &hs.Escape, "escape")
	counter(c.hdlcDropped, &hs.Oversize, "oversize")
	counter(c.hdlcDropped, &hs.Malformed, "malformed")

	client := c.sess.Client()
	rs := &client.Stat
	counter(c.rpcPackets, &rs.Sent, "out")
	counter(c.rpcPackets, &rs.Received, "in")
	counter(c.rpcUnmatched, &rs.Unmatched)
	counter(c.rpcCorrupt, &rs.Corrupt)
	counter(c.rpcRemote, &rs.Remote)
	counter(c.rpcCancelled, &rs.Cancelled)
	gauge(c.rpcPending, float64(client.Pending()))

	if st, ok := c.sess.Transport().(transport.Stater); ok {
		ts := st.TransportStat()
		counter(c.linkBytes, &ts.Recv, "in")
		counter(c.linkBytes, &ts.Sent, "out")
		counter(c.linkOpens, &ts.Opens)
	}

	gauge(c.state, float64(c.sess.State()))
	gauge(c.connected, bool01(c.sess.Connected()))
	gauge(c.basicMode, bool01(c.sess.BasicMode()))

	if c.store != nil {
		if r := c.store.Current(); !r.Time.IsZero() {
			gauge(c.temperature, float64(r.Temperature))
			gauge(c.humidity, float64(r.Humidity))
			gauge(c.score, float64(r.Score))
			gauge(c.alarm, bool01(r.Alarm.Active))
			gauge(c.threshold, float64(r.Alarm.Threshold))
		}
	}

	if c.mqtt != nil {
		counter(c.mqttPublished, &c.mqtt.Published)
		counter(c.mqttErrors, &c.mqtt.Errors)
		counter(c.mqttCommands, &c.mqtt.Commands)
	}
}

func bool01(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
