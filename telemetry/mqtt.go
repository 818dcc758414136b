// Package telemetry exports session state to MQTT and Prometheus.
package telemetry

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/sense/log2"
	"github.com/temoto/sense/sense"
)

const (
	DefaultTopicPrefix = "sense"
	defaultKeepalive   = 30 * time.Second
	minConnectRetry    = time.Second
	publishTimeout     = 10 * time.Second
)

// CommandFunc executes text command received on command topic.
type CommandFunc func(ctx context.Context, line string) (string, error)

type MQTTOptions struct {
	Log         *log2.Log
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Keepalive   time.Duration
	LogDebug    bool
	// nil = command topic not subscribed
	OnCommand CommandFunc
}

// Publisher is the part of mqtt.Client used by MQTTStore.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type MQTTStat struct {
	Published expvar.Int
	Errors    expvar.Int
	Commands  expvar.Int
}

// MQTTStore publishes session state:
//
//	<prefix>/online    "1"/"0" retained, will
//	<prefix>/connected "1"/"0" retained
//	<prefix>/basic     "1"/"0" retained
//	<prefix>/reading   JSON
//	<prefix>/command   subscribed, text command
//	<prefix>/response  command result
type MQTTStore struct {
	Stat MQTTStat

	log    *log2.Log
	pub    Publisher
	client mqtt.Client
	ctx    context.Context
	cmd    CommandFunc

	topicOnline    string
	topicConnected string
	topicBasic     string
	topicReading   string
	topicCommand   string
	topicResponse  string
}

var _ sense.Store = &MQTTStore{}

type readingJSON struct {
	Time           time.Time `json:"time"`
	Temperature    float32   `json:"temperature"`
	Score          uint32    `json:"score"`
	Humidity       float32   `json:"humidity"`
	AlarmActive    bool      `json:"alarm_active"`
	AlarmThreshold uint32    `json:"alarm_threshold"`
	Quality        string    `json:"quality"`
}

func newMQTTStore(log *log2.Log, prefix string) *MQTTStore {
	if log == nil {
		log = log2.NewStderr(log2.LInfo)
	}
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &MQTTStore{
		log:            log,
		ctx:            context.Background(),
		topicOnline:    prefix + "/online",
		topicConnected: prefix + "/connected",
		topicBasic:     prefix + "/basic",
		topicReading:   prefix + "/reading",
		topicCommand:   prefix + "/command",
		topicResponse:  prefix + "/response",
	}
}

// NewMQTTStoreWith publishes through pub, Connect and Close do nothing.
// Commands are only accepted via HandleCommand.
func NewMQTTStoreWith(log *log2.Log, prefix string, pub Publisher, cmd CommandFunc) *MQTTStore {
	s := newMQTTStore(log, prefix)
	s.pub = pub
	s.cmd = cmd
	return s
}

// NewMQTTStore creates paho client, call Connect to start.
func NewMQTTStore(opt MQTTOptions) (*MQTTStore, error) {
	if opt.BrokerURL == "" {
		return nil, errors.NotValidf("mqtt broker url empty")
	}
	s := newMQTTStore(opt.Log, opt.TopicPrefix)
	s.cmd = opt.OnCommand
	// paho loggers are global
	plog := s.log.Named("paho")
	mqtt.ERROR = plog
	mqtt.CRITICAL = plog
	mqtt.WARN = plog
	if opt.LogDebug {
		mqtt.DEBUG = plog
	}

	clientID := opt.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("sense-%d", time.Now().UnixNano()%100000)
	}
	keepalive := opt.Keepalive
	if keepalive <= 0 {
		keepalive = defaultKeepalive
	}
	mopt := mqtt.NewClientOptions().
		AddBroker(opt.BrokerURL).
		SetClientID(clientID).
		SetUsername(opt.Username).
		SetPassword(opt.Password).
		SetWill(s.topicOnline, "0", 1, true).
		SetCleanSession(true).
		SetKeepAlive(keepalive).
		SetPingTimeout(keepalive / 2).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetryInterval(keepalive)).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onConnectionLost)
	s.client = mqtt.NewClient(mopt)
	s.pub = s.client
	return s, nil
}

func connectRetryInterval(keepalive time.Duration) time.Duration {
	if d := keepalive / 2; d > minConnectRetry {
		return d
	}
	return minConnectRetry
}

// Connect waits for first broker connection, later reconnects happen in background.
func (s *MQTTStore) Connect(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	s.ctx = ctx
	return errors.Annotate(waitToken(ctx, s.client.Connect()), "mqtt connect")
}

func (s *MQTTStore) Close() {
	if s.client == nil {
		return
	}
	if t := s.client.Publish(s.topicOnline, 1, true, "0"); !t.WaitTimeout(time.Second) {
		s.log.Debugf("mqtt offline publish timeout")
	}
	s.client.Disconnect(250)
}

func (s *MQTTStore) SetConnected(v bool) { s.publish(s.topicConnected, true, flag(v)) }
func (s *MQTTStore) SetBasicMode(v bool) { s.publish(s.topicBasic, true, flag(v)) }

func (s *MQTTStore) AddReading(r sense.Reading) {
	b, err := json.Marshal(readingJSON{
		Time:           r.Time.UTC(),
		Temperature:    r.Temperature,
		Score:          r.Score,
		Humidity:       r.Humidity,
		AlarmActive:    r.Alarm.Active,
		AlarmThreshold: r.Alarm.Threshold,
		Quality:        r.Alarm.Description,
	})
	if err != nil {
		s.log.Errorf("mqtt reading marshal err=%v", err)
		return
	}
	s.publish(s.topicReading, false, b)
}

func (s *MQTTStore) publish(topic string, retained bool, payload []byte) {
	t := s.pub.Publish(topic, 1, retained, payload)
	s.Stat.Published.Add(1)
	// never block session worker on broker
	go func() {
		if !t.WaitTimeout(publishTimeout) {
			s.Stat.Errors.Add(1)
			s.log.Errorf("mqtt publish topic=%s timeout", topic)
			return
		}
		if err := t.Error(); err != nil {
			s.Stat.Errors.Add(1)
			s.log.Errorf("mqtt publish topic=%s err=%v", topic, err)
		}
	}()
}

func (s *MQTTStore) onConnect(c mqtt.Client) {
	s.log.Infof("mqtt connected")
	c.Publish(s.topicOnline, 1, true, "1")
	if s.cmd == nil {
		return
	}
	if t := c.Subscribe(s.topicCommand, 1, s.onMessage); t.Wait() && t.Error() != nil {
		s.log.Errorf("mqtt subscribe topic=%s err=%v", s.topicCommand, t.Error())
	}
}

func (s *MQTTStore) onConnectionLost(c mqtt.Client, err error) {
	s.log.Errorf("mqtt connection lost err=%v", err)
}

func (s *MQTTStore) onMessage(c mqtt.Client, msg mqtt.Message) {
	s.HandleCommand(msg.Payload())
}

// HandleCommand runs command payload and publishes "ok <result>" or "error <message>".
func (s *MQTTStore) HandleCommand(payload []byte) {
	s.Stat.Commands.Add(1)
	line := strings.TrimSpace(string(payload))
	s.log.Debugf("mqtt command=%q", line)
	if s.cmd == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, publishTimeout)
	defer cancel()
	out, err := s.cmd(ctx, line)
	resp := "ok " + out
	if err != nil {
		resp = "error " + err.Error()
	}
	s.publish(s.topicResponse, false, []byte(strings.TrimSpace(resp)))
}

func flag(v bool) []byte {
	if v {
		return []byte{'1'}
	}
	return []byte{'0'}
}

func waitToken(ctx context.Context, t mqtt.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
