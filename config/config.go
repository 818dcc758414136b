// Package config reads HCL configuration with include chain.
package config

import (
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/sense/helpers"
	"github.com/temoto/sense/log2"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []Source `hcl:"include"`

	Link    LinkConfig    `hcl:"link"`
	RPC     RPCConfig     `hcl:"rpc"`
	Session SessionConfig `hcl:"session"`
	Mqtt    MqttConfig    `hcl:"mqtt"`
	Metrics struct {
		Listen string `hcl:"listen"`
	} `hcl:"metrics"`
	Log struct {
		Debug bool `hcl:"debug"`
	} `hcl:"log"`
}

type Source struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

type LinkConfig struct {
	Kind          string `hcl:"kind"` // serial|socket
	Path          string `hcl:"path"`
	Baud          int    `hcl:"baud"`
	Address       string `hcl:"address"`
	DialTimeoutMs int    `hcl:"dial_timeout_ms"`
}

type RPCConfig struct {
	Address    uint64 `hcl:"address"`
	Channel    uint32 `hcl:"channel"`
	MaxPayload int    `hcl:"max_payload"`
	LogDebug   bool   `hcl:"log_debug"`
}

type SessionConfig struct {
	ProbeTimeoutMs   int `hcl:"probe_timeout_ms"`
	SampleIntervalMs int `hcl:"sample_interval_ms"`
	BasicIntervalMs  int `hcl:"basic_interval_ms"`
	StatePollMs      int `hcl:"state_poll_ms"`
	History          int `hcl:"history"`
	ReconnectMinMs   int `hcl:"reconnect_min_ms"`
	ReconnectMaxMs   int `hcl:"reconnect_max_ms"`
}

type MqttConfig struct {
	Enable       bool   `hcl:"enable"`
	BrokerURL    string `hcl:"broker_url"`
	ClientID     string `hcl:"client_id"`
	Username     string `hcl:"username"`
	Password     string `hcl:"password"`
	TopicPrefix  string `hcl:"topic_prefix"`
	KeepaliveSec int    `hcl:"keepalive_sec"`
	LogDebug     bool   `hcl:"log_debug"`
}

func (c *LinkConfig) DialTimeout() time.Duration {
	return helpers.IntMillisecondDefault(c.DialTimeoutMs, 5*time.Second)
}

func (c *SessionConfig) ProbeTimeout() time.Duration {
	return helpers.IntMillisecondDefault(c.ProbeTimeoutMs, 5*time.Second)
}
func (c *SessionConfig) StatePoll() time.Duration {
	return helpers.IntMillisecondDefault(c.StatePollMs, 5*time.Second)
}
func (c *SessionConfig) ReconnectMin() time.Duration {
	return helpers.IntMillisecondDefault(c.ReconnectMinMs, 1*time.Second)
}
func (c *SessionConfig) ReconnectMax() time.Duration {
	return helpers.IntMillisecondDefault(c.ReconnectMaxMs, 30*time.Second)
}

func (c *MqttConfig) Keepalive() time.Duration {
	return helpers.IntSecondDefault(c.KeepaliveSec, 30*time.Second)
}

// Validate checks values that have no sane default.
func (c *Config) Validate() error {
	errs := make([]error, 0, 4)
	switch c.Link.Kind {
	case "serial":
		if c.Link.Path == "" {
			errs = append(errs, errors.NotValidf("link.path empty"))
		}
	case "socket":
		if c.Link.Address == "" {
			errs = append(errs, errors.NotValidf("link.address empty"))
		}
	default:
		errs = append(errs, errors.NotValidf("link.kind=%q (expected serial|socket)", c.Link.Kind))
	}
	if c.Mqtt.Enable && c.Mqtt.BrokerURL == "" {
		errs = append(errs, errors.NotValidf("mqtt.broker_url empty"))
	}
	if c.Session.SampleIntervalMs < 0 || c.Session.BasicIntervalMs < 0 {
		errs = append(errs, errors.NotValidf("session interval negative"))
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) read(log *log2.Log, fs FullReader, source Source, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []Source
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.New("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, Source{Name: name}, &errs)
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
