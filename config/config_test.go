package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/sense/log2"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, c *Config) {
			assert.Equal(t, 5*time.Second, c.Session.ProbeTimeout())
			assert.Equal(t, 5*time.Second, c.Session.StatePoll())
			assert.Equal(t, 5*time.Second, c.Link.DialTimeout())
			assert.Equal(t, 30*time.Second, c.Mqtt.Keepalive())
			assert.Equal(t, uint64(0), c.RPC.Address)
		}, ""},

		{"link-serial",
			`link { kind = "serial" path = "/dev/ttyACM0" baud = 115200 }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "serial", c.Link.Kind)
				assert.Equal(t, "/dev/ttyACM0", c.Link.Path)
				assert.Equal(t, 115200, c.Link.Baud)
				assert.NoError(t, c.Validate())
			},
			"",
		},

		{"session",
			`session { probe_timeout_ms = 1500 sample_interval_ms = 1000 state_poll_ms = 250 history = 32 }
rpc { address = 82 channel = 1 max_payload = 512 }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 1500*time.Millisecond, c.Session.ProbeTimeout())
				assert.Equal(t, 1000, c.Session.SampleIntervalMs)
				assert.Equal(t, 250*time.Millisecond, c.Session.StatePoll())
				assert.Equal(t, 32, c.Session.History)
				assert.Equal(t, uint64(82), c.RPC.Address)
				assert.Equal(t, uint32(1), c.RPC.Channel)
				assert.Equal(t, 512, c.RPC.MaxPayload)
			},
			"",
		},

		{"include-override", `
include "site" {}
include "missing" { optional = true }
mqtt { enable = true broker_url = "tcp://localhost:1883" }
`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "socket", c.Link.Kind)
				assert.Equal(t, "127.0.0.1:33000", c.Link.Address)
				assert.True(t, c.Mqtt.Enable)
				assert.Equal(t, "sense", c.Mqtt.TopicPrefix)
				assert.NoError(t, c.Validate())
			},
			"",
		},

		{"include-required", `include "nope" {}`, nil, "config required name=nope"},
		{"include-loop", `include "loop" {}`, nil, "config include loop"},
		{"syntax", `link {`, nil, "config unmarshal source=test"},
	}
	sources := map[string]string{
		"site": `link { kind = "socket" address = "127.0.0.1:33000" }
mqtt { topic_prefix = "sense" }`,
		"loop": `include "test" {}`,
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			m := map[string]string{"test": c.input}
			for k, v := range sources {
				m[k] = v
			}
			log := log2.NewTest(t, log2.LDebug)
			cfg, err := ReadConfig(log, NewMockFullReader(m), "test")
			if c.expectErr == "" {
				require.NoError(t, err)
				c.check(t, cfg)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.expectErr)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		expectErr string
	}
	cases := []Case{
		{"no-link", ``, "link.kind"},
		{"serial-no-path", `link { kind = "serial" }`, "link.path empty"},
		{"socket-no-address", `link { kind = "socket" }`, "link.address empty"},
		{"mqtt-no-broker", `link { kind = "socket" address = ":1" } mqtt { enable = true }`, "mqtt.broker_url empty"},
		{"negative", `link { kind = "socket" address = ":1" } session { basic_interval_ms = -1 }`, "interval negative"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			log := log2.NewTest(t, log2.LDebug)
			cfg, err := ReadConfig(log, NewMockFullReader(map[string]string{"test": c.input}), "test")
			require.NoError(t, err)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.expectErr)
		})
	}
}

func TestOsFullReader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sense.hcl"),
		[]byte(`include "local.hcl" {}
link { kind = "serial" path = "/dev/null" }`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "local.hcl"),
		[]byte(`log { debug = true }`), 0o644))

	log := log2.NewTest(t, log2.LDebug)
	cfg, err := ReadConfig(log, NewOsFullReader(), filepath.Join(dir, "sense.hcl"))
	require.NoError(t, err)
	assert.True(t, cfg.Log.Debug)
	assert.Equal(t, "/dev/null", cfg.Link.Path)

	_, err = ReadConfig(log, NewOsFullReader(), filepath.Join(dir, "absent.hcl"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not found"))
}
