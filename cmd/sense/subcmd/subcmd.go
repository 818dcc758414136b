// Support sub-commands in sense application.
package subcmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/juju/errors"
	"github.com/temoto/sense/config"
	"github.com/temoto/sense/helpers"
	"github.com/temoto/sense/log2"
	"github.com/temoto/sense/sense"
	"github.com/temoto/sense/transport"
)

type Mod struct {
	Name  string
	Usage string
	Main  func(ctx context.Context, log *log2.Log, cfg *config.Config, args []string) error
}

func Parse(command string, modules []Mod) (*Mod, error) {
	if command == "" {
		return nil, fmt.Errorf("empty command")
	}

	for i := range modules {
		m := &modules[i]
		if m.Name == "" {
			panic(fmt.Sprintf("code error Name='' module=%#v", m))
		}
		if command == m.Name {
			return m, nil
		}
	}
	return nil, errors.NotFoundf("command=%s", command)
}

func Usage(modules []Mod) string {
	var b strings.Builder
	for _, m := range modules {
		fmt.Fprintf(&b, "  %-10s %s\n", m.Name, m.Usage)
	}
	return b.String()
}

// SdNotify returns true when running under systemd.
func SdNotify(log *log2.Log, s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}

func NewTransport(c *config.LinkConfig) (transport.Transport, error) {
	switch c.Kind {
	case "serial":
		return transport.NewSerial(c.Path, c.Baud), nil
	case "socket":
		return transport.NewSocket(c.Address, c.DialTimeout()), nil
	}
	return nil, errors.NotValidf("link.kind=%q", c.Kind)
}

// NewSession builds session from config. Connect is up to caller.
func NewSession(log *log2.Log, cfg *config.Config, store sense.Store, onError func(error)) (*sense.Session, error) {
	t, err := NewTransport(&cfg.Link)
	if err != nil {
		return nil, errors.Annotate(err, "link")
	}
	slog := log
	if cfg.RPC.LogDebug {
		slog = log.Clone(log2.LDebug)
	}
	s := sense.NewSession(sense.Options{
		Log:              slog,
		Transport:        t,
		Store:            store,
		Address:          cfg.RPC.Address,
		ChannelID:        cfg.RPC.Channel,
		MaxPayload:       cfg.RPC.MaxPayload,
		ProbeTimeout:     cfg.Session.ProbeTimeout(),
		SampleIntervalMs: uint32(cfg.Session.SampleIntervalMs),
		BasicIntervalMs:  uint32(cfg.Session.BasicIntervalMs),
		StatePoll:        cfg.Session.StatePoll(),
		OnError:          onError,
	})
	return s, nil
}

// Backoff between reconnect attempts.
func NewBackoff(c *config.SessionConfig) *helpers.Backoff {
	return &helpers.Backoff{Min: c.ReconnectMin(), Max: c.ReconnectMax(), K: 2}
}
