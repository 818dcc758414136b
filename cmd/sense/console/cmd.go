// Package console is interactive device shell.
package console

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/sense/cmd/sense/subcmd"
	"github.com/temoto/sense/config"
	"github.com/temoto/sense/helpers/cli"
	"github.com/temoto/sense/log2"
	"github.com/temoto/sense/sense"
	"github.com/temoto/sense/transport"
)

const modName = "console"

var Mod = subcmd.Mod{Name: modName, Usage: "interactive device shell", Main: Main}

const commandTimeout = 10 * time.Second

// Shell commands besides sense.Commands.
var local = []sense.Command{
	{Name: "connect", Help: "open link and probe device"},
	{Name: "disconnect", Help: "close link"},
	{Name: "stream", Help: "print readings as they arrive"},
	{Name: "stop", Help: "stop printing readings"},
	{Name: "stat", Help: "link, frame and RPC counters"},
	{Name: "debug", Args: "on|off", Help: "debug log"},
	{Name: "help", Help: "this text"},
	{Name: "quit", Help: "exit"},
}

// printStore logs readings while enabled.
type printStore struct {
	log *log2.Log
	on  uint32
}

func (p *printStore) SetConnected(v bool) { p.log.Infof("connected=%t", v) }
func (p *printStore) SetBasicMode(v bool) { p.log.Infof("basic=%t", v) }
func (p *printStore) AddReading(r sense.Reading) {
	if atomic.LoadUint32(&p.on) == 1 {
		p.log.Info(r.String())
	}
}

type shell struct {
	log   *log2.Log
	sess  *sense.Session
	print *printStore
	quit  uint32
}

func Main(ctx context.Context, log *log2.Log, cfg *config.Config, args []string) error {
	ps := &printStore{log: log}
	sess, err := subcmd.NewSession(log, cfg, ps, func(err error) {
		log.Errorf("stream err=%v", err)
	})
	if err != nil {
		return err
	}
	sh := &shell{log: log, sess: sess, print: ps}
	if err := sess.Connect(ctx); err != nil {
		log.Errorf("connect err=%v (use connect to retry)", err)
	} else {
		log.Infof("connected %s state=%s", sess.Transport(), sess.State())
	}

	cli.MainLoop(modName, sh.executor(ctx), cli.Suggests(suggests()), sh.exit)

	dctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return sess.Disconnect(dctx)
}

func suggests() []prompt.Suggest {
	ss := make([]prompt.Suggest, 0, len(sense.Commands)+len(local))
	for _, list := range [][]sense.Command{sense.Commands, local} {
		for _, c := range list {
			ss = append(ss, prompt.Suggest{Text: c.Name, Description: strings.TrimSpace(c.Args + " " + c.Help)})
		}
	}
	return ss
}

func (sh *shell) exit() bool { return atomic.LoadUint32(&sh.quit) == 1 }

func (sh *shell) executor(ctx context.Context) cli.ExecFunc {
	return func(line string) {
		out, err := sh.exec(ctx, line)
		if err != nil {
			sh.log.Errorf("%s err=%v", line, err)
			return
		}
		if out != "" {
			fmt.Println(out)
		}
	}
}

func (sh *shell) exec(ctx context.Context, line string) (string, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return "", nil
	}
	switch parts[0] {
	case "quit", "exit":
		atomic.StoreUint32(&sh.quit, 1)
		return "", nil
	case "help":
		return help(), nil
	case "connect":
		if err := sh.sess.Connect(ctx); err != nil {
			return "", err
		}
		return "state=" + sh.sess.State().String(), nil
	case "disconnect":
		dctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		return "", sh.sess.Disconnect(dctx)
	case "stream":
		atomic.StoreUint32(&sh.print.on, 1)
		return "", nil
	case "stop":
		atomic.StoreUint32(&sh.print.on, 0)
		return "", nil
	case "debug":
		var v uint32
		if err := setFlag(parts, &v); err != nil {
			return "", err
		}
		if v == 1 {
			sh.log.SetLevel(log2.LDebug)
		} else {
			sh.log.SetLevel(log2.LInfo)
		}
		return "", nil
	case "stat":
		link := "-"
		if st, ok := sh.sess.Transport().(transport.Stater); ok {
			link = st.TransportStat().String()
		}
		return fmt.Sprintf("state=%s link %s\nhdlc %s\nrpc %s pending=%d",
			sh.sess.State(), link,
			sh.sess.Decoder().Stat.String(), sh.sess.Client().Stat.String(), sh.sess.Client().Pending()), nil
	}

	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return sense.Exec(cctx, sh.sess, line)
}

func setFlag(parts []string, v *uint32) error {
	if len(parts) != 2 {
		return errors.NotValidf("usage: %s on|off", parts[0])
	}
	switch parts[1] {
	case "on":
		atomic.StoreUint32(v, 1)
	case "off":
		atomic.StoreUint32(v, 0)
	default:
		return errors.NotValidf("usage: %s on|off", parts[0])
	}
	return nil
}

func help() string {
	var b strings.Builder
	for _, list := range [][]sense.Command{sense.Commands, local} {
		for _, c := range list {
			fmt.Fprintf(&b, "  %-12s %-18s %s\n", c.Name, c.Args, c.Help)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
