package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/juju/errors"
	"github.com/temoto/sense/cmd/sense/call"
	"github.com/temoto/sense/cmd/sense/console"
	"github.com/temoto/sense/cmd/sense/run"
	"github.com/temoto/sense/cmd/sense/simulate"
	"github.com/temoto/sense/cmd/sense/subcmd"
	"github.com/temoto/sense/config"
	"github.com/temoto/sense/log2"
)

var modules = []subcmd.Mod{
	run.Mod,
	console.Mod,
	call.Mod,
	simulate.Mod,
}

func main() {
	log := log2.NewStderr(log2.LInfo)
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flagConfig := flags.String("config", "sense.hcl", "")
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "usage: %s [-config sense.hcl] command [args]\n", os.Args[0])
		flags.PrintDefaults()
		fmt.Fprintf(flags.Output(), "commands:\n%s", subcmd.Usage(modules))
	}
	_ = flags.Parse(os.Args[1:])

	mod, err := subcmd.Parse(flags.Arg(0), modules)
	if err != nil {
		flags.Usage()
		log.Fatal(err)
	}

	if subcmd.SdNotify(log, "start") {
		// under systemd, journal adds timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	// simulate does not talk to device, config is optional
	var cfg *config.Config
	if mod.Name == simulate.Mod.Name {
		cfg = &config.Config{}
	} else {
		cfg = config.MustReadConfig(log, config.NewOsFullReader(), *flagConfig)
		if err := cfg.Validate(); err != nil {
			log.Fatal(errors.ErrorStack(err))
		}
	}
	if cfg.Log.Debug {
		log.SetLevel(log2.LDebug)
	}
	log.Debugf("config=%+v", cfg)

	if err := mod.Main(context.Background(), log, cfg, flags.Args()[1:]); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	subcmd.SdNotify(log, daemon.SdNotifyStopping)
}
