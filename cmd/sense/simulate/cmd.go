// Package simulate serves simulated board over TCP, for socket link without hardware.
package simulate

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/sense/cmd/sense/subcmd"
	"github.com/temoto/sense/config"
	"github.com/temoto/sense/helpers"
	"github.com/temoto/sense/internal/devicemock"
	"github.com/temoto/sense/log2"
)

const modName = "simulate"

var Mod = subcmd.Mod{Name: modName, Usage: "[-listen addr] [-basic] [-drift D] serve simulated board", Main: Main}

func Main(ctx context.Context, log *log2.Log, cfg *config.Config, args []string) error {
	flags := flag.NewFlagSet(modName, flag.ContinueOnError)
	flagListen := flags.String("listen", "localhost:33000", "")
	flagBasic := flags.Bool("basic", false, "firmware without air sensor")
	flagDrift := flags.Duration("drift", time.Second, "measurement change interval, 0 to disable")
	if err := flags.Parse(args); err != nil {
		return errors.Trace(err)
	}

	ln, err := net.Listen("tcp", *flagListen)
	if err != nil {
		return errors.Annotate(err, "listen")
	}
	log.Infof("simulate listen=%s basic=%t", ln.Addr(), *flagBasic)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	dev := devicemock.NewSense(log, *flagBasic)
	if *flagDrift > 0 {
		go func() {
			r := helpers.RandUnix()
			t := time.NewTicker(*flagDrift)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					dev.Drift(r)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	return dev.ServeListener(ctx, ln)
}
