// Package call invokes single device method by name, for scripts.
//
//	sense call board.Board.OnboardTemp
//	sense call -stream 5 air_sensor.AirSensor.MeasureStream 08e807
package call

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/sense/cmd/sense/subcmd"
	"github.com/temoto/sense/config"
	"github.com/temoto/sense/log2"
	"github.com/temoto/sense/rpc"
)

const (
	modName  = "call"
	modUsage = "[-stream N] [-timeout D] Service.Method [hex]"
)

var Mod = subcmd.Mod{Name: modName, Usage: modUsage, Main: Main}

func Main(ctx context.Context, log *log2.Log, cfg *config.Config, args []string) error {
	flags := flag.NewFlagSet(modName, flag.ContinueOnError)
	flagStream := flags.Int("stream", 0, "server stream, print N responses then cancel")
	flagTimeout := flags.Duration("timeout", 10*time.Second, "")
	if err := flags.Parse(args); err != nil {
		return errors.Trace(err)
	}
	if flags.NArg() < 1 || flags.NArg() > 2 {
		return errors.NotValidf("usage: %s %s", modName, modUsage)
	}
	serviceName, methodName, err := SplitName(flags.Arg(0))
	if err != nil {
		return err
	}
	var req []byte
	if flags.NArg() == 2 {
		if req, err = hex.DecodeString(flags.Arg(1)); err != nil {
			return errors.Annotate(err, "request hex")
		}
	}

	sess, err := subcmd.NewSession(log, cfg, nil, nil)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, *flagTimeout)
	defer cancel()
	if err = sess.Connect(ctx); err != nil {
		return errors.Annotate(err, "connect")
	}
	defer sess.Disconnect(context.Background()) //nolint:errcheck

	if *flagStream <= 0 {
		status, rsp, err := sess.InvokeUnary(ctx, serviceName, methodName, req)
		if err != nil {
			return errors.Annotatef(err, "%s.%s", serviceName, methodName)
		}
		fmt.Printf("status=%s response=%x\n", status, rsp)
		return nil
	}

	next := make(chan []byte, *flagStream)
	done := make(chan error, 1)
	c, err := sess.InvokeStream(serviceName, methodName, req, rpc.StreamHandler{
		OnNext: func(payload []byte) {
			select {
			case next <- payload:
			default:
			}
		},
		OnCompleted: func(status rpc.Status) { done <- errors.Errorf("completed status=%s", status) },
		OnError:     func(err error) { done <- err },
	})
	if err != nil {
		return errors.Annotatef(err, "%s.%s", serviceName, methodName)
	}
	defer c.Cancel() //nolint:errcheck
	for i := 0; i < *flagStream; i++ {
		select {
		case b := <-next:
			fmt.Printf("response=%x\n", b)
		case err := <-done:
			return err
		case <-ctx.Done():
			return errors.Annotate(ctx.Err(), "stream")
		}
	}
	return nil
}

// SplitName splits "package.Service.Method" at last dot.
func SplitName(s string) (service, method string, err error) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return "", "", errors.NotValidf("method name %q (expected Service.Method)", s)
	}
	return s[:i], s[i+1:], nil
}
