// Package run keeps device session connected and exports readings.
package run

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/temoto/alive/v2"
	"github.com/temoto/sense/cmd/sense/subcmd"
	"github.com/temoto/sense/config"
	"github.com/temoto/sense/helpers"
	"github.com/temoto/sense/log2"
	"github.com/temoto/sense/sense"
	"github.com/temoto/sense/telemetry"
)

const modName = "run"

var Mod = subcmd.Mod{Name: modName, Usage: "connect, reconnect on loss, publish readings", Main: Main}

const disconnectTimeout = 5 * time.Second

func Main(ctx context.Context, log *log2.Log, cfg *config.Config, args []string) error {
	a := alive.NewAlive()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		sigch := make(chan os.Signal, 1)
		signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigch:
			log.Infof("signal=%v stopping", sig)
			a.Stop()
		case <-a.StopChan():
		}
		cancel()
	}()

	mem := sense.NewMemStore(cfg.Session.History)
	stores := sense.MultiStore{mem}
	var sess *sense.Session
	var mqttStat *telemetry.MQTTStat
	var mqttStore *telemetry.MQTTStore
	if cfg.Mqtt.Enable {
		ms, err := telemetry.NewMQTTStore(telemetry.MQTTOptions{
			Log:         log,
			BrokerURL:   cfg.Mqtt.BrokerURL,
			ClientID:    cfg.Mqtt.ClientID,
			Username:    cfg.Mqtt.Username,
			Password:    cfg.Mqtt.Password,
			TopicPrefix: cfg.Mqtt.TopicPrefix,
			Keepalive:   cfg.Mqtt.Keepalive(),
			LogDebug:    cfg.Mqtt.LogDebug,
			OnCommand: func(ctx context.Context, line string) (string, error) {
				return sense.Exec(ctx, sess, line)
			},
		})
		if err != nil {
			return errors.Annotate(err, "mqtt")
		}
		stores = append(stores, ms)
		mqttStat = &ms.Stat
		mqttStore = ms
	}

	sess, err := subcmd.NewSession(log, cfg, stores, func(err error) {
		log.Errorf("stream err=%v", err)
	})
	if err != nil {
		return err
	}
	// command topic is subscribed on connect, sess must be ready
	if mqttStore != nil {
		if err = mqttStore.Connect(ctx); err != nil {
			return errors.Annotate(err, "mqtt connect")
		}
		defer mqttStore.Close()
	}

	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			telemetry.NewCollector(sess, mem, mqttStat),
		)
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("metrics listen=%s err=%v", cfg.Metrics.Listen, err)
				a.Stop()
			}
		}()
		defer srv.Close()
		log.Infof("metrics listen=%s", cfg.Metrics.Listen)
	}

	subcmd.SdNotify(log, daemon.SdNotifyReady)
	loop(ctx, log, a, sess, subcmd.NewBackoff(&cfg.Session))

	dctx, dcancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer dcancel()
	if err := sess.Disconnect(dctx); err != nil {
		log.Errorf("disconnect err=%v", err)
	}
	a.Stop()
	a.Wait()
	return nil
}

// loop connects until a stops, waiting backoff delay between failed attempts.
func loop(ctx context.Context, log *log2.Log, a *alive.Alive, sess *sense.Session, backoff *helpers.Backoff) {
	stopch := a.StopChan()
	for a.IsRunning() {
		if d := backoff.DelayBefore(); d > 0 {
			log.Debugf("reconnect delay=%v", d)
			select {
			case <-time.After(d):
			case <-stopch:
				return
			}
		}

		err := sess.Connect(ctx)
		backoff.Update(err == nil)
		if err != nil {
			log.Errorf("connect %s err=%v", sess.Transport(), err)
			continue
		}
		log.Infof("connected %s state=%s", sess.Transport(), sess.State())

		select {
		case <-sess.Done():
			log.Errorf("connection lost %s", sess.Transport())
		case <-stopch:
			return
		}
	}
}
