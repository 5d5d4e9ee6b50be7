package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"github.com/sweeney/sos-trigger/internal/config"
	"github.com/sweeney/sos-trigger/internal/evdev"
	"github.com/sweeney/sos-trigger/internal/gpio"
	"github.com/sweeney/sos-trigger/internal/logging"
	"github.com/sweeney/sos-trigger/internal/logic"
	"github.com/sweeney/sos-trigger/internal/metrics"
	"github.com/sweeney/sos-trigger/internal/mqtt"
	"github.com/sweeney/sos-trigger/internal/status"
	"github.com/sweeney/sos-trigger/internal/store"
	"github.com/sweeney/sos-trigger/internal/trigger"
	"github.com/sweeney/sos-trigger/internal/web"
	"golang.org/x/sync/errgroup"
)

// errInputClosed is returned when an input surface stops delivering events
// while the daemon is still running.
var errInputClosed = errors.New("input closed")

// input is one attached input surface.
type input struct {
	name   string
	source gpio.Source
	ctx    *trigger.Context
}

func run(v *viper.Viper, cfg *config.Config) error {
	log, level, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	m := metrics.New()

	var incidents *store.Store
	if cfg.Store.Path != "" {
		incidents, err = store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer incidents.Close()
	}

	// The publisher is created before the coordinator, so remote commands
	// reach it through this pointer.
	var coordRef atomic.Pointer[trigger.Coordinator]

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			Prefix:     cfg.MQTT.Prefix,
			Username:   cfg.MQTT.Username,
			Password:   cfg.MQTT.Password,
			BufferSize: cfg.MQTT.BufferSize,
			OnCommand: func(cmd mqtt.Command) {
				if c := coordRef.Load(); c != nil && cmd.Command == mqtt.CommandCancel {
					c.Cancel(cmd.Reason)
				}
			},
		}, log)
		defer p.Close()
		publisher, mqttStatus = p, p
	}

	targets := []trigger.Notifier{tracker, m}
	if publisher != nil {
		a := trigger.NewAsyncNotifier(mqtt.NewNotifier(publisher, log), 64, log)
		defer a.Close()
		targets = append(targets, a)
	}
	if incidents != nil {
		a := trigger.NewAsyncNotifier(store.NewRecorder(incidents, log), 16, log)
		defer a.Close()
		targets = append(targets, a)
	}

	coord, err := trigger.New(cfg.SessionConfig(), trigger.NewFanout(log, targets...), trigger.WithLogger(log))
	if err != nil {
		return fmt.Errorf("init coordinator: %w", err)
	}
	defer coord.Close()
	coordRef.Store(coord)

	inputs, err := openInputs(cfg, coord, log)
	defer func() {
		for _, in := range inputs {
			if err := in.source.Close(); err != nil {
				log.Warn("close input failed", "input", in.name, "error", err)
			}
		}
	}()
	if err != nil {
		return err
	}

	if publisher != nil {
		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			log.Warn("publish startup event failed", "error", err)
		} else {
			log.Info("published startup event")
		}
	}

	var srv *web.Server
	if cfg.HTTP.Addr != "" {
		opts := web.Options{Canceller: coord, Metrics: m, Log: log}
		if incidents != nil {
			opts.Incidents = incidents
		}
		srv = web.New(cfg.HTTP.Addr, tracker, opts)
	}

	config.Watch(v, log, func(next *config.Config) {
		applyReload(next, coord, inputs, tracker, level, log)
	})

	log.Info("started",
		"inputs", cfg.EnabledInputs(),
		"countdown", cfg.Session.Countdown,
		"broker", cfg.MQTT.Broker,
		"http", cfg.HTTP.Addr,
		"heartbeat", cfg.Heartbeat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	for _, in := range inputs {
		g.Go(func() error { return pump(gctx, in, log) })
	}

	if srv != nil {
		g.Go(func() error {
			log.Info("http status server listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g.Go(func() error {
		defer cancel()
		return runLoop(gctx, publisher, mqttStatus, coord, tracker, cfg.Heartbeat, time.Now, ticker.C, sigCh, log)
	})

	return g.Wait()
}

// openInputs opens every enabled input surface and attaches it to the
// coordinator. Inputs opened before a failure are returned so the caller
// can close them.
func openInputs(cfg *config.Config, coord *trigger.Coordinator, log *slog.Logger) ([]input, error) {
	gestures, err := cfg.GestureConfigs()
	if err != nil {
		return nil, err
	}

	var inputs []input
	attach := func(name string, src gpio.Source) error {
		ctx, err := coord.Attach(name, gestures)
		if err != nil {
			src.Close()
			return fmt.Errorf("attach %s: %w", name, err)
		}
		inputs = append(inputs, input{name: name, source: src, ctx: ctx})
		return nil
	}

	if g := cfg.Inputs.GPIO; g.Enabled {
		pins, err := gpio.ParsePins(g.Pins)
		if err != nil {
			return inputs, fmt.Errorf("gpio pins: %w", err)
		}
		w, err := gpio.NewWatcher(g.Chip, pins, g.Debounce, log)
		if err != nil {
			return inputs, fmt.Errorf("init gpio: %w", err)
		}
		if err := attach("gpio", w); err != nil {
			return inputs, err
		}
	}

	if e := cfg.Inputs.Evdev; e.Enabled {
		keys, err := evdev.ParseKeymap(e.Keys)
		if err != nil {
			return inputs, fmt.Errorf("evdev keys: %w", err)
		}
		r, err := evdev.NewReader(e.Device, keys, e.Grab, log)
		if err != nil {
			return inputs, fmt.Errorf("init evdev: %w", err)
		}
		if err := attach("evdev", r); err != nil {
			return inputs, err
		}
	}
	return inputs, nil
}

// pump delivers raw events from one input to its delivery context until
// ctx is done.
func pump(ctx context.Context, in input, log *slog.Logger) error {
	events := in.source.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("%s: %w", in.name, errInputClosed)
			}
			dec := in.ctx.OnRawEvent(ev)
			log.Debug("key event",
				"input", in.name,
				"button", ev.Button,
				"transition", ev.Transition,
				"repeat", ev.Repeat,
				"action", dec.Action,
				"gesture", dec.Gesture,
				"consume", dec.Consume)
		}
	}
}

func applyReload(cfg *config.Config, coord *trigger.Coordinator, inputs []input, tracker *status.Tracker, level *slog.LevelVar, log *slog.Logger) {
	if lvl, err := logging.ParseLevel(cfg.Log.Level); err == nil {
		level.Set(lvl)
	}
	if err := coord.Reconfigure(cfg.SessionConfig()); err != nil {
		log.Warn("session reload failed", "error", err)
		return
	}
	gestures, err := cfg.GestureConfigs()
	if err != nil {
		log.Warn("gesture reload failed", "error", err)
		return
	}
	for _, in := range inputs {
		if err := in.ctx.Reconfigure(gestures); err != nil {
			log.Warn("gesture reload failed", "input", in.name, "error", err)
		}
	}
	tracker.SetConfig(statusConfig(cfg))
}

// runLoop publishes heartbeats until a signal arrives or ctx is cancelled,
// then cancels any armed session and publishes SHUTDOWN.
func runLoop(ctx context.Context, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, canceller web.Canceller, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, log *slog.Logger) error {
	hb := logic.NewHeartbeat(now())

	for {
		select {
		case s := <-sig:
			name := signalName(s)
			log.Info("shutting down", "signal", name)
			shutdown(publisher, mqttStatus, canceller, tracker, now, name, log)
			return nil

		case <-ctx.Done():
			log.Info("shutting down", "cause", context.Cause(ctx))
			shutdown(publisher, mqttStatus, canceller, tracker, now, "ERROR", log)
			return nil

		case <-tick:
			t := now()
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}

			hbData := hb.Check(t, heartbeat)
			if hbData == nil {
				continue
			}
			snap := tracker.Snapshot()
			log.Info("heartbeat",
				"uptime", hbData.Uptime,
				"armed", snap.Session.Active,
				"sessions", snap.Counts.Sessions,
				"fired", snap.Counts.Fired,
				"cancelled", snap.Counts.Cancelled)
			if publisher == nil {
				continue
			}
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
				snap = tracker.Snapshot()
			}
			event := mqtt.SystemEvent{
				Timestamp:  hbData.Timestamp,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Warn("heartbeat publish failed", "error", err)
			}
		}
	}
}

func shutdown(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, canceller web.Canceller, tracker *status.Tracker, now func() time.Time, reason string, log *slog.Logger) {
	if canceller != nil {
		canceller.Cancel("shutdown")
	}
	if publisher == nil {
		return
	}
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	event := mqtt.SystemEvent{
		Timestamp:  now(),
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", reason),
	}
	if err := publisher.PublishSystem(event); err != nil {
		log.Warn("publish shutdown event failed", "error", err)
	} else {
		log.Info("published shutdown event")
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

func statusConfig(cfg *config.Config) status.Config {
	var gestures []string
	if gs, err := cfg.GestureConfigs(); err == nil {
		for _, g := range gs {
			gestures = append(gestures, g.Name)
		}
	}
	return status.Config{
		CountdownSeconds: cfg.Session.Countdown,
		TickMs:           cfg.Session.TickInterval.Milliseconds(),
		HeartbeatMs:      cfg.Heartbeat.Milliseconds(),
		Broker:           cfg.MQTT.Broker,
		HTTPAddr:         cfg.HTTP.Addr,
		Inputs:           cfg.EnabledInputs(),
		Gestures:         gestures,
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
