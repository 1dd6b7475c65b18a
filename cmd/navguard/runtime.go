package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"navguard/internal/ahrs"
	"navguard/internal/config"
	"navguard/internal/eventlog"
	"navguard/internal/failsafe"
	"navguard/internal/notify"
	"navguard/internal/replay"
	"navguard/internal/serial"
	"navguard/internal/sim"
	"navguard/internal/vehicle"
	"navguard/internal/web"
)

type runtime struct {
	cfg     config.Config
	session string

	ahrsSvc *ahrs.Service
	vehicle *vehicle.Vehicle
	monitor *failsafe.Monitor
	events  *eventlog.Memory
	store   *eventlog.SQLite
	alerts  *notify.History
	flag    *notify.Flag
	tap     *sampleTap
	status  *web.Status
	handler http.Handler

	closers []func() error
}

func newRuntime(ctx context.Context, cfg config.Config, logs *web.LogBuffer) (*runtime, error) {
	rt := &runtime{
		cfg:     cfg,
		session: uuid.NewString(),
		events:  eventlog.NewMemory(cfg.EventLog.MemorySize),
		alerts:  notify.NewHistory(32),
		flag:    &notify.Flag{},
		tap:     &sampleTap{},
		status:  web.NewStatus(),
	}
	ok := false
	defer func() {
		if !ok {
			_ = rt.Close()
		}
	}()

	writers := eventlog.Multi{rt.events}
	if cfg.EventLog.Path != "" {
		store, err := eventlog.OpenSQLite(cfg.EventLog.Path, cfg.EventLog.QueueSize)
		if err != nil {
			return nil, fmt.Errorf("eventlog: %w", err)
		}
		rt.store = store
		rt.closers = append(rt.closers, store.Close)
		writers = append(writers, store)
	}
	recorder := eventlog.NewRecorder(writers, rt.session)

	alerters := notify.Multi{rt.alerts, notify.LogAlerter{}}
	if cfg.Notify.UDPDest != "" {
		u, err := notify.NewUDPAlerter(cfg.Notify.UDPDest)
		if err != nil {
			return nil, fmt.Errorf("notify udp: %w", err)
		}
		rt.closers = append(rt.closers, u.Close)
		alerters = append(alerters, u)
	}

	indicators := notify.Indicators{rt.flag}
	if cfg.Notify.LEDGPIO > 0 {
		led, err := notify.OpenLED(cfg.Notify.LEDGPIO)
		if err != nil {
			// The indicator is optional hardware.
			log.Printf("failsafe led unavailable gpio=%d err=%v", cfg.Notify.LEDGPIO, err)
		} else {
			rt.closers = append(rt.closers, led.Close)
			indicators = append(indicators, led)
		}
	}

	backend := ahrs.NewMicroStrain7(rt.linkOpener(), ahrs.Publishers{
		Inertial: rt.tap,
		Compass:  rt.tap,
		Baro:     rt.tap,
		GNSS:     rt.tap,
	}, cfg.AHRS.MaxReadBytes)
	rt.ahrsSvc = ahrs.New(ahrs.Config{Enable: cfg.AHRS.Enable, PollInterval: cfg.AHRS.PollInterval}, backend, nil)
	if err := rt.ahrsSvc.Start(ctx); err != nil {
		return nil, err
	}

	rt.vehicle = vehicle.New(cfg.Vehicle.InitialMode, rt.ahrsSvc)

	rt.monitor = failsafe.New(failsafe.Config{
		Threshold:    cfg.Failsafe.Threshold,
		Iterations:   cfg.Failsafe.Iterations,
		WarnInterval: cfg.Failsafe.WarnInterval,
		FallbackMode: cfg.Failsafe.FallbackMode,
	}, failsafe.Deps{
		Origin:    rt.ahrsSvc,
		Variances: rt.ahrsSvc,
		Position:  rt.ahrsSvc,
		Vehicle:   rt.vehicle,
		Alerter:   alerters,
		Log:       recorder,
		Indicator: indicators,
	})

	src := web.Sources{
		AHRS:     rt.ahrsSvc,
		Failsafe: rt.monitor,
		Vehicle:  rt.vehicle,
		Alerts:   rt.alerts,
	}
	if rt.store != nil {
		src.EventsDropped = rt.store.Dropped
	}
	rt.status.SetSources(src)
	id := web.Identity{Session: rt.session, Backend: backend.Name(), Source: cfg.AHRS.Source}
	switch cfg.AHRS.Source {
	case config.SourceSerial:
		id.Device = cfg.AHRS.Serial.Device
	case config.SourceReplay:
		id.Device = cfg.AHRS.Replay.Path
	}
	rt.status.SetIdentity(id)
	rt.handler = web.Handler(rt.status, rt.vehicle, rt.events, logs)

	log.Printf("session=%s ahrs=%t source=%s threshold=%.2f fallback=%s",
		rt.session, cfg.AHRS.Enable, cfg.AHRS.Source, cfg.Failsafe.Threshold, cfg.Failsafe.FallbackMode)
	ok = true
	return rt, nil
}

// linkOpener builds the byte source for the configured AHRS link.
func (rt *runtime) linkOpener() ahrs.OpenFunc {
	a := rt.cfg.AHRS
	return func() (serial.Port, error) {
		var (
			port serial.Port
			err  error
		)
		switch a.Source {
		case config.SourceSim:
			port, err = openSim(a.Sim)
		case config.SourceReplay:
			var recs []replay.Record
			recs, err = replay.Load(a.Replay.Path)
			if err == nil {
				port, err = replay.NewPort(recs, a.Replay.Speed, a.Replay.Loop, nil)
			}
		default:
			port, err = serial.Open(a.Serial)
		}
		if err != nil {
			return nil, err
		}
		if !a.Capture.Enable {
			return port, nil
		}
		w, err := replay.OpenWriter(a.Capture.Path)
		if err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("capture: %w", err)
		}
		rt.closers = append(rt.closers, w.Close)
		log.Printf("ahrs capture path=%s", a.Capture.Path)
		return serial.Record(port, w), nil
	}
}

func openSim(c config.SimConfig) (serial.Port, error) {
	var faults *sim.Faults
	if c.FaultsPath != "" {
		script, err := sim.LoadFaultScript(c.FaultsPath)
		if err != nil {
			return nil, err
		}
		faults, err = sim.NewFaults(script)
		if err != nil {
			return nil, err
		}
	}
	return sim.NewGQ7(sim.GQ7Config{
		Track: sim.Track{
			CenterLatDeg: c.CenterLatDeg,
			CenterLonDeg: c.CenterLonDeg,
			AltM:         c.AltM,
			RadiusM:      c.RadiusM,
			Period:       c.Period,
		},
		Faults:      faults,
		Loop:        c.Loop,
		DualAntenna: c.DualAntenna,
	}, nil), nil
}

// Run drives the failsafe tick and the web server until ctx is done.
func (rt *runtime) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	if rt.cfg.Web.Enable {
		go func() {
			log.Printf("web listen=%s", rt.cfg.Web.Listen)
			if err := web.Serve(ctx, rt.cfg.Web.Listen, rt.handler); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("web: %w", err)
			}
		}()
	}

	tick := time.NewTicker(rt.cfg.Failsafe.Tick)
	defer tick.Stop()
	summary := time.NewTicker(time.Minute)
	defer summary.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case now := <-tick.C:
			rt.step(now)
		case <-summary.C:
			rt.tap.logSummary()
		}
	}
}

func (rt *runtime) step(now time.Time) {
	rt.monitor.Tick(now)
	rt.status.MarkTick(now.UTC())
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
