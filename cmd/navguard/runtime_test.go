package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"navguard/internal/ahrs"
	"navguard/internal/config"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func mustParse(t *testing.T, yml string) config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yml))
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	return cfg
}

func TestNewRuntime_AHRSDisabled(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "events.db")
	cfg := mustParse(t, "eventlog:\n  path: "+dbPath+"\nweb:\n  enable: false\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := newRuntime(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	defer rt.Close()

	if rt.session == "" {
		t.Fatalf("session id is empty")
	}
	if rt.store == nil {
		t.Fatalf("sqlite store not opened")
	}
	if rt.ahrsSvc.Available() {
		t.Fatalf("ahrs available while disabled")
	}
	if err := rt.vehicle.Arm(); err == nil {
		t.Fatalf("armed without an AHRS")
	}

	now := time.Now()
	rt.step(now)
	rt.step(now.Add(100 * time.Millisecond))

	snap := rt.status.Snapshot(time.Now().UTC())
	if snap.Ticks != 2 {
		t.Fatalf("ticks=%d want 2", snap.Ticks)
	}
	// No origin yet: the monitor leaves everything untouched.
	if st := rt.monitor.State(); st.Count != 0 || st.Tripped {
		t.Fatalf("monitor state=%+v", st)
	}
	if rt.flag.On() {
		t.Fatalf("failsafe indicator on")
	}

	if err := rt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNewRuntime_SimServesStatus(t *testing.T) {
	capture := filepath.Join(t.TempDir(), "capture.log")
	cfg := mustParse(t, `
ahrs:
  enable: true
  source: sim
  poll_interval: 1ms
  capture:
    enable: true
    path: `+capture+`
  sim:
    center_lat_deg: 47.6
    center_lon_deg: -122.3
    alt_m: 30
web:
  enable: false
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := newRuntime(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	defer rt.Close()

	if !rt.ahrsSvc.Available() {
		t.Fatalf("sim link not available")
	}

	deadline := time.Now().Add(5 * time.Second)
	for rt.ahrsSvc.Snapshot().Stats.IMU == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no IMU samples from sim: %+v", rt.ahrsSvc.Snapshot().Stats)
		}
		time.Sleep(5 * time.Millisecond)
	}

	ts := httptest.NewServer(rt.handler)
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}

	cancel()
	// Let the ingestion task observe cancellation before the capture closes.
	time.Sleep(20 * time.Millisecond)
	if err := rt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if fi, err := os.Stat(capture); err != nil || fi.Size() == 0 {
		t.Fatalf("capture not written: fi=%v err=%v", fi, err)
	}
}

func TestSampleTap_TakeResets(t *testing.T) {
	tap := &sampleTap{}
	tap.PublishInertial(ahrs.InertialSample{})
	tap.PublishInertial(ahrs.InertialSample{})
	tap.PublishMag(ahrs.MagSample{})
	tap.PublishGNSS(ahrs.GNSSFix{Instance: 1, Satellites: 9})

	c, fixes := tap.take()
	if c.Inertial != 2 || c.Mag != 1 || c.Baro != 0 || c.GNSS != 1 {
		t.Fatalf("counts=%+v", c)
	}
	if fixes[1].Satellites != 9 {
		t.Fatalf("fixes=%v", fixes)
	}

	c, fixes = tap.take()
	if c.Inertial != 0 || c.GNSS != 0 {
		t.Fatalf("counts not reset: %+v", c)
	}
	if len(fixes) != 1 {
		t.Fatalf("last fix dropped: %v", fixes)
	}
}
