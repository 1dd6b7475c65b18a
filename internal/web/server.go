package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"navguard/internal/eventlog"
	"navguard/internal/vehicle"
)

// VehicleControl exposes arming and mode selection to operators.
type VehicleControl interface {
	Arm() error
	Disarm()
	RequestModeChange(target vehicle.Mode, reason vehicle.Reason) error
	Status() vehicle.Status
}

type EventSource interface {
	Events() []eventlog.Event
}

type eventView struct {
	eventlog.Event
	Text string `json:"text"`
}

func Handler(status *Status, veh VehicleControl, events EventSource, logs *LogBuffer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, status.Snapshot(time.Now().UTC()))
	})

	mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		limit := 100
		if s := strings.TrimSpace(r.URL.Query().Get("limit")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 || v > 1000 {
				http.Error(w, "limit must be an integer in [1,1000]", http.StatusBadRequest)
				return
			}
			limit = v
		}
		var evs []eventlog.Event
		if events != nil {
			evs = events.Events()
		}
		if len(evs) > limit {
			evs = evs[len(evs)-limit:]
		}
		out := make([]eventView, 0, len(evs))
		for _, e := range evs {
			out = append(out, eventView{Event: e, Text: e.Describe()})
		}
		writeJSON(w, struct {
			Events []eventView `json:"events"`
		}{Events: out})
	})

	mux.HandleFunc("/api/vehicle/arm", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) || !haveVehicle(w, veh) {
			return
		}
		if err := veh.Arm(); err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, vehicle.ErrPreArm) {
				code = http.StatusConflict
			}
			http.Error(w, err.Error(), code)
			return
		}
		writeJSON(w, veh.Status())
	})

	mux.HandleFunc("/api/vehicle/disarm", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) || !haveVehicle(w, veh) {
			return
		}
		veh.Disarm()
		writeJSON(w, veh.Status())
	})

	mux.HandleFunc("/api/vehicle/mode", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) || !haveVehicle(w, veh) {
			return
		}
		m, err := vehicle.ParseMode(r.URL.Query().Get("name"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := veh.RequestModeChange(m, vehicle.ReasonGCSCommand); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, veh.Status())
	})

	// Fault scripts for the simulated sensor.
	// Returns paths like "./configs/faults/gnss-dropout.yaml".
	mux.HandleFunc("/api/faults", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		paths := []string{}
		entries, err := os.ReadDir(filepath.FromSlash("configs/faults"))
		if err == nil {
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				lower := strings.ToLower(e.Name())
				if !(strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")) {
					continue
				}
				paths = append(paths, "./configs/faults/"+e.Name())
			}
		}
		sort.Strings(paths)
		writeJSON(w, struct {
			Paths []string `json:"paths"`
		}{Paths: paths})
	})

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	mux.Handle("/api/about", aboutHandler(status))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		snap := status.Snapshot(time.Now().UTC())
		phase := "n/a"
		if snap.Failsafe != nil {
			phase = snap.Failsafe.Phase
		}
		healthy := false
		if snap.AHRS != nil {
			healthy = snap.AHRS.Healthy
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>navguard</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>navguard</h1>")
		_, _ = fmt.Fprintf(w, "<p>See <a href=\"/api/status\">/api/status</a>, <a href=\"/api/events\">/api/events</a>, <a href=\"/api/logs?format=text\">/api/logs</a>.</p>")
		_, _ = fmt.Fprintf(w, "<pre>ahrs_healthy=%t\nfailsafe=%s\nticks=%d\nlast_tick_utc=%s</pre>",
			healthy, phase, snap.Ticks, snap.LastTickUTC,
		)
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return mux
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func haveVehicle(w http.ResponseWriter, veh VehicleControl) bool {
	if veh == nil {
		http.Error(w, "vehicle unavailable", http.StatusNotFound)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
