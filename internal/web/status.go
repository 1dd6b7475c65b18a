package web

import (
	"sync/atomic"
	"time"

	"navguard/internal/ahrs"
	"navguard/internal/failsafe"
	"navguard/internal/notify"
	"navguard/internal/vehicle"
)

type AHRSSource interface {
	Snapshot() ahrs.Snapshot
}

type FailsafeSource interface {
	Phase() failsafe.Phase
	State() failsafe.State
}

type VehicleSource interface {
	Status() vehicle.Status
}

type AlertSource interface {
	Messages() []notify.Message
}

// Sources are read on every status request. Nil members are omitted.
type Sources struct {
	AHRS     AHRSSource
	Failsafe FailsafeSource
	Vehicle  VehicleSource
	Alerts   AlertSource
	// EventsDropped reports events the persistent log could not keep up with.
	EventsDropped func() uint64
}

type Status struct {
	startUnixNano int64
	ticks         uint64
	lastTickNano  int64
	src           atomic.Pointer[Sources]
	id            atomic.Pointer[Identity]
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.src.Store(&Sources{})
	return s
}

func (s *Status) SetSources(src Sources) {
	s.src.Store(&src)
}

// MarkTick records one control tick.
func (s *Status) MarkTick(nowUTC time.Time) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	atomic.StoreInt64(&s.lastTickNano, nowUTC.UnixNano())
	atomic.AddUint64(&s.ticks, 1)
}

type FailsafeSnapshot struct {
	Phase string         `json:"phase"`
	State failsafe.State `json:"state"`
}

type StatusSnapshot struct {
	Service       string            `json:"service"`
	Session       string            `json:"session,omitempty"`
	NowUTC        string            `json:"now_utc"`
	UptimeSec     int64             `json:"uptime_sec"`
	Ticks         uint64            `json:"ticks"`
	LastTickUTC   string            `json:"last_tick_utc,omitempty"`
	AHRS          *ahrs.Snapshot    `json:"ahrs,omitempty"`
	Failsafe      *FailsafeSnapshot `json:"failsafe,omitempty"`
	Vehicle       *vehicle.Status   `json:"vehicle,omitempty"`
	Alerts        []notify.Message  `json:"alerts"`
	EventsDropped uint64            `json:"events_dropped"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	lastTick := atomic.LoadInt64(&s.lastTickNano)

	snap := StatusSnapshot{
		Service:   "navguard",
		Session:   s.identity().Session,
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Ticks:     atomic.LoadUint64(&s.ticks),
		Alerts:    []notify.Message{},
	}
	if lastTick != 0 {
		snap.LastTickUTC = time.Unix(0, lastTick).UTC().Format(time.RFC3339Nano)
	}

	src := s.src.Load()
	if src.AHRS != nil {
		a := src.AHRS.Snapshot()
		snap.AHRS = &a
	}
	if src.Failsafe != nil {
		snap.Failsafe = &FailsafeSnapshot{Phase: src.Failsafe.Phase().String(), State: src.Failsafe.State()}
	}
	if src.Vehicle != nil {
		v := src.Vehicle.Status()
		snap.Vehicle = &v
	}
	if src.Alerts != nil {
		snap.Alerts = append(snap.Alerts, src.Alerts.Messages()...)
	}
	if src.EventsDropped != nil {
		snap.EventsDropped = src.EventsDropped()
	}
	return snap
}
