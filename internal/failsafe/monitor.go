// Package failsafe watches estimator variances and position quality on a
// fixed-rate tick and forces the vehicle into a safe mode when they stay bad.
package failsafe

import (
	"fmt"
	"log"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"navguard/internal/eventlog"
	"navguard/internal/health"
	"navguard/internal/navstate"
	"navguard/internal/notify"
	"navguard/internal/vehicle"
)

var logf = log.Printf

const (
	DefaultIterations   = 10
	DefaultWarnInterval = 30 * time.Second
	DefaultThreshold    = 0.8
)

type OriginSource interface {
	Origin() (navstate.Location, bool)
}

type VarianceSource interface {
	Variances() health.VarianceSample
}

type PositionChecker interface {
	PositionOK(armed bool) bool
}

// Vehicle is the mode arbiter as seen by the monitor.
type Vehicle interface {
	Armed() bool
	Mode() vehicle.Mode
	RequestModeChange(target vehicle.Mode, reason vehicle.Reason) error
}

type EventLog interface {
	Log(s eventlog.Subsystem, c eventlog.Code)
}

type Config struct {
	// Threshold <= 0 disables the check.
	Threshold    float64
	Iterations   int
	WarnInterval time.Duration
	FallbackMode vehicle.Mode
}

func DefaultConfig() Config {
	return Config{
		Threshold:    DefaultThreshold,
		Iterations:   DefaultIterations,
		WarnInterval: DefaultWarnInterval,
		FallbackMode: vehicle.ModeHold,
	}
}

// Deps are the monitor's collaborators. Alerter, Log and Indicator may be nil.
type Deps struct {
	Origin    OriginSource
	Variances VarianceSource
	Position  PositionChecker
	Vehicle   Vehicle
	Alerter   notify.Alerter
	Log       EventLog
	Indicator notify.Indicator
}

// State is the monitor's persistent state.
type State struct {
	Count     int       `json:"count"`
	Tripped   bool      `json:"tripped"`
	LastAlert time.Time `json:"last_alert"`
	// Failsafe is the action latch: set on trip, cleared on recovery or disarm.
	Failsafe bool `json:"failsafe"`
}

// Phase names the monitor's externally visible state.
type Phase struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func (p Phase) String() string {
	if p.Name == "degrading" {
		return fmt.Sprintf("degrading(%d)", p.Count)
	}
	return p.Name
}

// Monitor is constructed once and ticked from the control schedule.
type Monitor struct {
	cfg  Config
	deps Deps

	mu       sync.Mutex
	st       State
	disabled bool
}

func New(cfg Config, deps Deps) *Monitor {
	if cfg.Iterations <= 0 {
		cfg.Iterations = DefaultIterations
	}
	if cfg.WarnInterval <= 0 {
		cfg.WarnInterval = DefaultWarnInterval
	}
	return &Monitor{cfg: cfg, deps: deps}
}

// SetThreshold changes the variance threshold; <= 0 disables the check.
func (m *Monitor) SetThreshold(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Threshold = v
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st
}

func (m *Monitor) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.disabled:
		return Phase{Name: "disabled"}
	case m.st.Tripped:
		return Phase{Name: "tripped", Count: m.st.Count}
	case m.st.Count > 0:
		return Phase{Name: "degrading", Count: m.st.Count}
	}
	return Phase{Name: "ok"}
}

// Tick runs one evaluation. It is meant to be called at 10 Hz.
func (m *Monitor) Tick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// The origin never becomes unset once known.
	if _, ok := m.deps.Origin.Origin(); !ok {
		return
	}

	armed := m.deps.Vehicle.Armed()
	if !armed || m.cfg.Threshold <= 0 {
		m.disabled = true
		m.st.Count = 0
		m.st.Tripped = false
		m.indicate()
		m.failsafeOff()
		return
	}
	m.disabled = false

	if m.overThreshold(armed) {
		if !m.st.Tripped {
			m.st.Count++
			if m.st.Count >= m.cfg.Iterations {
				m.st.Count = m.cfg.Iterations
				m.st.Tripped = true
				m.log(eventlog.EKFCheck, eventlog.BadVariance)
				if m.st.LastAlert.IsZero() || now.Sub(m.st.LastAlert) > m.cfg.WarnInterval {
					if m.deps.Alerter != nil {
						m.deps.Alerter.Alert(notify.Critical, "EKF variance")
					}
					m.st.LastAlert = now
				}
				m.failsafeOn()
			}
		}
	} else if m.st.Count > 0 {
		m.st.Count--
		if m.st.Tripped && m.st.Count == 0 {
			m.st.Tripped = false
			m.log(eventlog.EKFCheck, eventlog.VarianceCleared)
			m.failsafeOff()
		}
	}

	m.indicate()
}

// overThreshold is true when two of the magnetometer, velocity and position
// variances are at or over threshold, or else when position is not usable.
func (m *Monitor) overThreshold(armed bool) bool {
	v := m.deps.Variances.Variances()
	over := 0
	if r3.Norm(v.Mag) >= m.cfg.Threshold {
		over++
	}
	if v.Velocity >= m.cfg.Threshold {
		over++
	}
	if v.Position >= m.cfg.Threshold {
		over++
	}
	if over >= 2 {
		return true
	}
	return !m.deps.Position.PositionOK(armed)
}

func (m *Monitor) failsafeOn() {
	if m.st.Failsafe {
		return
	}
	m.st.Failsafe = true
	m.log(eventlog.FailsafeEKFInav, eventlog.FailsafeOccurred)

	mode := m.deps.Vehicle.Mode()
	if !mode.RequiresPosition() && !mode.RequiresVelocity() {
		return
	}
	logf("failsafe ekf action mode=%s fallback=%s", mode, m.cfg.FallbackMode)
	_ = m.deps.Vehicle.RequestModeChange(m.cfg.FallbackMode, vehicle.ReasonFailsafe)
}

func (m *Monitor) failsafeOff() {
	if !m.st.Failsafe {
		return
	}
	m.st.Failsafe = false
	m.log(eventlog.FailsafeEKFInav, eventlog.FailsafeResolved)
}

func (m *Monitor) indicate() {
	if m.deps.Indicator != nil {
		m.deps.Indicator.SetFailsafe(m.st.Tripped)
	}
}

func (m *Monitor) log(s eventlog.Subsystem, c eventlog.Code) {
	if m.deps.Log != nil {
		m.deps.Log.Log(s, c)
	}
}
