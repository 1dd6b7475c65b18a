// Package navstate holds the latest accepted navigation values from an
// external AHRS and hands out consistent snapshots of them.
package navstate

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// NumGNSS is the number of receiver instances tracked.
const NumGNSS = 2

// Maturity is the estimator's confidence tier. Values are ordered.
type Maturity uint8

const (
	MaturityUnknown Maturity = iota
	MaturityInit
	MaturityCoarse
	MaturityAttitudeOnly
	MaturityFullNav
)

func (m Maturity) String() string {
	switch m {
	case MaturityInit:
		return "init"
	case MaturityCoarse:
		return "coarse"
	case MaturityAttitudeOnly:
		return "attitude-only"
	case MaturityFullNav:
		return "full-nav"
	default:
		return "unknown"
	}
}

// Navigating reports whether the estimator is producing attitude or better.
func (m Maturity) Navigating() bool {
	return m == MaturityAttitudeOnly || m == MaturityFullNav
}

// Location is an absolute position in 1e-7 degrees and centimetres above MSL.
type Location struct {
	LatE7 int32 `json:"lat_e7"`
	LonE7 int32 `json:"lon_e7"`
	AltCm int32 `json:"alt_cm"`
}

// LocationFromDegrees converts degrees and metres into a Location. Values that
// do not fit saturate; NaN becomes zero.
func LocationFromDegrees(latDeg, lonDeg, altM float64) Location {
	return Location{
		LatE7: toInt32(latDeg * 1e7),
		LonE7: toInt32(lonDeg * 1e7),
		AltCm: toInt32(altM * 100),
	}
}

// ValidPosition reports whether a fix position is finite and on the globe,
// with an altitude a Location can hold.
func ValidPosition(latDeg, lonDeg, altM float64) bool {
	for _, v := range [...]float64{latDeg, lonDeg, altM} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return math.Abs(latDeg) <= 90 && math.Abs(lonDeg) <= 180 &&
		math.Abs(altM*100) <= math.MaxInt32
}

func toInt32(v float64) int32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}

// Sample is the latest inertial sample.
type Sample struct {
	Accel r3.Vec
	Gyro  r3.Vec
	Quat  quat.Number
}

// GNSS is the per-receiver state.
type GNSS struct {
	FixType    uint8
	Satellites uint8

	HorizAccM  float64
	VertAccM   float64
	SpeedAccMS float64
	HDOP       float64
	VDOP       float64

	LatDeg  float64
	LonDeg  float64
	MSLAltM float64

	VelNorth float64
	VelEast  float64
	VelDown  float64

	TOWMs uint32
	Week  uint16

	HavePosition bool
}

// Filter is the estimator's latest status.
type Filter struct {
	Maturity     Maturity
	DynamicsMode uint16
	StatusFlags  uint16
	TOWMs        uint32
	Week         uint16
}

// State is the aggregate navigation state. Zero timestamps mean "never".
type State struct {
	Sample         Sample
	HaveQuaternion bool

	Velocity     r3.Vec
	HaveVelocity bool

	Location     Location
	HaveLocation bool

	Origin     Location
	HaveOrigin bool

	GNSS   [NumGNSS]GNSS
	Filter Filter

	LastINS    time.Time
	LastGPS    time.Time
	LastFilter time.Time
}

// Store guards a State. Writers go through Update; readers take snapshots.
type Store struct {
	mu    sync.RWMutex
	state State
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Update applies fn to the state under the write lock. fn must not block.
//
// Timestamps never move backwards and an origin, once set, is kept, whatever fn does.
func (s *Store) Update(fn func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	fn(&s.state)
	if prev.HaveOrigin {
		s.state.Origin = prev.Origin
		s.state.HaveOrigin = true
	}
	s.state.LastINS = latest(prev.LastINS, s.state.LastINS)
	s.state.LastGPS = latest(prev.LastGPS, s.state.LastGPS)
	s.state.LastFilter = latest(prev.LastFilter, s.state.LastFilter)
}

// Snapshot returns a copy of the whole state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Origin returns the latched origin, if any.
func (s *Store) Origin() (Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Origin, s.state.HaveOrigin
}

// SetOriginOnce latches loc as origin if none is set yet. It reports whether
// this call set it.
func (s *Store) SetOriginOnce(loc Location) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.HaveOrigin {
		return false
	}
	s.state.Origin = loc
	s.state.HaveOrigin = true
	return true
}

func latest(a, b time.Time) time.Time {
	if b.Before(a) {
		return a
	}
	return b
}
