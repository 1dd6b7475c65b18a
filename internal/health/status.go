package health

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"navguard/internal/navstate"
)

// FilterStatus mirrors the autopilot's nav filter status flags.
type FilterStatus struct {
	Attitude        bool `json:"attitude"`
	HorizVel        bool `json:"horiz_vel"`
	VertVel         bool `json:"vert_vel"`
	HorizPosRel     bool `json:"horiz_pos_rel"`
	HorizPosAbs     bool `json:"horiz_pos_abs"`
	VertPos         bool `json:"vert_pos"`
	TerrainAlt      bool `json:"terrain_alt"`
	ConstPosMode    bool `json:"const_pos_mode"`
	PredHorizPosRel bool `json:"pred_horiz_pos_rel"`
	PredHorizPosAbs bool `json:"pred_horiz_pos_abs"`
	UsingGPS        bool `json:"using_gps"`
	Initialized     bool `json:"initialized"`
}

// Status report flag bits (MAVLink EKF_STATUS_FLAGS).
const (
	FlagAttitude        uint16 = 1 << 0
	FlagVelocityHoriz   uint16 = 1 << 1
	FlagVelocityVert    uint16 = 1 << 2
	FlagPosHorizRel     uint16 = 1 << 3
	FlagPosHorizAbs     uint16 = 1 << 4
	FlagPosVertAbs      uint16 = 1 << 5
	FlagPosVertAGL      uint16 = 1 << 6
	FlagConstPosMode    uint16 = 1 << 7
	FlagPredPosHorizRel uint16 = 1 << 8
	FlagPredPosHorizAbs uint16 = 1 << 9
	FlagUninitialized   uint16 = 1 << 10
)

// The sensor posts at roughly 4 Hz; accuracies are divided by these gates to
// form the reported test ratios.
const (
	velGate = 4.0
	posGate = 4.0
	hgtGate = 4.0
)

// StatusReport is the estimator quality summary sent on the telemetry channel.
type StatusReport struct {
	Flags       uint16  `json:"flags"`
	Velocity    float64 `json:"velocity_variance"`
	PosHoriz    float64 `json:"pos_horiz_variance"`
	PosVert     float64 `json:"pos_vert_variance"`
	MagVariance float64 `json:"compass_variance"`
}

// VarianceSample is the estimator's uncertainty set consumed by the failsafe monitor.
type VarianceSample struct {
	Mag      r3.Vec
	Velocity float64
	Position float64
	Height   float64
	Airspeed float64
	HaveTAS  bool
	Offset   [2]float64
}

// Filter computes the nav filter status flags.
func Filter(st navstate.State, now time.Time) FilterStatus {
	var fs FilterStatus
	if !st.LastINS.IsZero() && !st.LastGPS.IsZero() {
		fs.Initialized = true
	}
	if Healthy(st, now) && !st.LastINS.IsZero() {
		fs.Attitude = true
		fs.VertVel = true
		fs.VertPos = true
		if st.Filter.Maturity.Navigating() {
			fs.HorizVel = true
			fs.HorizPosRel = true
			fs.HorizPosAbs = true
			fs.PredHorizPosRel = true
			fs.PredHorizPosAbs = true
			fs.UsingGPS = true
		}
	}
	return fs
}

// Flags packs a FilterStatus into the status report bitmask.
func (fs FilterStatus) Flags() uint16 {
	var f uint16
	set := func(cond bool, bit uint16) {
		if cond {
			f |= bit
		}
	}
	set(fs.Attitude, FlagAttitude)
	set(fs.HorizVel, FlagVelocityHoriz)
	set(fs.VertVel, FlagVelocityVert)
	set(fs.HorizPosRel, FlagPosHorizRel)
	set(fs.HorizPosAbs, FlagPosHorizAbs)
	set(fs.VertPos, FlagPosVertAbs)
	set(fs.TerrainAlt, FlagPosVertAGL)
	set(fs.ConstPosMode, FlagConstPosMode)
	set(fs.PredHorizPosRel, FlagPredPosHorizRel)
	set(fs.PredHorizPosAbs, FlagPredPosHorizAbs)
	set(!fs.Initialized, FlagUninitialized)
	return f
}

// Report builds the status report. Accuracy figures come from GNSS instance 0.
func Report(st navstate.State, now time.Time) StatusReport {
	g := st.GNSS[0]
	return StatusReport{
		Flags:    Filter(st, now).Flags(),
		Velocity: g.SpeedAccMS / velGate,
		PosHoriz: g.HorizAccM / posGate,
		PosVert:  g.VertAccM / hgtGate,
		// The sensor does not fuse the magnetometer into its variance output.
		MagVariance: 0,
	}
}

// Variances derives the failsafe variance sample from the same figures as Report.
func Variances(st navstate.State) VarianceSample {
	g := st.GNSS[0]
	return VarianceSample{
		Velocity: g.SpeedAccMS / velGate,
		Position: g.HorizAccM / posGate,
		Height:   g.VertAccM / hgtGate,
	}
}

// PositionOK is the position-quality check used when fewer than two variances
// are over threshold.
func PositionOK(fs FilterStatus, armed bool) bool {
	if !armed {
		return fs.HorizPosAbs || fs.PredHorizPosAbs
	}
	return (fs.HorizPosAbs || fs.HorizPosRel) && !fs.ConstPosMode
}
