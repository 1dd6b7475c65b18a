package ahrs

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"navguard/internal/health"
	"navguard/internal/navstate"
)

// Backend is one external AHRS protocol source. The Service drives it from a
// single goroutine; the read-side methods are safe from any goroutine.
type Backend interface {
	Name() string
	// Open acquires the serial link. It is called at most once.
	Open() error
	// Poll drains one bounded chunk from the link and applies every complete frame.
	Poll(now time.Time)
	// Close releases the link. Poll does nothing afterwards.
	Close() error

	Healthy(now time.Time) bool
	Initialized() bool
	PreArmCheck(now time.Time) (bool, string)
	FilterStatus(now time.Time) health.FilterStatus
	StatusReport(now time.Time) health.StatusReport

	State() navstate.State
	Origin() (navstate.Location, bool)
	Stats() Stats
}

// Stats counts what a backend has consumed.
type Stats struct {
	IMU         uint64 `json:"imu"`
	GNSS        uint64 `json:"gnss"`
	Filter      uint64 `json:"filter"`
	Ignored     uint64 `json:"ignored"`
	ParseErrors uint64 `json:"parse_errors"`
	ReadErrors  uint64 `json:"read_errors"`

	Frames         uint64 `json:"frames"`
	ChecksumErrors uint64 `json:"checksum_errors"`
	SkippedBytes   uint64 `json:"skipped_bytes"`
	// BadOrigins counts 3D fixes whose position could not seed the origin.
	BadOrigins uint64 `json:"bad_origins"`
}

// InertialSample is the inertial subset forwarded downstream.
type InertialSample struct {
	Accel        r3.Vec
	Gyro         r3.Vec
	TemperatureC float64
}

type MagSample struct {
	Field r3.Vec // milligauss
}

type BaroSample struct {
	Instance     int
	PressurePa   float64
	TemperatureC float64
}

// GNSSFix is one receiver's solution as forwarded downstream.
type GNSSFix struct {
	Instance   int
	Week       uint16
	TOWMs      uint32
	FixType    uint8
	Satellites uint8
	HorizAccM  float64
	VertAccM   float64
	SpeedAccMS float64
	HDOP       float64
	VDOP       float64
	Location   navstate.Location
	Velocity   r3.Vec
}

// Downstream sinks. Calls are fire-and-forget: implementations must not block.
type InertialSink interface{ PublishInertial(InertialSample) }
type CompassSink interface{ PublishMag(MagSample) }
type BaroSink interface{ PublishBaro(BaroSample) }
type GNSSSink interface{ PublishGNSS(GNSSFix) }

// Publishers groups the downstream sinks. Nil members are skipped.
type Publishers struct {
	Inertial InertialSink
	Compass  CompassSink
	Baro     BaroSink
	GNSS     GNSSSink
}
