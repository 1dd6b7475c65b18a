package sim

import (
	"math"
	"time"
)

const metersPerDegLat = 111_320.0

// Track is a deterministic figure-eight around a center point.
type Track struct {
	CenterLatDeg float64
	CenterLonDeg float64
	AltM         float64
	RadiusM      float64
	Period       time.Duration
}

func (s Track) params() (radiusM float64, period time.Duration) {
	period = s.Period
	if period <= 0 {
		period = 120 * time.Second
	}
	radiusM = s.RadiusM
	if radiusM <= 0 {
		radiusM = 100
	}
	return radiusM, period
}

func (s Track) phase(now time.Time) float64 {
	_, period := s.params()
	p := float64(now.UnixNano()%period.Nanoseconds()) / float64(period.Nanoseconds())
	return 2 * math.Pi * p
}

// Position returns the point on the track at now and the course over ground.
//
//	x = cos(w)          east
//	y = 0.5*sin(2w)     north
func (s Track) Position(now time.Time) (latDeg, lonDeg, trackDeg float64) {
	radiusM, _ := s.params()
	w := s.phase(now)
	x := math.Cos(w)
	y := 0.5 * math.Sin(2*w)

	latDeg = s.CenterLatDeg + radiusM*y/metersPerDegLat
	lonDeg = s.CenterLonDeg + radiusM*x/(metersPerDegLat*math.Cos(s.CenterLatDeg*math.Pi/180.0))

	north, east := s.Velocity(now)
	trackDeg = math.Mod(math.Atan2(east, north)*180/math.Pi+360, 360)
	return latDeg, lonDeg, trackDeg
}

// Velocity returns the NED horizontal velocity in m/s at now.
func (s Track) Velocity(now time.Time) (north, east float64) {
	radiusM, period := s.params()
	w := s.phase(now)
	rate := 2 * math.Pi / period.Seconds()
	east = -radiusM * rate * math.Sin(w)
	north = radiusM * rate * math.Cos(2*w)
	return north, east
}
