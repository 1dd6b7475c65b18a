package sim

import (
	"bytes"
	"io"
	"log"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"navguard/internal/mip"
)

const (
	gravityMSS = 9.80665
	gpsEpoch   = 315964800 // 1980-01-06T00:00:00Z
	gpsLeapSec = 18
	secPerWeek = 7 * 24 * 3600

	// Streams further behind than this skip ahead instead of bursting.
	maxBacklog = time.Second
)

type GQ7Config struct {
	Track  Track
	Faults *Faults
	Loop   bool

	IMURate    time.Duration
	GNSSRate   time.Duration
	FilterRate time.Duration

	// DualAntenna also streams the second receiver.
	DualAntenna bool
}

func (c *GQ7Config) normalize() {
	if c.IMURate <= 0 {
		c.IMURate = 10 * time.Millisecond
	}
	if c.GNSSRate <= 0 {
		c.GNSSRate = 200 * time.Millisecond
	}
	if c.FilterRate <= 0 {
		c.FilterRate = 50 * time.Millisecond
	}
}

// GQ7 is an in-process serial port that streams MIP frames for a vehicle
// driving the configured track.
type GQ7 struct {
	cfg GQ7Config
	now func() time.Time

	mu         sync.Mutex
	start      time.Time
	nextIMU    time.Time
	nextGNSS   time.Time
	nextFilter time.Time
	buf        bytes.Buffer
	closed     bool
}

func NewGQ7(cfg GQ7Config, now func() time.Time) *GQ7 {
	cfg.normalize()
	if now == nil {
		now = time.Now
	}
	t := now()
	return &GQ7{cfg: cfg, now: now, start: t, nextIMU: t, nextGNSS: t, nextFilter: t}
}

func (g *GQ7) Buffered() (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, io.ErrClosedPipe
	}
	g.generate()
	return g.buf.Len(), nil
}

func (g *GQ7) Read(b []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, io.ErrClosedPipe
	}
	g.generate()
	if g.buf.Len() == 0 {
		return 0, nil
	}
	return g.buf.Read(b)
}

func (g *GQ7) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

// generate emits every frame due up to now, in time order. Callers hold mu.
func (g *GQ7) generate() {
	now := g.now()
	for _, next := range []*time.Time{&g.nextIMU, &g.nextGNSS, &g.nextFilter} {
		if now.Sub(*next) > maxBacklog {
			*next = now
		}
	}
	for {
		next, kind := g.nextIMU, 0
		if g.nextGNSS.Before(next) {
			next, kind = g.nextGNSS, 1
		}
		if g.nextFilter.Before(next) {
			next, kind = g.nextFilter, 2
		}
		if next.After(now) {
			return
		}
		cond := g.cfg.Faults.At(next.Sub(g.start), g.cfg.Loop)
		switch kind {
		case 0:
			if !cond.IMUOut {
				g.emit(mip.EncodeIMU(g.imu(next)))
			}
			g.nextIMU = next.Add(g.cfg.IMURate)
		case 1:
			if !cond.GNSSOut {
				g.emit(mip.EncodeGNSS(g.gnss(next, cond, mip.GNSSRecv1)))
				if g.cfg.DualAntenna {
					g.emit(mip.EncodeGNSS(g.gnss(next, cond, mip.GNSSRecv2)))
				}
			}
			g.nextGNSS = next.Add(g.cfg.GNSSRate)
		case 2:
			if !cond.FilterOut {
				g.emit(mip.EncodeFilter(g.filter(next, cond)))
			}
			g.nextFilter = next.Add(g.cfg.FilterRate)
		}
	}
}

func (g *GQ7) emit(frame []byte, err error) {
	if err != nil {
		log.Printf("sim: encode failed: %v", err)
		return
	}
	g.buf.Write(frame)
}

func (g *GQ7) imu(t time.Time) mip.IMUPacket {
	_, _, trk := g.cfg.Track.Position(t)
	half := trk * math.Pi / 360
	return mip.IMUPacket{
		Accel:       r3.Vec{Z: -gravityMSS},
		Gyro:        r3.Vec{},
		Mag:         r3.Vec{X: 200 * math.Cos(2*half), Y: -200 * math.Sin(2*half), Z: 400},
		Quat:        quat.Number{Real: math.Cos(half), Kmag: math.Sin(half)},
		PressurePa:  101325 - 12*g.cfg.Track.AltM,
		HasAccel:    true,
		HasGyro:     true,
		HasMag:      true,
		HasQuat:     true,
		HasPressure: true,
	}
}

func (g *GQ7) gnss(t time.Time, c Conditions, set mip.DescriptorSet) mip.GNSSPacket {
	lat, lon, _ := g.cfg.Track.Position(t)
	n, e := g.cfg.Track.Velocity(t)
	tow, week := gpsTime(t)
	return mip.GNSSPacket{
		Set:         set,
		LatDeg:      lat,
		LonDeg:      lon,
		MSLAltM:     g.cfg.Track.AltM,
		HorizAccM:   c.HorizAccM,
		VertAccM:    c.VertAccM,
		VelNorth:    n,
		VelEast:     e,
		SpeedAccMS:  c.SpeedAccMS,
		HDOP:        c.HorizAccM / 2,
		VDOP:        c.VertAccM / 2,
		TOWMs:       tow,
		Week:        week,
		FixType:     c.FixType,
		Satellites:  c.Satellites,
		HasPosition: c.FixType >= mip.Fix2D,
		HasVelocity: c.FixType >= mip.Fix2D,
		HasDOP:      true,
		HasTime:     true,
		HasFix:      true,
	}
}

func (g *GQ7) filter(t time.Time, c Conditions) mip.FilterPacket {
	lat, lon, _ := g.cfg.Track.Position(t)
	n, e := g.cfg.Track.Velocity(t)
	tow, week := gpsTime(t)
	nav := c.FilterState == mip.FilterFullNav
	return mip.FilterPacket{
		State:       c.FilterState,
		LatDeg:      lat,
		LonDeg:      lon,
		HAEAltM:     g.cfg.Track.AltM,
		VelNorth:    n,
		VelEast:     e,
		TOWMs:       tow,
		Week:        week,
		HasStatus:   true,
		HasPosition: nav,
		HasVelocity: nav,
		HasTime:     true,
	}
}

func gpsTime(t time.Time) (towMs uint32, week uint16) {
	ms := (t.UnixMilli() - gpsEpoch*1000) + gpsLeapSec*1000
	if ms < 0 {
		return 0, 0
	}
	return uint32(ms % (secPerWeek * 1000)), uint16(ms / (secPerWeek * 1000))
}
