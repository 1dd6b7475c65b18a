package ahrs

import (
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"navguard/internal/health"
	"navguard/internal/mip"
	"navguard/internal/navstate"
	"navguard/internal/serial"
)

const (
	// DefaultMaxReadBytes bounds one drain of the link.
	DefaultMaxReadBytes = 2048

	// The sensor reports no IMU temperature; downstream treats this as "unknown".
	unknownTemperatureC = -300
	baroTemperatureC    = 25
)

// OpenFunc acquires the serial link for a backend.
type OpenFunc func() (serial.Port, error)

// MicroStrain7 ingests MIP frames from a 3DM-GQ7 style sensor.
type MicroStrain7 struct {
	open    OpenFunc
	store   *navstate.Store
	pub     Publishers
	maxRead int

	port      serial.Port
	dec       *mip.Decoder
	buf       []byte
	available atomic.Bool

	imu, gnss, filter, ignored atomic.Uint64
	parseErrors, readErrors    atomic.Uint64
	frames, badSums, skipped   atomic.Uint64
	badOrigins                 atomic.Uint64
}

func NewMicroStrain7(open OpenFunc, pub Publishers, maxRead int) *MicroStrain7 {
	if maxRead <= 0 {
		maxRead = DefaultMaxReadBytes
	}
	return &MicroStrain7{
		open:    open,
		store:   navstate.NewStore(),
		pub:     pub,
		maxRead: maxRead,
		dec:     mip.NewDecoder(),
		buf:     make([]byte, maxRead),
	}
}

func (b *MicroStrain7) Name() string { return "microstrain7" }

func (b *MicroStrain7) Open() error {
	if b.open == nil {
		return serial.ErrUnsupported
	}
	p, err := b.open()
	if err != nil {
		return err
	}
	b.port = p
	b.available.Store(true)
	return nil
}

func (b *MicroStrain7) Close() error {
	if !b.available.Swap(false) {
		return nil
	}
	return b.port.Close()
}

func (b *MicroStrain7) Poll(now time.Time) {
	if !b.available.Load() {
		return
	}
	n, err := b.port.Buffered()
	if err != nil {
		b.readErrors.Add(1)
		return
	}
	if n <= 0 {
		return
	}
	if n > b.maxRead {
		n = b.maxRead
	}
	got, err := b.port.Read(b.buf[:n])
	if err != nil {
		b.readErrors.Add(1)
	}
	if got <= 0 {
		return
	}
	for _, f := range b.dec.Write(b.buf[:got]) {
		b.dispatch(now, f)
	}
	st := b.dec.Stats()
	b.frames.Store(st.Frames)
	b.badSums.Store(st.ChecksumErrors)
	b.skipped.Store(st.SkippedBytes)
}

func (b *MicroStrain7) dispatch(now time.Time, f mip.Frame) {
	pkt, err := mip.Parse(f)
	if err != nil {
		b.parseErrors.Add(1)
		return
	}
	switch p := pkt.(type) {
	case mip.IMUPacket:
		b.imu.Add(1)
		b.handleIMU(now, p)
	case mip.GNSSPacket:
		b.gnss.Add(1)
		b.handleGNSS(now, p)
	case mip.FilterPacket:
		b.filter.Add(1)
		b.handleFilter(now, p)
	case mip.CommandPacket, mip.UnknownPacket:
		b.ignored.Add(1)
	}
}

func (b *MicroStrain7) handleIMU(now time.Time, p mip.IMUPacket) {
	b.store.Update(func(st *navstate.State) {
		if p.HasAccel {
			st.Sample.Accel = p.Accel
		}
		if p.HasGyro {
			st.Sample.Gyro = p.Gyro
		}
		if p.HasQuat {
			st.Sample.Quat = p.Quat
			st.HaveQuaternion = true
		}
		st.LastINS = now
	})

	if b.pub.Inertial != nil && (p.HasAccel || p.HasGyro) {
		b.pub.Inertial.PublishInertial(InertialSample{Accel: p.Accel, Gyro: p.Gyro, TemperatureC: unknownTemperatureC})
	}
	if b.pub.Compass != nil && p.HasMag {
		b.pub.Compass.PublishMag(MagSample{Field: p.Mag})
	}
	if b.pub.Baro != nil && p.HasPressure {
		b.pub.Baro.PublishBaro(BaroSample{Instance: 0, PressurePa: p.PressurePa, TemperatureC: baroTemperatureC})
	}
}

func (b *MicroStrain7) handleGNSS(now time.Time, p mip.GNSSPacket) {
	inst, ok := mip.GNSSInstance(p.Set)
	if !ok {
		b.ignored.Add(1)
		return
	}

	var g navstate.GNSS
	var candidate bool
	b.store.Update(func(st *navstate.State) {
		gs := &st.GNSS[inst]
		if p.HasPosition {
			gs.LatDeg, gs.LonDeg, gs.MSLAltM = p.LatDeg, p.LonDeg, p.MSLAltM
			gs.HorizAccM, gs.VertAccM = p.HorizAccM, p.VertAccM
			gs.HavePosition = true
		}
		if p.HasVelocity {
			gs.VelNorth, gs.VelEast, gs.VelDown = p.VelNorth, p.VelEast, p.VelDown
			gs.SpeedAccMS = p.SpeedAccMS
		}
		if p.HasDOP {
			gs.HDOP, gs.VDOP = p.HDOP, p.VDOP
		}
		if p.HasTime {
			gs.TOWMs, gs.Week = p.TOWMs, p.Week
		}
		if p.HasFix {
			gs.FixType = uint8(p.FixType)
			gs.Satellites = p.Satellites
		}
		st.LastGPS = now

		candidate = !st.HaveOrigin && p.HasFix && p.FixType >= mip.Fix3D && gs.HavePosition
		g = *gs
	})
	if candidate {
		b.latchOrigin(inst, g)
	}

	if b.pub.GNSS != nil {
		b.pub.GNSS.PublishGNSS(GNSSFix{
			Instance:   inst,
			Week:       g.Week,
			TOWMs:      g.TOWMs,
			FixType:    g.FixType,
			Satellites: g.Satellites,
			HorizAccM:  g.HorizAccM,
			VertAccM:   g.VertAccM,
			SpeedAccMS: g.SpeedAccMS,
			HDOP:       g.HDOP,
			VDOP:       g.VDOP,
			Location:   navstate.LocationFromDegrees(g.LatDeg, g.LonDeg, g.MSLAltM),
			Velocity:   r3.Vec{X: g.VelNorth, Y: g.VelEast, Z: g.VelDown},
		})
	}
}

// latchOrigin sets the origin from the first usable 3D fix. Positions that
// are not finite or off the globe are skipped.
func (b *MicroStrain7) latchOrigin(inst int, g navstate.GNSS) {
	if !navstate.ValidPosition(g.LatDeg, g.LonDeg, g.MSLAltM) {
		b.badOrigins.Add(1)
		logf("ahrs origin rejected instance=%d lat=%v lon=%v alt=%v", inst, g.LatDeg, g.LonDeg, g.MSLAltM)
		return
	}
	origin := navstate.LocationFromDegrees(g.LatDeg, g.LonDeg, g.MSLAltM)
	if b.store.SetOriginOnce(origin) {
		logf("ahrs origin set instance=%d lat_e7=%d lon_e7=%d alt_cm=%d", inst, origin.LatE7, origin.LonE7, origin.AltCm)
	}
}

func (b *MicroStrain7) handleFilter(now time.Time, p mip.FilterPacket) {
	b.store.Update(func(st *navstate.State) {
		if p.HasStatus {
			st.Filter.Maturity = maturity(p.State)
			st.Filter.DynamicsMode = p.DynamicsMode
			st.Filter.StatusFlags = p.StatusFlags
		}
		if p.HasTime {
			st.Filter.TOWMs, st.Filter.Week = p.TOWMs, p.Week
		}
		if p.HasVelocity {
			st.Velocity = r3.Vec{X: p.VelNorth, Y: p.VelEast, Z: p.VelDown}
			st.HaveVelocity = true
		}
		if p.HasPosition {
			// Filter altitude is ellipsoidal; report MSL from the primary receiver.
			st.Location = navstate.LocationFromDegrees(p.LatDeg, p.LonDeg, st.GNSS[0].MSLAltM)
			st.HaveLocation = true
		}
		st.LastFilter = now
	})
}

func maturity(s mip.FilterState) navstate.Maturity {
	switch s {
	case mip.FilterInit:
		return navstate.MaturityInit
	case mip.FilterVertGyro:
		return navstate.MaturityCoarse
	case mip.FilterAHRS:
		return navstate.MaturityAttitudeOnly
	case mip.FilterFullNav:
		return navstate.MaturityFullNav
	}
	return navstate.MaturityUnknown
}

func (b *MicroStrain7) Healthy(now time.Time) bool {
	return b.available.Load() && health.Healthy(b.store.Snapshot(), now)
}

func (b *MicroStrain7) Initialized() bool {
	return b.available.Load() && health.Initialized(b.store.Snapshot())
}

func (b *MicroStrain7) PreArmCheck(now time.Time) (bool, string) {
	if !b.available.Load() {
		return false, "AHRS unavailable"
	}
	return health.PreArmCheck("AHRS", b.store.Snapshot(), now)
}

func (b *MicroStrain7) FilterStatus(now time.Time) health.FilterStatus {
	return health.Filter(b.store.Snapshot(), now)
}

func (b *MicroStrain7) StatusReport(now time.Time) health.StatusReport {
	return health.Report(b.store.Snapshot(), now)
}

func (b *MicroStrain7) State() navstate.State { return b.store.Snapshot() }

func (b *MicroStrain7) Origin() (navstate.Location, bool) { return b.store.Origin() }

func (b *MicroStrain7) Stats() Stats {
	return Stats{
		IMU:            b.imu.Load(),
		GNSS:           b.gnss.Load(),
		Filter:         b.filter.Load(),
		Ignored:        b.ignored.Load(),
		ParseErrors:    b.parseErrors.Load(),
		ReadErrors:     b.readErrors.Load(),
		Frames:         b.frames.Load(),
		ChecksumErrors: b.badSums.Load(),
		SkippedBytes:   b.skipped.Load(),
		BadOrigins:     b.badOrigins.Load(),
	}
}
