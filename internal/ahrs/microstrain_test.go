package ahrs

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"navguard/internal/mip"
	"navguard/internal/navstate"
	"navguard/internal/serial"
)

type recordingSinks struct {
	inertial []InertialSample
	mag      []MagSample
	baro     []BaroSample
	gnss     []GNSSFix
}

func (r *recordingSinks) PublishInertial(s InertialSample) { r.inertial = append(r.inertial, s) }
func (r *recordingSinks) PublishMag(s MagSample)           { r.mag = append(r.mag, s) }
func (r *recordingSinks) PublishBaro(s BaroSample)         { r.baro = append(r.baro, s) }
func (r *recordingSinks) PublishGNSS(s GNSSFix)            { r.gnss = append(r.gnss, s) }

func (r *recordingSinks) publishers() Publishers {
	return Publishers{Inertial: r, Compass: r, Baro: r, GNSS: r}
}

func newTestBackend(t *testing.T, maxRead int) (*MicroStrain7, *serial.MemoryPort, *recordingSinks) {
	t.Helper()
	port := serial.NewMemoryPort()
	sinks := &recordingSinks{}
	b := NewMicroStrain7(func() (serial.Port, error) { return port, nil }, sinks.publishers(), maxRead)
	require.NoError(t, b.Open())
	return b, port, sinks
}

func mustFrame(t *testing.T) func([]byte, error) []byte {
	return func(b []byte, err error) []byte {
		t.Helper()
		require.NoError(t, err)
		return b
	}
}

func imuFrame(t *testing.T) []byte {
	return mustFrame(t)(mip.EncodeIMU(mip.IMUPacket{
		Accel:       r3.Vec{X: 0.5, Z: -9.80665},
		Gyro:        r3.Vec{Z: 0.25},
		Mag:         r3.Vec{X: 250, Z: 400},
		Quat:        quat.Number{Real: 1},
		PressurePa:  100000,
		HasAccel:    true,
		HasGyro:     true,
		HasMag:      true,
		HasQuat:     true,
		HasPressure: true,
	}))
}

func gnssFrame(t *testing.T, set mip.DescriptorSet, fix mip.FixType, lat, lon float64) []byte {
	return mustFrame(t)(mip.EncodeGNSS(mip.GNSSPacket{
		Set:         set,
		LatDeg:      lat,
		LonDeg:      lon,
		MSLAltM:     120,
		HorizAccM:   2,
		VertAccM:    3,
		VelNorth:    1,
		SpeedAccMS:  0.4,
		HDOP:        0.9,
		VDOP:        1.1,
		TOWMs:       1000,
		Week:        2300,
		FixType:     fix,
		Satellites:  12,
		HasPosition: true,
		HasVelocity: true,
		HasDOP:      true,
		HasTime:     true,
		HasFix:      true,
	}))
}

func filterFrame(t *testing.T, state mip.FilterState) []byte {
	return mustFrame(t)(mip.EncodeFilter(mip.FilterPacket{
		State:       state,
		LatDeg:      45.5,
		LonDeg:      -122.5,
		HAEAltM:     90,
		VelNorth:    1,
		VelEast:     2,
		VelDown:     -0.5,
		HasStatus:   true,
		HasPosition: true,
		HasVelocity: true,
	}))
}

func TestMicroStrain7_IMUUpdatesStateAndPublishes(t *testing.T) {
	b, port, sinks := newTestBackend(t, 0)
	now := time.Unix(1000, 0)

	port.Feed(imuFrame(t))
	b.Poll(now)

	st := b.State()
	require.Equal(t, now, st.LastINS)
	require.True(t, st.HaveQuaternion)
	require.InDelta(t, 0.25, st.Sample.Gyro.Z, 1e-6)

	require.Len(t, sinks.inertial, 1)
	require.Equal(t, float64(unknownTemperatureC), sinks.inertial[0].TemperatureC)
	require.InDelta(t, 0.5, sinks.inertial[0].Accel.X, 1e-5)
	require.Len(t, sinks.mag, 1)
	require.InDelta(t, 250, sinks.mag[0].Field.X, 1e-3)
	require.Equal(t, []BaroSample{{Instance: 0, PressurePa: 100000, TemperatureC: baroTemperatureC}}, sinks.baro)
	require.Equal(t, uint64(1), b.Stats().IMU)
}

func TestMicroStrain7_GNSSInstancesAndOriginLatch(t *testing.T) {
	b, port, sinks := newTestBackend(t, 0)
	now := time.Unix(1000, 0)

	// A 2D fix does not set the origin.
	port.Feed(gnssFrame(t, mip.GNSSRecv1, mip.Fix2D, 10, 20))
	b.Poll(now)
	_, ok := b.Origin()
	require.False(t, ok)

	port.Feed(gnssFrame(t, mip.GNSSRecv1, mip.Fix3D, 45, -122))
	b.Poll(now.Add(time.Second))
	origin, ok := b.Origin()
	require.True(t, ok)
	require.Equal(t, navstate.LocationFromDegrees(45, -122, 120), origin)

	// A later fix elsewhere on the second receiver keeps the origin.
	port.Feed(gnssFrame(t, mip.GNSSRecv2, mip.Fix3D, 46, -121))
	b.Poll(now.Add(2 * time.Second))
	origin, _ = b.Origin()
	require.Equal(t, navstate.LocationFromDegrees(45, -122, 120), origin)

	st := b.State()
	require.Equal(t, uint8(3), st.GNSS[0].FixType)
	require.InDelta(t, 46, st.GNSS[1].LatDeg, 1e-9)
	require.Equal(t, uint8(12), st.GNSS[1].Satellites)
	require.Equal(t, now.Add(2*time.Second), st.LastGPS)

	require.Len(t, sinks.gnss, 3)
	require.Equal(t, 1, sinks.gnss[2].Instance)
	require.Equal(t, uint16(2300), sinks.gnss[2].Week)
	require.InDelta(t, 0.9, sinks.gnss[2].HDOP, 1e-6)
}

func TestMicroStrain7_FilterUpdatesMaturityVelocityLocation(t *testing.T) {
	b, port, _ := newTestBackend(t, 0)
	now := time.Unix(1000, 0)

	port.Feed(gnssFrame(t, mip.GNSSRecv1, mip.Fix3D, 45, -122))
	port.Feed(filterFrame(t, mip.FilterVertGyro))
	b.Poll(now)

	st := b.State()
	require.Equal(t, navstate.MaturityCoarse, st.Filter.Maturity)
	require.Equal(t, now, st.LastFilter)
	require.True(t, st.HaveVelocity)
	require.InDelta(t, -0.5, st.Velocity.Z, 1e-6)
	require.True(t, st.HaveLocation)
	require.Equal(t, navstate.LocationFromDegrees(45.5, -122.5, 120), st.Location)

	port.Feed(filterFrame(t, mip.FilterFullNav))
	b.Poll(now)
	require.Equal(t, navstate.MaturityFullNav, b.State().Filter.Maturity)
}

func TestMicroStrain7_IgnoresCommandsAndCountsErrors(t *testing.T) {
	b, port, sinks := newTestBackend(t, 0)
	now := time.Unix(1000, 0)

	port.Feed(mustFrame(t)(mip.Encode(mip.BaseCommand, mip.Field{Descriptor: 0xF1, Data: []byte{0x01, 0x00}})))
	port.Feed(mustFrame(t)(mip.EncodePayload(0x55, []byte{0x02, 0x01})))
	// Field length overruns the payload.
	port.Feed(mustFrame(t)(mip.EncodePayload(mip.IMUData, []byte{0x09, 0x04, 0x00})))
	b.Poll(now)

	stats := b.Stats()
	require.Equal(t, uint64(2), stats.Ignored)
	require.Equal(t, uint64(1), stats.ParseErrors)
	require.Equal(t, uint64(3), stats.Frames)
	require.Empty(t, sinks.inertial)
	require.True(t, b.State().LastINS.IsZero())
}

func TestMicroStrain7_DrainIsBounded(t *testing.T) {
	b, port, _ := newTestBackend(t, 16)
	frame := imuFrame(t)
	require.Greater(t, len(frame), 16)
	port.Feed(frame)

	b.Poll(time.Unix(1, 0))
	left, err := port.Buffered()
	require.NoError(t, err)
	require.Equal(t, len(frame)-16, left)
	require.Zero(t, b.Stats().IMU)

	for i := 0; left > 0 && i < 10; i++ {
		b.Poll(time.Unix(1, 0))
		left, _ = port.Buffered()
	}
	require.Equal(t, uint64(1), b.Stats().IMU)
}

func TestMicroStrain7_CorruptFrameDoesNotWedge(t *testing.T) {
	b, port, _ := newTestBackend(t, 0)
	bad := imuFrame(t)
	bad[8] ^= 0x01
	port.Feed(bad)
	port.Feed(filterFrame(t, mip.FilterAHRS))
	b.Poll(time.Unix(1, 0))

	stats := b.Stats()
	require.Equal(t, uint64(1), stats.ChecksumErrors)
	require.Zero(t, stats.IMU)
	require.Equal(t, uint64(1), stats.Filter)
}

func TestMicroStrain7_HealthAfterFullStream(t *testing.T) {
	b, port, _ := newTestBackend(t, 0)
	now := time.Unix(1000, 0)

	port.Feed(imuFrame(t))
	port.Feed(gnssFrame(t, mip.GNSSRecv1, mip.Fix3D, 45, -122))
	port.Feed(filterFrame(t, mip.FilterFullNav))
	b.Poll(now)

	require.True(t, b.Healthy(now.Add(10*time.Millisecond)))
	require.True(t, b.Initialized())
	ok, reason := b.PreArmCheck(now.Add(10 * time.Millisecond))
	require.True(t, ok, reason)

	require.False(t, b.Healthy(now.Add(41*time.Millisecond)))
	ok, reason = b.PreArmCheck(now.Add(41 * time.Millisecond))
	require.False(t, ok)
	require.Equal(t, "AHRS unhealthy", reason)
}

func TestMicroStrain7_OpenFailureIsUnavailable(t *testing.T) {
	port := serial.NewMemoryPort()
	b := NewMicroStrain7(func() (serial.Port, error) { return nil, serial.ErrUnsupported }, Publishers{}, 0)
	require.Error(t, b.Open())

	port.Feed(imuFrame(t))
	b.Poll(time.Unix(1, 0))
	require.False(t, b.Healthy(time.Unix(1, 0)))
	require.False(t, b.Initialized())
	ok, reason := b.PreArmCheck(time.Unix(1, 0))
	require.False(t, ok)
	require.Equal(t, "AHRS unavailable", reason)
}

func TestMaturity(t *testing.T) {
	require.Equal(t, navstate.MaturityInit, maturity(mip.FilterInit))
	require.Equal(t, navstate.MaturityCoarse, maturity(mip.FilterVertGyro))
	require.Equal(t, navstate.MaturityAttitudeOnly, maturity(mip.FilterAHRS))
	require.Equal(t, navstate.MaturityFullNav, maturity(mip.FilterFullNav))
	require.Equal(t, navstate.MaturityUnknown, maturity(0x99))
}

func TestMicroStrain7_UnusableFixDoesNotLatchOrigin(t *testing.T) {
	b, port, _ := newTestBackend(t, 0)
	now := time.Unix(1000, 0)

	port.Feed(gnssFrame(t, mip.GNSSRecv1, mip.Fix3D, math.NaN(), -122))
	port.Feed(gnssFrame(t, mip.GNSSRecv1, mip.Fix3D, 500, -122))
	port.Feed(gnssFrame(t, mip.GNSSRecv1, mip.Fix3D, 45, math.Inf(1)))
	b.Poll(now)
	_, ok := b.Origin()
	require.False(t, ok)
	require.Equal(t, uint64(3), b.Stats().BadOrigins)

	// The next good fix still latches.
	port.Feed(gnssFrame(t, mip.GNSSRecv1, mip.Fix3D, 45, -122))
	b.Poll(now.Add(time.Second))
	origin, ok := b.Origin()
	require.True(t, ok)
	require.Equal(t, navstate.LocationFromDegrees(45, -122, 120), origin)
}

func TestMicroStrain7_CloseReleasesLink(t *testing.T) {
	b, port, _ := newTestBackend(t, 0)
	require.NoError(t, b.Close())
	require.True(t, port.Closed())
	require.NoError(t, b.Close())

	port.Feed(imuFrame(t))
	b.Poll(time.Unix(1, 0))
	require.Zero(t, b.Stats().IMU)
	require.False(t, b.Initialized())
}
