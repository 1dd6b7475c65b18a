package ahrs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"navguard/internal/mip"
	"navguard/internal/serial"
)

type fakeSpawner struct {
	err   error
	names []string
	fns   []func()
}

func (f *fakeSpawner) Go(name string, fn func()) error {
	f.names = append(f.names, name)
	if f.err != nil {
		return f.err
	}
	f.fns = append(f.fns, fn)
	return nil
}

type countingBackend struct {
	*MicroStrain7
	opens atomic.Int32
	polls atomic.Int32
}

func (c *countingBackend) Open() error {
	c.opens.Add(1)
	return c.MicroStrain7.Open()
}

func (c *countingBackend) Poll(now time.Time) {
	c.polls.Add(1)
	c.MicroStrain7.Poll(now)
}

func init() {
	logf = func(string, ...any) {}
}

func TestService_StartOpensOnceAndSpawns(t *testing.T) {
	port := serial.NewMemoryPort()
	be := &countingBackend{MicroStrain7: NewMicroStrain7(func() (serial.Port, error) { return port, nil }, Publishers{}, 0)}
	sp := &fakeSpawner{}
	s := New(Config{Enable: true}, be, sp)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, int32(1), be.opens.Load())
	require.Equal(t, []string{"ahrs-microstrain7"}, sp.names)
	require.True(t, s.Available())
}

func TestService_SpawnFailureIsErrSpawn(t *testing.T) {
	port := serial.NewMemoryPort()
	be := NewMicroStrain7(func() (serial.Port, error) { return port, nil }, Publishers{}, 0)
	s := New(Config{Enable: true}, be, &fakeSpawner{err: errors.New("no threads")})

	err := s.Start(context.Background())
	require.ErrorIs(t, err, ErrSpawn)
	// The outcome sticks.
	require.ErrorIs(t, s.Start(context.Background()), ErrSpawn)
}

func TestService_OpenFailureIsPermanentlyUnavailable(t *testing.T) {
	be := &countingBackend{MicroStrain7: NewMicroStrain7(func() (serial.Port, error) {
		return nil, errors.New("no such device")
	}, Publishers{}, 0)}
	sp := &fakeSpawner{}
	s := New(Config{Enable: true}, be, sp)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, int32(1), be.opens.Load())
	require.Empty(t, sp.names)

	require.False(t, s.Available())
	require.False(t, s.Healthy())
	require.False(t, s.Initialized())
	ok, reason := s.PreArmCheck()
	require.False(t, ok)
	require.Equal(t, "AHRS unavailable", reason)

	snap := s.Snapshot()
	require.False(t, snap.Available)
	require.Contains(t, snap.LastError, "no such device")
}

func TestService_DisabledDoesNothing(t *testing.T) {
	be := &countingBackend{MicroStrain7: NewMicroStrain7(nil, Publishers{}, 0)}
	s := New(Config{Enable: false}, be, nil)
	require.NoError(t, s.Start(context.Background()))
	require.Zero(t, be.opens.Load())
	require.False(t, s.Available())
}

func TestService_LoopPollsUntilCancelled(t *testing.T) {
	port := serial.NewMemoryPort()
	be := &countingBackend{MicroStrain7: NewMicroStrain7(func() (serial.Port, error) { return port, nil }, Publishers{}, 0)}
	s := New(Config{Enable: true, PollInterval: time.Millisecond}, be, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	frame, err := mip.EncodeFilter(mip.FilterPacket{State: mip.FilterFullNav, HasStatus: true})
	require.NoError(t, err)
	port.Feed(frame)

	require.Eventually(t, func() bool {
		return be.Stats().Filter == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.Greater(t, be.polls.Load(), int32(0))
}

func TestService_SnapshotAndFailsafeSources(t *testing.T) {
	port := serial.NewMemoryPort()
	be := NewMicroStrain7(func() (serial.Port, error) { return port, nil }, Publishers{}, 0)
	sp := &fakeSpawner{}
	s := New(Config{Enable: true}, be, sp)
	now := time.Unix(5000, 0)
	s.now = func() time.Time { return now }
	require.NoError(t, s.Start(context.Background()))

	port.Feed(imuFrame(t))
	port.Feed(gnssFrame(t, mip.GNSSRecv1, mip.Fix3D, 45, -122))
	port.Feed(filterFrame(t, mip.FilterFullNav))
	be.Poll(now)

	snap := s.Snapshot()
	require.True(t, snap.Healthy)
	require.True(t, snap.Initialized)
	require.True(t, snap.PreArmOK)
	require.Equal(t, "full-nav", snap.Maturity)
	require.NotNil(t, snap.Origin)
	require.NotNil(t, snap.Location)
	require.Len(t, snap.GNSS, 2)
	require.Equal(t, uint64(3), snap.Stats.Frames)

	_, ok := s.Origin()
	require.True(t, ok)
	v := s.Variances()
	require.InDelta(t, 0.5, v.Position, 1e-6)
	require.InDelta(t, 0.75, v.Height, 1e-6)
	require.InDelta(t, 0.1, v.Velocity, 1e-6)
	require.True(t, s.PositionOK(true))
	require.True(t, s.PositionOK(false))

	r := s.StatusReport()
	require.Zero(t, r.Flags&0x400)
}

func TestService_ShutdownClosesLink(t *testing.T) {
	port := serial.NewMemoryPort()
	be := NewMicroStrain7(func() (serial.Port, error) { return port, nil }, Publishers{}, 0)
	s := New(Config{Enable: true, PollInterval: time.Millisecond}, be, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	require.True(t, s.Available())

	cancel()
	require.Eventually(t, port.Closed, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !s.Available() }, 2*time.Second, 5*time.Millisecond)
	ok, reason := s.PreArmCheck()
	require.False(t, ok)
	require.Equal(t, "AHRS unavailable", reason)
}
