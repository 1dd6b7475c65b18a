package mip

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func testFrame(t *testing.T) []byte {
	t.Helper()
	b, err := EncodeIMU(IMUPacket{
		Accel:    r3.Vec{X: 0, Y: 0, Z: -gravityMSS},
		Gyro:     r3.Vec{X: 0.01, Y: -0.02, Z: 0.03},
		HasAccel: true,
		HasGyro:  true,
	})
	require.NoError(t, err)
	return b
}

func TestDecoder_WholeFrame(t *testing.T) {
	raw := testFrame(t)
	frames := NewDecoder().Write(raw)
	require.Len(t, frames, 1)
	assert.Equal(t, IMUData, frames[0].Descriptor)
	assert.Equal(t, raw[4:len(raw)-2], frames[0].Payload)
}

func TestDecoder_SplitAtEveryBoundary(t *testing.T) {
	raw := testFrame(t)
	want := NewDecoder().Write(raw)
	require.Len(t, want, 1)

	for split := 0; split <= len(raw); split++ {
		d := NewDecoder()
		got := d.Write(raw[:split])
		got = append(got, d.Write(raw[split:])...)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("split=%d (-want +got):\n%s", split, diff)
		}
	}

	// One byte per call.
	d := NewDecoder()
	var got []Frame
	for _, b := range raw {
		if f, ok := d.Feed(b); ok {
			got = append(got, f)
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("bytewise (-want +got):\n%s", diff)
	}
}

func TestDecoder_CorruptPayloadDroppedNextFrameParsed(t *testing.T) {
	good := testFrame(t)
	for bit := 0; bit < 8; bit++ {
		bad := append([]byte(nil), good...)
		bad[6] ^= 1 << bit

		d := NewDecoder()
		require.Empty(t, d.Write(bad), "bit=%d", bit)
		frames := d.Write(good)
		require.Len(t, frames, 1, "bit=%d", bit)
		assert.Equal(t, uint64(1), d.Stats().ChecksumErrors)
	}
}

func TestDecoder_CorruptChecksumDropped(t *testing.T) {
	bad := testFrame(t)
	bad[len(bad)-1] ^= 0xFF
	d := NewDecoder()
	assert.Empty(t, d.Write(bad))
	assert.Equal(t, uint64(1), d.Stats().ChecksumErrors)
	assert.Zero(t, d.Stats().Frames)
}

func TestDecoder_SkipsGarbageAndRepeatedSync(t *testing.T) {
	raw := testFrame(t)
	stream := append([]byte{0x00, 0x13, 0x75, 0x00, 0x75}, raw...)
	frames := NewDecoder().Write(stream)
	require.Len(t, frames, 1)
	assert.Equal(t, IMUData, frames[0].Descriptor)
}

func TestDecoder_BackToBackFrames(t *testing.T) {
	a := testFrame(t)
	b, err := EncodeFilter(FilterPacket{State: FilterFullNav, HasStatus: true})
	require.NoError(t, err)

	frames := NewDecoder().Write(append(append([]byte(nil), a...), b...))
	require.Len(t, frames, 2)
	assert.Equal(t, IMUData, frames[0].Descriptor)
	assert.Equal(t, FilterData, frames[1].Descriptor)
}

func TestDecoder_EmptyPayload(t *testing.T) {
	raw, err := EncodePayload(BaseCommand, nil)
	require.NoError(t, err)
	require.Len(t, raw, 6)

	frames := NewDecoder().Write(raw)
	require.Len(t, frames, 1)
	assert.Equal(t, BaseCommand, frames[0].Descriptor)
	assert.Empty(t, frames[0].Payload)
}

func TestDecoder_PayloadIsCopied(t *testing.T) {
	raw := testFrame(t)
	d := NewDecoder()
	first := d.Write(raw)
	require.Len(t, first, 1)
	snapshot := append([]byte(nil), first[0].Payload...)

	d.Write(raw)
	assert.Equal(t, snapshot, first[0].Payload)
}

func TestFletcher16_KnownVector(t *testing.T) {
	// Ping command from the MIP reference: 75 65 01 02 02 01 E0 C6
	raw, err := Encode(BaseCommand, Field{Descriptor: 0x01})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x75, 0x65, 0x01, 0x02, 0x02, 0x01, 0xE0, 0xC6}, raw)
}
