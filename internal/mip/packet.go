package mip

import (
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const gravityMSS = 9.80665

// IMU data field descriptors.
const (
	fieldIMUAccel    = 0x04
	fieldIMUGyro     = 0x05
	fieldIMUMag      = 0x06
	fieldIMUQuat     = 0x0A
	fieldIMUPressure = 0x17
)

// GNSS data field descriptors.
const (
	fieldGNSSLLH     = 0x03
	fieldGNSSNEDVel  = 0x05
	fieldGNSSDOP     = 0x07
	fieldGNSSTime    = 0x09
	fieldGNSSFixInfo = 0x0B
)

// Filter data field descriptors.
const (
	fieldFilterLLH       = 0x01
	fieldFilterNEDVel    = 0x02
	fieldFilterStatus    = 0x10
	fieldFilterTimestamp = 0x11
)

// FixType follows the autopilot GNSS convention (0 no GPS, 1 no fix, 2 2D, 3 3D, ...).
type FixType uint8

const (
	FixNoGPS    FixType = 0
	FixNone     FixType = 1
	Fix2D       FixType = 2
	Fix3D       FixType = 3
	FixDGPS     FixType = 4
	FixRTKFloat FixType = 5
	FixRTKFixed FixType = 6
)

// convertFixType maps the receiver's MIP fix code to FixType.
func convertFixType(mipFix byte) FixType {
	switch mipFix {
	case 0x00:
		return Fix3D
	case 0x01:
		return Fix2D
	case 0x05:
		return FixRTKFloat
	case 0x06:
		return FixRTKFixed
	default:
		return FixNone
	}
}

// FilterState is the navigation filter's reported operating state.
type FilterState uint16

const (
	FilterInit     FilterState = 0x01
	FilterVertGyro FilterState = 0x02
	FilterAHRS     FilterState = 0x03
	FilterFullNav  FilterState = 0x04
)

// Packet is a decoded frame payload. The concrete type is one of IMUPacket,
// GNSSPacket, FilterPacket, CommandPacket or UnknownPacket.
type Packet interface {
	Descriptor() DescriptorSet
}

// IMUPacket carries one inertial sample. Has* flags record which fields were present.
type IMUPacket struct {
	Accel      r3.Vec // m/s/s
	Gyro       r3.Vec // rad/s
	Mag        r3.Vec // milligauss
	Quat       quat.Number
	PressurePa float64

	HasAccel    bool
	HasGyro     bool
	HasMag      bool
	HasQuat     bool
	HasPressure bool
}

func (IMUPacket) Descriptor() DescriptorSet { return IMUData }

// GNSSPacket carries one receiver's solution.
type GNSSPacket struct {
	Set      DescriptorSet
	Instance int

	LatDeg    float64
	LonDeg    float64
	MSLAltM   float64
	HorizAccM float64
	VertAccM  float64

	VelNorth   float64
	VelEast    float64
	VelDown    float64
	SpeedAccMS float64

	HDOP float64
	VDOP float64

	TOWMs uint32
	Week  uint16

	FixType    FixType
	Satellites uint8

	HasPosition bool
	HasVelocity bool
	HasDOP      bool
	HasTime     bool
	HasFix      bool
}

func (p GNSSPacket) Descriptor() DescriptorSet { return p.Set }

// FilterPacket carries the navigation filter's solution and status.
type FilterPacket struct {
	State        FilterState
	DynamicsMode uint16
	StatusFlags  uint16

	LatDeg  float64
	LonDeg  float64
	HAEAltM float64

	VelNorth float64
	VelEast  float64
	VelDown  float64

	TOWMs uint32
	Week  uint16

	HasStatus   bool
	HasPosition bool
	HasVelocity bool
	HasTime     bool
}

func (FilterPacket) Descriptor() DescriptorSet { return FilterData }

// CommandPacket is a command or acknowledgement reply.
type CommandPacket struct {
	Set    DescriptorSet
	Fields []Field
}

func (p CommandPacket) Descriptor() DescriptorSet { return p.Set }

// UnknownPacket is any frame with an unrecognized descriptor set.
type UnknownPacket struct {
	Set DescriptorSet
}

func (p UnknownPacket) Descriptor() DescriptorSet { return p.Set }

// GNSSInstance maps a GNSS descriptor set to a receiver index.
func GNSSInstance(d DescriptorSet) (int, bool) {
	switch d {
	case GNSSData, GNSSRecv1:
		return 0, true
	case GNSSRecv2:
		return 1, true
	}
	return 0, false
}

// Parse decodes a validated frame into its typed packet.
func Parse(f Frame) (Packet, error) {
	switch f.Descriptor {
	case IMUData:
		return parseIMU(f.Payload)
	case GNSSData, GNSSRecv1, GNSSRecv2:
		return parseGNSS(f.Descriptor, f.Payload)
	case FilterData:
		return parseFilter(f.Payload)
	case BaseCommand, DMCommand, SystemCommand:
		fields, err := Fields(f.Payload)
		if err != nil {
			return nil, err
		}
		return CommandPacket{Set: f.Descriptor, Fields: fields}, nil
	}
	return UnknownPacket{Set: f.Descriptor}, nil
}

func parseIMU(payload []byte) (IMUPacket, error) {
	var p IMUPacket
	fields, err := Fields(payload)
	if err != nil {
		return p, err
	}
	for _, f := range fields {
		switch f.Descriptor {
		case fieldIMUAccel:
			if err := need(f, 12); err != nil {
				return p, err
			}
			p.Accel = r3.Scale(gravityMSS, vec3(f.Data))
			p.HasAccel = true
		case fieldIMUGyro:
			if err := need(f, 12); err != nil {
				return p, err
			}
			p.Gyro = vec3(f.Data)
			p.HasGyro = true
		case fieldIMUMag:
			if err := need(f, 12); err != nil {
				return p, err
			}
			p.Mag = r3.Scale(1000, vec3(f.Data))
			p.HasMag = true
		case fieldIMUQuat:
			if err := need(f, 16); err != nil {
				return p, err
			}
			p.Quat = quat.Number{
				Real: f32(f.Data, 0),
				Imag: f32(f.Data, 4),
				Jmag: f32(f.Data, 8),
				Kmag: f32(f.Data, 12),
			}
			p.HasQuat = true
		case fieldIMUPressure:
			if err := need(f, 4); err != nil {
				return p, err
			}
			p.PressurePa = f32(f.Data, 0) * 100
			p.HasPressure = true
		}
	}
	return p, nil
}

func parseGNSS(set DescriptorSet, payload []byte) (GNSSPacket, error) {
	p := GNSSPacket{Set: set}
	p.Instance, _ = GNSSInstance(set)
	fields, err := Fields(payload)
	if err != nil {
		return p, err
	}
	for _, f := range fields {
		switch f.Descriptor {
		case fieldGNSSLLH:
			if err := need(f, 40); err != nil {
				return p, err
			}
			p.LatDeg = f64(f.Data, 0)
			p.LonDeg = f64(f.Data, 8)
			p.MSLAltM = f64(f.Data, 24)
			p.HorizAccM = f32(f.Data, 32)
			p.VertAccM = f32(f.Data, 36)
			p.HasPosition = true
		case fieldGNSSNEDVel:
			if err := need(f, 28); err != nil {
				return p, err
			}
			p.VelNorth = f32(f.Data, 0)
			p.VelEast = f32(f.Data, 4)
			p.VelDown = f32(f.Data, 8)
			p.SpeedAccMS = f32(f.Data, 24)
			p.HasVelocity = true
		case fieldGNSSDOP:
			if err := need(f, 16); err != nil {
				return p, err
			}
			p.HDOP = f32(f.Data, 8)
			p.VDOP = f32(f.Data, 12)
			p.HasDOP = true
		case fieldGNSSTime:
			if err := need(f, 10); err != nil {
				return p, err
			}
			p.TOWMs = towMs(f64(f.Data, 0))
			p.Week = binary.BigEndian.Uint16(f.Data[8:])
			p.HasTime = true
		case fieldGNSSFixInfo:
			if err := need(f, 2); err != nil {
				return p, err
			}
			p.FixType = convertFixType(f.Data[0])
			p.Satellites = f.Data[1]
			p.HasFix = true
		}
	}
	return p, nil
}

func parseFilter(payload []byte) (FilterPacket, error) {
	var p FilterPacket
	fields, err := Fields(payload)
	if err != nil {
		return p, err
	}
	for _, f := range fields {
		switch f.Descriptor {
		case fieldFilterStatus:
			if err := need(f, 6); err != nil {
				return p, err
			}
			p.State = FilterState(binary.BigEndian.Uint16(f.Data[0:]))
			p.DynamicsMode = binary.BigEndian.Uint16(f.Data[2:])
			p.StatusFlags = binary.BigEndian.Uint16(f.Data[4:])
			p.HasStatus = true
		case fieldFilterTimestamp:
			if err := need(f, 10); err != nil {
				return p, err
			}
			p.TOWMs = towMs(f64(f.Data, 0))
			p.Week = binary.BigEndian.Uint16(f.Data[8:])
			p.HasTime = true
		case fieldFilterLLH:
			if err := need(f, 24); err != nil {
				return p, err
			}
			p.LatDeg = f64(f.Data, 0)
			p.LonDeg = f64(f.Data, 8)
			p.HAEAltM = f64(f.Data, 16)
			p.HasPosition = true
		case fieldFilterNEDVel:
			if err := need(f, 12); err != nil {
				return p, err
			}
			p.VelNorth = f32(f.Data, 0)
			p.VelEast = f32(f.Data, 4)
			p.VelDown = f32(f.Data, 8)
			p.HasVelocity = true
		}
	}
	return p, nil
}

func need(f Field, n int) error {
	if len(f.Data) < n {
		return fmt.Errorf("mip: field 0x%02x too short: %d < %d", f.Descriptor, len(f.Data), n)
	}
	return nil
}

func f32(b []byte, off int) float64 {
	return float64(math.Float32frombits(binary.BigEndian.Uint32(b[off:])))
}

func f64(b []byte, off int) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(b[off:]))
}

func vec3(b []byte) r3.Vec {
	return r3.Vec{X: f32(b, 0), Y: f32(b, 4), Z: f32(b, 8)}
}

func towMs(towSec float64) uint32 {
	ms := towSec * 1000
	if ms <= 0 || math.IsNaN(ms) {
		return 0
	}
	if ms >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(ms)
}
