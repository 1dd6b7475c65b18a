package mip

import (
	"encoding/binary"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// EncodeIMU frames the present fields of p as an IMU data packet.
func EncodeIMU(p IMUPacket) ([]byte, error) {
	var fields []Field
	if p.HasAccel {
		fields = append(fields, Field{fieldIMUAccel, putVec3(r3.Scale(1/gravityMSS, p.Accel))})
	}
	if p.HasGyro {
		fields = append(fields, Field{fieldIMUGyro, putVec3(p.Gyro)})
	}
	if p.HasMag {
		fields = append(fields, Field{fieldIMUMag, putVec3(r3.Scale(0.001, p.Mag))})
	}
	if p.HasQuat {
		b := make([]byte, 0, 16)
		b = appendF32(b, p.Quat.Real)
		b = appendF32(b, p.Quat.Imag)
		b = appendF32(b, p.Quat.Jmag)
		b = appendF32(b, p.Quat.Kmag)
		fields = append(fields, Field{fieldIMUQuat, b})
	}
	if p.HasPressure {
		fields = append(fields, Field{fieldIMUPressure, appendF32(nil, p.PressurePa/100)})
	}
	return Encode(IMUData, fields...)
}

// EncodeGNSS frames the present fields of p under p.Set (GNSSRecv1 when unset).
func EncodeGNSS(p GNSSPacket) ([]byte, error) {
	set := p.Set
	if set == 0 {
		set = GNSSRecv1
	}
	var fields []Field
	if p.HasPosition {
		b := make([]byte, 0, 42)
		b = appendF64(b, p.LatDeg)
		b = appendF64(b, p.LonDeg)
		b = appendF64(b, p.MSLAltM)
		b = appendF64(b, p.MSLAltM)
		b = appendF32(b, p.HorizAccM)
		b = appendF32(b, p.VertAccM)
		b = binary.BigEndian.AppendUint16(b, 0xFFFF)
		fields = append(fields, Field{fieldGNSSLLH, b})
	}
	if p.HasVelocity {
		b := make([]byte, 0, 34)
		b = appendF32(b, p.VelNorth)
		b = appendF32(b, p.VelEast)
		b = appendF32(b, p.VelDown)
		speed := math.Sqrt(p.VelNorth*p.VelNorth + p.VelEast*p.VelEast + p.VelDown*p.VelDown)
		ground := math.Hypot(p.VelNorth, p.VelEast)
		b = appendF32(b, speed)
		b = appendF32(b, ground)
		b = appendF32(b, math.Atan2(p.VelEast, p.VelNorth)*180/math.Pi)
		b = appendF32(b, p.SpeedAccMS)
		b = appendF32(b, 0)
		b = binary.BigEndian.AppendUint16(b, 0xFFFF)
		fields = append(fields, Field{fieldGNSSNEDVel, b})
	}
	if p.HasDOP {
		b := make([]byte, 0, 30)
		b = appendF32(b, 0)
		b = appendF32(b, 0)
		b = appendF32(b, p.HDOP)
		b = appendF32(b, p.VDOP)
		b = appendF32(b, 0)
		b = appendF32(b, 0)
		b = appendF32(b, 0)
		b = binary.BigEndian.AppendUint16(b, 0xFFFF)
		fields = append(fields, Field{fieldGNSSDOP, b})
	}
	if p.HasTime {
		b := appendF64(nil, float64(p.TOWMs)/1000)
		b = binary.BigEndian.AppendUint16(b, p.Week)
		b = binary.BigEndian.AppendUint16(b, 0xFFFF)
		fields = append(fields, Field{fieldGNSSTime, b})
	}
	if p.HasFix {
		b := []byte{mipFixCode(p.FixType), p.Satellites, 0, 0, 0xFF, 0xFF}
		fields = append(fields, Field{fieldGNSSFixInfo, b})
	}
	return Encode(set, fields...)
}

// EncodeFilter frames the present fields of p as a filter data packet.
func EncodeFilter(p FilterPacket) ([]byte, error) {
	var fields []Field
	if p.HasStatus {
		b := binary.BigEndian.AppendUint16(nil, uint16(p.State))
		b = binary.BigEndian.AppendUint16(b, p.DynamicsMode)
		b = binary.BigEndian.AppendUint16(b, p.StatusFlags)
		fields = append(fields, Field{fieldFilterStatus, b})
	}
	if p.HasTime {
		b := appendF64(nil, float64(p.TOWMs)/1000)
		b = binary.BigEndian.AppendUint16(b, p.Week)
		b = binary.BigEndian.AppendUint16(b, 0xFFFF)
		fields = append(fields, Field{fieldFilterTimestamp, b})
	}
	if p.HasPosition {
		b := appendF64(nil, p.LatDeg)
		b = appendF64(b, p.LonDeg)
		b = appendF64(b, p.HAEAltM)
		b = binary.BigEndian.AppendUint16(b, 0xFFFF)
		fields = append(fields, Field{fieldFilterLLH, b})
	}
	if p.HasVelocity {
		b := appendF32(nil, p.VelNorth)
		b = appendF32(b, p.VelEast)
		b = appendF32(b, p.VelDown)
		b = binary.BigEndian.AppendUint16(b, 0xFFFF)
		fields = append(fields, Field{fieldFilterNEDVel, b})
	}
	return Encode(FilterData, fields...)
}

func mipFixCode(t FixType) byte {
	switch t {
	case Fix3D, FixDGPS:
		return 0x00
	case Fix2D:
		return 0x01
	case FixRTKFloat:
		return 0x05
	case FixRTKFixed:
		return 0x06
	default:
		return 0x03
	}
}

func putVec3(v r3.Vec) []byte {
	b := make([]byte, 0, 12)
	b = appendF32(b, v.X)
	b = appendF32(b, v.Y)
	return appendF32(b, v.Z)
}

func appendF32(b []byte, v float64) []byte {
	return binary.BigEndian.AppendUint32(b, math.Float32bits(float32(v)))
}

func appendF64(b []byte, v float64) []byte {
	return binary.BigEndian.AppendUint64(b, math.Float64bits(v))
}
