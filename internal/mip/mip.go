// Package mip frames, validates and decodes the MicroStrain Inertial Protocol
// spoken by GQ7-class external AHRS units.
package mip

import "fmt"

const (
	syncOne = 0x75
	syncTwo = 0x65

	headerLen   = 4
	checksumLen = 2

	// MaxPayload is bounded by the single length byte in the header.
	MaxPayload = 255
)

// DescriptorSet identifies the message class of a packet.
type DescriptorSet uint8

const (
	BaseCommand   DescriptorSet = 0x01
	DMCommand     DescriptorSet = 0x0C
	SystemCommand DescriptorSet = 0x7F
	IMUData       DescriptorSet = 0x80
	GNSSData      DescriptorSet = 0x81
	FilterData    DescriptorSet = 0x82
	GNSSRecv1     DescriptorSet = 0x91
	GNSSRecv2     DescriptorSet = 0x92
)

func (d DescriptorSet) String() string {
	switch d {
	case BaseCommand:
		return "base-command"
	case DMCommand:
		return "dm-command"
	case SystemCommand:
		return "system-command"
	case IMUData:
		return "imu"
	case GNSSData:
		return "gnss"
	case FilterData:
		return "filter"
	case GNSSRecv1:
		return "gnss-recv1"
	case GNSSRecv2:
		return "gnss-recv2"
	default:
		return fmt.Sprintf("0x%02x", uint8(d))
	}
}

// Frame is one checksum-validated MIP packet.
type Frame struct {
	Descriptor DescriptorSet
	Payload    []byte
}

// Field is a single descriptor/data pair inside a packet payload.
type Field struct {
	Descriptor uint8
	Data       []byte
}

// Encode builds a complete wire packet (sync, header, fields, checksum).
func Encode(desc DescriptorSet, fields ...Field) ([]byte, error) {
	payload := make([]byte, 0, 64)
	for _, f := range fields {
		n := len(f.Data) + 2
		if n > 0xFF {
			return nil, fmt.Errorf("mip: field 0x%02x too long: %d", f.Descriptor, len(f.Data))
		}
		payload = append(payload, byte(n), f.Descriptor)
		payload = append(payload, f.Data...)
	}
	return EncodePayload(desc, payload)
}

// EncodePayload frames an already-assembled payload.
func EncodePayload(desc DescriptorSet, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("mip: payload too long: %d", len(payload))
	}
	out := make([]byte, 0, headerLen+len(payload)+checksumLen)
	out = append(out, syncOne, syncTwo, byte(desc), byte(len(payload)))
	out = append(out, payload...)
	ck1, ck2 := fletcher16(out)
	out = append(out, ck1, ck2)
	return out, nil
}

// Fields splits a payload into its fields. A zero-length or overrunning field
// rejects the whole payload.
func Fields(payload []byte) ([]Field, error) {
	var out []Field
	for i := 0; i < len(payload); {
		n := int(payload[i])
		if n < 2 {
			return nil, fmt.Errorf("mip: invalid field length %d at offset %d", n, i)
		}
		if i+n > len(payload) {
			return nil, fmt.Errorf("mip: field at offset %d overruns payload (%d > %d)", i, i+n, len(payload))
		}
		out = append(out, Field{Descriptor: payload[i+1], Data: payload[i+2 : i+n]})
		i += n
	}
	return out, nil
}
