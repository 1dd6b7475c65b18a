package mip

type parseState uint8

const (
	waitSyncOne parseState = iota
	waitSyncTwo
	waitDescriptor
	waitLength
	waitPayload
	waitChecksum
)

// Stats counts decoder outcomes since construction.
type Stats struct {
	Frames         uint64 `json:"frames"`
	ChecksumErrors uint64 `json:"checksum_errors"`
	SkippedBytes   uint64 `json:"skipped_bytes"`
}

// Decoder reassembles frames from a byte stream one byte at a time.
//
// It holds all parse state between calls, so a stream may be split at any
// boundary. A corrupted packet is dropped and scanning resumes with the next
// byte; Feed never blocks and never fails.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	state    parseState
	header   [headerLen]byte
	payload  [MaxPayload]byte
	length   int
	index    int
	checksum [checksumLen]byte

	stats Stats
}

// NewDecoder returns a decoder waiting for the first sync byte.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Stats returns a copy of the decoder counters.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// Reset discards any partial packet.
func (d *Decoder) Reset() {
	d.state = waitSyncOne
	d.length = 0
	d.index = 0
}

// Feed consumes one byte. It returns a frame when b completes a valid packet.
// The returned payload is a fresh copy owned by the caller.
func (d *Decoder) Feed(b byte) (Frame, bool) {
	switch d.state {
	case waitSyncOne:
		if b == syncOne {
			d.header[0] = b
			d.state = waitSyncTwo
			return Frame{}, false
		}
		d.stats.SkippedBytes++
	case waitSyncTwo:
		switch b {
		case syncTwo:
			d.header[1] = b
			d.state = waitDescriptor
		case syncOne:
			// 0x75 0x75 0x65: the second byte may start the real header.
			d.stats.SkippedBytes++
		default:
			d.stats.SkippedBytes += 2
			d.state = waitSyncOne
		}
	case waitDescriptor:
		d.header[2] = b
		d.state = waitLength
	case waitLength:
		d.header[3] = b
		d.length = int(b)
		d.index = 0
		if d.length == 0 {
			d.state = waitChecksum
		} else {
			d.state = waitPayload
		}
	case waitPayload:
		d.payload[d.index] = b
		d.index++
		if d.index >= d.length {
			d.index = 0
			d.state = waitChecksum
		}
	case waitChecksum:
		d.checksum[d.index] = b
		d.index++
		if d.index < checksumLen {
			return Frame{}, false
		}
		d.state = waitSyncOne
		d.index = 0
		ck1, ck2 := fletcher16(d.header[:], d.payload[:d.length])
		if ck1 != d.checksum[0] || ck2 != d.checksum[1] {
			d.stats.ChecksumErrors++
			return Frame{}, false
		}
		d.stats.Frames++
		payload := make([]byte, d.length)
		copy(payload, d.payload[:d.length])
		return Frame{Descriptor: DescriptorSet(d.header[2]), Payload: payload}, true
	}
	return Frame{}, false
}

// Write feeds every byte of p and returns the frames completed along the way.
func (d *Decoder) Write(p []byte) []Frame {
	var out []Frame
	for _, b := range p {
		if f, ok := d.Feed(b); ok {
			out = append(out, f)
		}
	}
	return out
}
