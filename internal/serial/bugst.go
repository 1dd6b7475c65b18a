package serial

import (
	"fmt"

	"go.bug.st/serial"
)

// bugstPort wraps go.bug.st/serial. The library cannot report queued bytes, so
// Buffered returns a fixed chunk size and each Read is bounded by ReadTimeout.
type bugstPort struct {
	serial.Port
	chunk int
}

const bugstChunk = 256

func openBugst(opts Options) (Port, error) {
	mode, err := serialMode(opts)
	if err != nil {
		return nil, err
	}
	p, err := serial.Open(opts.Device, mode)
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(opts.ReadTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serial: set read timeout: %w", err)
	}
	return &bugstPort{Port: p, chunk: bugstChunk}, nil
}

func (p *bugstPort) Buffered() (int, error) {
	return p.chunk, nil
}

// serialMode converts normalized options into the go.bug.st/serial mode.
func serialMode(opts Options) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: opts.Baud,
		DataBits: opts.DataBits,
	}
	switch opts.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}
	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("serial: unsupported parity %q", opts.Parity)
	}
	return mode, nil
}
