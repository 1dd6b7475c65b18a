// Package serial opens the byte-oriented link to an external sensor.
//
// A Port is read only after Buffered reports data, so drains stay bounded and
// never park the ingestion task on the device.
package serial

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrUnsupported is returned when a driver is not available on this platform.
var ErrUnsupported = errors.New("serial: driver unsupported on this platform")

// Port is an open serial endpoint.
type Port interface {
	io.Reader
	io.Closer
	// Buffered returns how many bytes a Read can return without blocking.
	Buffered() (int, error)
}

// Driver names accepted by Open.
const (
	DriverTermios = "termios"
	DriverBugst   = "bugst"
)

// Options describes the serial connection.
type Options struct {
	Device   string `yaml:"device"`
	Baud     int    `yaml:"baud"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"`
	Driver   string `yaml:"driver"`

	// ReadTimeout bounds a single read on drivers that cannot report buffered bytes.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// Normalize validates the options and applies defaults for unset values.
func (o Options) Normalize() (Options, error) {
	opts := o
	opts.Device = strings.TrimSpace(opts.Device)
	if opts.Device == "" {
		return opts, fmt.Errorf("serial: device is required")
	}
	if opts.Baud <= 0 {
		opts.Baud = 115200
	}
	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("serial: invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}
	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("serial: invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	switch parity {
	case "", "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, fmt.Errorf("serial: unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	opts.Parity = parity

	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	if driver == "" {
		driver = DriverTermios
	}
	if driver != DriverTermios && driver != DriverBugst {
		return opts, fmt.Errorf("serial: unknown driver %q", opts.Driver)
	}
	opts.Driver = driver

	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Millisecond
	}
	return opts, nil
}

// Open opens a hardware serial port with the configured driver.
func Open(o Options) (Port, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	switch opts.Driver {
	case DriverBugst:
		return openBugst(opts)
	default:
		return openTermios(opts)
	}
}
