//go:build linux

package serial

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type termiosPort struct {
	fd   int
	path string
}

func openTermios(opts Options) (Port, error) {
	flag := unix.O_RDWR | unix.O_NOCTTY
	fd, err := unix.Open(opts.Device, flag, 0)
	if err != nil {
		return nil, err
	}

	// Best-effort: if anything below fails, close fd.
	ok := false
	defer func() {
		if !ok {
			_ = unix.Close(fd)
		}
	}()

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}

	spd, err := baudToUnix(opts.Baud)
	if err != nil {
		return nil, err
	}

	// Raw mode: binary protocol, no line processing.
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.INPCK
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB
	t.Cflag |= unix.CLOCAL | unix.CREAD

	switch opts.DataBits {
	case 5:
		t.Cflag |= unix.CS5
	case 6:
		t.Cflag |= unix.CS6
	case 7:
		t.Cflag |= unix.CS7
	default:
		t.Cflag |= unix.CS8
	}
	if opts.StopBits == 2 {
		t.Cflag |= unix.CSTOPB
	}
	switch opts.Parity {
	case "E":
		t.Cflag |= unix.PARENB
		t.Iflag |= unix.INPCK
	case "O":
		t.Cflag |= unix.PARENB | unix.PARODD
		t.Iflag |= unix.INPCK
	}

	// Reads return whatever is queued, waiting at most 100ms when empty.
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 1

	t.Cflag &^= unix.CBAUD
	t.Cflag |= spd
	t.Ispeed = spd
	t.Ospeed = spd

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return nil, err
	}
	ok = true
	return &termiosPort{fd: fd, path: opts.Device}, nil
}

func (p *termiosPort) Read(b []byte) (int, error) {
	n, err := unix.Read(p.fd, b)
	if n < 0 {
		n = 0
	}
	if err == unix.EINTR || err == unix.EAGAIN {
		return n, nil
	}
	return n, err
}

func (p *termiosPort) Buffered() (int, error) {
	n, err := unix.IoctlGetInt(p.fd, unix.TIOCINQ)
	if err != nil {
		return 0, fmt.Errorf("serial: %s TIOCINQ: %w", p.path, err)
	}
	return n, nil
}

func (p *termiosPort) Close() error {
	return unix.Close(p.fd)
}

func baudToUnix(baud int) (uint32, error) {
	switch baud {
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 921600:
		return unix.B921600, nil
	default:
		return 0, fmt.Errorf("unsupported baud %d", baud)
	}
}
