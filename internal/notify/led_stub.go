//go:build !linux || (!arm && !arm64)

package notify

import "fmt"

type LED struct{}

func OpenLED(pin int) (*LED, error) {
	return nil, fmt.Errorf("notify: gpio led not supported on this platform")
}

func (*LED) SetFailsafe(bool) {}

func (*LED) Close() error { return nil }
