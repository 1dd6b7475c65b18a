//go:build linux && (arm || arm64)

package notify

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// LED drives a failsafe lamp on a BCM GPIO line through the GPIO character device.
type LED struct {
	mu     sync.Mutex
	chip   *gpiocdev.Chip
	line   *gpiocdev.Line
	level  int
	failed bool
}

func OpenLED(pin int) (*LED, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("notify: invalid gpio pin %d", pin)
	}

	// On Pi, line names are commonly "GPIO18", etc.
	lineName := fmt.Sprintf("GPIO%d", pin)

	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("navguard-failsafe"))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &LED{chip: chip, line: line}, nil
	}
	return nil, fmt.Errorf("notify: gpio line %q not found (or busy)", lineName)
}

func (l *LED) SetFailsafe(on bool) {
	v := 0
	if on {
		v = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.line == nil || v == l.level {
		return
	}
	if err := l.line.SetValue(v); err != nil {
		if !l.failed {
			l.failed = true
			log.Printf("failsafe led set failed: %v", err)
		}
		return
	}
	l.level = v
}

func (l *LED) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.line == nil {
		return nil
	}
	_ = l.line.SetValue(0)
	err := l.line.Close()
	l.line = nil
	if l.chip != nil {
		_ = l.chip.Close()
		l.chip = nil
	}
	return err
}
