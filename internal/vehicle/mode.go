package vehicle

import (
	"fmt"
	"strings"
)

// Mode is a rover control mode. Values match the autopilot's mode numbers.
type Mode uint8

const (
	ModeManual       Mode = 0
	ModeAcro         Mode = 1
	ModeSteering     Mode = 3
	ModeHold         Mode = 4
	ModeLoiter       Mode = 5
	ModeFollow       Mode = 6
	ModeSimple       Mode = 7
	ModeAuto         Mode = 10
	ModeRTL          Mode = 11
	ModeSmartRTL     Mode = 12
	ModeGuided       Mode = 15
	ModeInitializing Mode = 16
)

type modeInfo struct {
	name             string
	requiresPosition bool
	requiresVelocity bool
}

var modes = map[Mode]modeInfo{
	ModeManual:       {"manual", false, false},
	ModeAcro:         {"acro", false, true},
	ModeSteering:     {"steering", false, true},
	ModeHold:         {"hold", false, false},
	ModeLoiter:       {"loiter", true, true},
	ModeFollow:       {"follow", true, true},
	ModeSimple:       {"simple", false, false},
	ModeAuto:         {"auto", true, true},
	ModeRTL:          {"rtl", true, true},
	ModeSmartRTL:     {"smart_rtl", true, true},
	ModeGuided:       {"guided", true, true},
	ModeInitializing: {"initializing", false, false},
}

func (m Mode) String() string {
	if info, ok := modes[m]; ok {
		return info.name
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// RequiresPosition reports whether the mode needs an absolute position estimate.
func (m Mode) RequiresPosition() bool { return modes[m].requiresPosition }

// RequiresVelocity reports whether the mode needs a velocity estimate.
func (m Mode) RequiresVelocity() bool { return modes[m].requiresVelocity }

// ParseMode accepts a mode name (case-insensitive, '-' or '_').
func ParseMode(s string) (Mode, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for m, info := range modes {
		if info.name == key {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Reason records why a mode change was requested.
type Reason uint8

const (
	ReasonUnknown Reason = iota
	ReasonStartup
	ReasonGCSCommand
	ReasonFailsafe
)

func (r Reason) String() string {
	switch r {
	case ReasonStartup:
		return "startup"
	case ReasonGCSCommand:
		return "gcs_command"
	case ReasonFailsafe:
		return "failsafe"
	default:
		return "unknown"
	}
}

func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}
