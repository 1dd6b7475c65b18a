// Package vehicle is the mode arbiter: it owns the arming state and the
// current control mode and accepts mode-change requests.
package vehicle

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

var logf = log.Printf

// ErrPreArm is returned by Arm when a pre-arm check fails.
var ErrPreArm = errors.New("pre-arm check failed")

// PreArmChecker gates arming.
type PreArmChecker interface {
	PreArmCheck() (bool, string)
}

// ModeChange is one accepted mode transition.
type ModeChange struct {
	At     time.Time `json:"at"`
	From   Mode      `json:"from"`
	To     Mode      `json:"to"`
	Reason Reason    `json:"reason"`
}

type Status struct {
	Armed   bool         `json:"armed"`
	Mode    Mode         `json:"mode"`
	History []ModeChange `json:"history"`
}

const historyLen = 16

type Vehicle struct {
	checks []PreArmChecker
	now    func() time.Time

	mu      sync.RWMutex
	armed   bool
	mode    Mode
	history []ModeChange
}

func New(initial Mode, checks ...PreArmChecker) *Vehicle {
	return &Vehicle{checks: checks, now: time.Now, mode: initial}
}

func (v *Vehicle) Armed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.armed
}

func (v *Vehicle) Mode() Mode {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.mode
}

// Arm runs the pre-arm checks and arms if all pass.
func (v *Vehicle) Arm() error {
	for _, c := range v.checks {
		if ok, reason := c.PreArmCheck(); !ok {
			return fmt.Errorf("%w: %s", ErrPreArm, reason)
		}
	}
	v.mu.Lock()
	was := v.armed
	v.armed = true
	v.mu.Unlock()
	if !was {
		logf("vehicle armed mode=%s", v.Mode())
	}
	return nil
}

func (v *Vehicle) Disarm() {
	v.mu.Lock()
	was := v.armed
	v.armed = false
	v.mu.Unlock()
	if was {
		logf("vehicle disarmed")
	}
}

// RequestModeChange switches to target. Requesting the current mode is a no-op.
func (v *Vehicle) RequestModeChange(target Mode, reason Reason) error {
	if _, ok := modes[target]; !ok {
		return fmt.Errorf("unknown mode %d", uint8(target))
	}
	v.mu.Lock()
	from := v.mode
	if from == target {
		v.mu.Unlock()
		return nil
	}
	v.mode = target
	v.history = append(v.history, ModeChange{At: v.now(), From: from, To: target, Reason: reason})
	if len(v.history) > historyLen {
		v.history = v.history[len(v.history)-historyLen:]
	}
	v.mu.Unlock()

	logf("vehicle mode change from=%s to=%s reason=%s", from, target, reason)
	return nil
}

func (v *Vehicle) Status() Status {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return Status{
		Armed:   v.armed,
		Mode:    v.mode,
		History: append([]ModeChange(nil), v.history...),
	}
}
