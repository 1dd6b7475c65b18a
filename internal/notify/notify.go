// Package notify delivers operator alerts and drives the failsafe indicator.
package notify

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Severity mirrors MAVLink MAV_SEVERITY.
type Severity uint8

const (
	Emergency Severity = iota
	Alert
	Critical
	Error
	Warning
	Notice
	Info
	Debug
)

func (s Severity) String() string {
	switch s {
	case Emergency:
		return "emergency"
	case Alert:
		return "alert"
	case Critical:
		return "critical"
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Notice:
		return "notice"
	case Info:
		return "info"
	case Debug:
		return "debug"
	}
	return fmt.Sprintf("severity(%d)", uint8(s))
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Alerter sends a short text to the operator. Implementations must not block.
type Alerter interface {
	Alert(sev Severity, text string)
}

// Message is one delivered alert.
type Message struct {
	Time     time.Time `json:"time"`
	Severity Severity  `json:"severity"`
	Text     string    `json:"text"`
}

// LogAlerter writes alerts to the process log.
type LogAlerter struct{}

func (LogAlerter) Alert(sev Severity, text string) {
	log.Printf("alert severity=%s text=%q", sev, text)
}

// Multi fans an alert out to several alerters.
type Multi []Alerter

func (m Multi) Alert(sev Severity, text string) {
	for _, a := range m {
		if a != nil {
			a.Alert(sev, text)
		}
	}
}

// History keeps the most recent alerts for the status page.
type History struct {
	mu   sync.Mutex
	max  int
	msgs []Message
	now  func() time.Time
}

func NewHistory(max int) *History {
	if max <= 0 {
		max = 32
	}
	return &History{max: max, now: time.Now}
}

func (h *History) Alert(sev Severity, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, Message{Time: h.now().UTC(), Severity: sev, Text: text})
	if len(h.msgs) > h.max {
		h.msgs = h.msgs[len(h.msgs)-h.max:]
	}
}

// Messages returns the retained alerts, oldest first.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Message(nil), h.msgs...)
}
