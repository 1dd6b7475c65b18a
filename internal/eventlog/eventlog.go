// Package eventlog records discrete failsafe and degradation events.
package eventlog

import (
	"fmt"
	"sync"
	"time"
)

// Subsystem and Code numbers follow the autopilot's error log.
type Subsystem uint8

const (
	EKFCheck        Subsystem = 16
	FailsafeEKFInav Subsystem = 17
)

func (s Subsystem) String() string {
	switch s {
	case EKFCheck:
		return "ekf_check"
	case FailsafeEKFInav:
		return "failsafe_ekf_inav"
	}
	return fmt.Sprintf("subsystem(%d)", uint8(s))
}

func (s Subsystem) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type Code uint8

const (
	VarianceCleared Code = 0
	BadVariance     Code = 2

	FailsafeResolved Code = 0
	FailsafeOccurred Code = 1
)

type Event struct {
	Time      time.Time `json:"time"`
	Session   string    `json:"session"`
	Subsystem Subsystem `json:"subsystem"`
	Code      Code      `json:"code"`
}

// Describe renders the event for operators.
func (e Event) Describe() string {
	switch {
	case e.Subsystem == EKFCheck && e.Code == BadVariance:
		return "EKF variance bad"
	case e.Subsystem == EKFCheck && e.Code == VarianceCleared:
		return "EKF variance cleared"
	case e.Subsystem == FailsafeEKFInav && e.Code == FailsafeOccurred:
		return "EKF failsafe occurred"
	case e.Subsystem == FailsafeEKFInav && e.Code == FailsafeResolved:
		return "EKF failsafe resolved"
	}
	return fmt.Sprintf("%s code=%d", e.Subsystem, e.Code)
}

// Writer accepts events. Write must not block on I/O.
type Writer interface {
	Write(Event)
}

// Recorder stamps events with the session and time and hands them to a Writer.
type Recorder struct {
	w       Writer
	session string
	now     func() time.Time
}

func NewRecorder(w Writer, session string) *Recorder {
	return &Recorder{w: w, session: session, now: time.Now}
}

func (r *Recorder) Log(s Subsystem, c Code) {
	if r == nil || r.w == nil {
		return
	}
	r.w.Write(Event{Time: r.now().UTC(), Session: r.session, Subsystem: s, Code: c})
}

// Memory keeps the most recent events in a ring.
type Memory struct {
	mu   sync.Mutex
	buf  []Event
	next int
	full bool
}

func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 256
	}
	return &Memory{buf: make([]Event, size)}
}

func (m *Memory) Write(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf[m.next] = e
	m.next++
	if m.next == len(m.buf) {
		m.next = 0
		m.full = true
	}
}

// Events returns the retained events, oldest first.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.full {
		return append([]Event(nil), m.buf[:m.next]...)
	}
	out := make([]Event, 0, len(m.buf))
	out = append(out, m.buf[m.next:]...)
	return append(out, m.buf[:m.next]...)
}

// Multi fans events out to several writers.
type Multi []Writer

func (m Multi) Write(e Event) {
	for _, w := range m {
		if w != nil {
			w.Write(e)
		}
	}
}
