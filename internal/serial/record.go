package serial

import (
	"log"
	"time"
)

// Recorder persists raw chunks read from a port.
type Recorder interface {
	WriteChunk(now time.Time, b []byte) error
}

type recordingPort struct {
	Port
	rec    Recorder
	now    func() time.Time
	failed bool
}

// Record returns a Port that copies every chunk it reads into rec. A recorder
// failure is logged once and recording stops; reads are unaffected.
func Record(p Port, rec Recorder) Port {
	if rec == nil {
		return p
	}
	return &recordingPort{Port: p, rec: rec, now: time.Now}
}

func (r *recordingPort) Read(b []byte) (int, error) {
	n, err := r.Port.Read(b)
	if n > 0 && !r.failed {
		if werr := r.rec.WriteChunk(r.now(), b[:n]); werr != nil {
			r.failed = true
			log.Printf("serial capture stopped: %v", werr)
		}
	}
	return n, err
}
