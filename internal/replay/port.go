package replay

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// Port serves a capture as a serial link: bytes become readable once their
// recorded offset has elapsed.
//
// speed: 1.0 = real time, 2.0 = twice as fast. START markers reset the origin,
// so concatenated captures play back to back.
type Port struct {
	mu     sync.Mutex
	events []event
	next   int
	buf    bytes.Buffer
	loop   bool
	speed  float64
	start  time.Time
	now    func() time.Time
	closed bool
}

type event struct {
	at    time.Duration
	chunk []byte
}

// NewPort plays the capture's segments back to back on one timeline.
func NewPort(records []Record, speed float64, loop bool, now func() time.Time) (*Port, error) {
	if speed <= 0 {
		return nil, fmt.Errorf("speed must be > 0")
	}
	if now == nil {
		now = time.Now
	}

	var events []event
	var base time.Duration
	for _, seg := range Split(records) {
		for _, c := range seg.Chunks {
			events = append(events, event{at: base + c.At, chunk: c.Chunk})
		}
		base += seg.Duration()
	}
	if len(events) == 0 {
		return nil, errors.New("no records")
	}
	return &Port{events: events, loop: loop, speed: speed, start: now(), now: now}, nil
}

// release moves due chunks into the read buffer. Callers hold mu.
func (p *Port) release() {
	elapsed := time.Duration(float64(p.now().Sub(p.start)) * p.speed)
	for {
		if p.next >= len(p.events) {
			if !p.loop {
				return
			}
			end := p.events[len(p.events)-1].at
			if end <= 0 || elapsed <= end {
				return
			}
			p.start = p.start.Add(time.Duration(float64(end) / p.speed))
			elapsed -= end
			p.next = 0
		}
		ev := p.events[p.next]
		if ev.at > elapsed {
			return
		}
		p.buf.Write(ev.chunk)
		p.next++
	}
}

func (p *Port) Buffered() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	p.release()
	return p.buf.Len(), nil
}

func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	p.release()
	if p.buf.Len() == 0 {
		return 0, nil
	}
	return p.buf.Read(b)
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
