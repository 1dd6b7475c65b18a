package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"time"
)

// UDPAlerter sends each alert as one JSON datagram to a ground station.
type UDPAlerter struct {
	dest   string
	conn   *net.UDPConn
	now    func() time.Time
	failed atomic.Bool
}

func NewUDPAlerter(dest string) (*UDPAlerter, error) {
	addr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	return &UDPAlerter{dest: dest, conn: conn, now: time.Now}, nil
}

func (u *UDPAlerter) Alert(sev Severity, text string) {
	payload, err := json.Marshal(Message{Time: u.now().UTC(), Severity: sev, Text: text})
	if err != nil {
		return
	}
	if _, err := u.conn.Write(payload); err != nil {
		if !u.failed.Swap(true) {
			log.Printf("alert udp send failed dest=%s err=%v", u.dest, err)
		}
		return
	}
	u.failed.Store(false)
}

func (u *UDPAlerter) Close() error {
	if u == nil || u.conn == nil {
		return nil
	}
	return u.conn.Close()
}
