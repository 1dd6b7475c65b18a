package main

import (
	"log"
	"sync"

	"navguard/internal/ahrs"
)

// sampleTap is the downstream consumer of forwarded sensor samples. It keeps
// counts and the latest GNSS fix per receiver for the periodic summary.
type sampleTap struct {
	mu       sync.Mutex
	inertial uint64
	mag      uint64
	baro     uint64
	gnss     uint64
	lastFix  map[int]ahrs.GNSSFix
}

func (t *sampleTap) PublishInertial(ahrs.InertialSample) {
	t.mu.Lock()
	t.inertial++
	t.mu.Unlock()
}

func (t *sampleTap) PublishMag(ahrs.MagSample) {
	t.mu.Lock()
	t.mag++
	t.mu.Unlock()
}

func (t *sampleTap) PublishBaro(ahrs.BaroSample) {
	t.mu.Lock()
	t.baro++
	t.mu.Unlock()
}

func (t *sampleTap) PublishGNSS(f ahrs.GNSSFix) {
	t.mu.Lock()
	t.gnss++
	if t.lastFix == nil {
		t.lastFix = make(map[int]ahrs.GNSSFix)
	}
	t.lastFix[f.Instance] = f
	t.mu.Unlock()
}

type tapCounts struct {
	Inertial, Mag, Baro, GNSS uint64
}

// take returns the counts since the previous call and resets them.
func (t *sampleTap) take() (tapCounts, map[int]ahrs.GNSSFix) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := tapCounts{Inertial: t.inertial, Mag: t.mag, Baro: t.baro, GNSS: t.gnss}
	t.inertial, t.mag, t.baro, t.gnss = 0, 0, 0, 0
	fixes := make(map[int]ahrs.GNSSFix, len(t.lastFix))
	for k, v := range t.lastFix {
		fixes[k] = v
	}
	return c, fixes
}

func (t *sampleTap) logSummary() {
	c, fixes := t.take()
	log.Printf("samples inertial=%d mag=%d baro=%d gnss=%d", c.Inertial, c.Mag, c.Baro, c.GNSS)
	for i := 0; i < 2; i++ {
		f, ok := fixes[i]
		if !ok {
			continue
		}
		log.Printf("gnss[%d] fix=%d sats=%d hacc=%.1fm vacc=%.1fm", i, f.FixType, f.Satellites, f.HorizAccM, f.VertAccM)
	}
}
