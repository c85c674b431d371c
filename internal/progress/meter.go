package progress

import (
	"sync"
	"time"
)

// Stats is a derived view of transfer throughput.
type Stats struct {
	BytesDone uint64
	Total     uint64
	RateBps   float64
	ETA       time.Duration
	Percent   float64
	StartedAt time.Time
}

// Meter derives a smoothed byte rate and ETA from successive snapshots.
// Feed it with Observe; read it with Stats.
type Meter struct {
	mu        sync.Mutex
	total     uint64
	done      uint64
	startedAt time.Time
	lastAt    time.Time
	lastDone  uint64
	rateBps   float64
	alpha     float64
	now       func() time.Time
}

// NewMeter returns a meter with the default smoothing factor.
func NewMeter() *Meter {
	return NewMeterWithNow(time.Now)
}

// NewMeterWithNow returns a meter with a custom time source (for tests).
func NewMeterWithNow(now func() time.Time) *Meter {
	if now == nil {
		now = time.Now
	}
	return &Meter{alpha: 0.2, now: now}
}

// Observe folds a snapshot into the meter. Snapshots whose aggregate
// byte count went backwards are ignored; totals may grow as new files
// are discovered mid-transfer.
func (m *Meter) Observe(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if m.startedAt.IsZero() {
		m.startedAt = now
		m.lastAt = now
	}
	m.total = s.Total
	if s.Transferred < m.done {
		return
	}
	m.done = s.Transferred

	deltaBytes := m.done - m.lastDone
	deltaTime := now.Sub(m.lastAt).Seconds()
	if deltaTime > 0 && deltaBytes > 0 {
		inst := float64(deltaBytes) / deltaTime
		if m.rateBps == 0 {
			m.rateBps = inst
		} else {
			m.rateBps = m.alpha*inst + (1-m.alpha)*m.rateBps
		}
		m.lastAt = now
		m.lastDone = m.done
	}
}

// Stats returns the current derived throughput view.
func (m *Meter) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := Stats{
		BytesDone: m.done,
		Total:     m.total,
		RateBps:   m.rateBps,
		StartedAt: m.startedAt,
	}
	if m.total > 0 {
		stats.Percent = float64(m.done) / float64(m.total) * 100
	}
	if m.rateBps > 0 && m.total > m.done {
		remaining := float64(m.total - m.done)
		stats.ETA = time.Duration(remaining/m.rateBps) * time.Second
	}
	return stats
}
