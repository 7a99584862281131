package ui

import (
	"sync"
	"time"

	"github.com/scottharvey/crankTUI/internal/protocol"
	"github.com/scottharvey/crankTUI/internal/ride"
)

// liveFeed turns trainer readings into ride-store updates. BLE never
// reports total distance, so it is integrated here from speed over the
// wall-clock gap between readings.
type liveFeed struct {
	store *ride.Store
	now   func() time.Time

	mu      sync.Mutex
	started time.Time
	last    time.Time
}

func newLiveFeed(store *ride.Store) *liveFeed {
	return &liveFeed{store: store, now: time.Now}
}

// start stamps the ride start for elapsed/integration bookkeeping.
func (f *liveFeed) start() {
	f.mu.Lock()
	f.started = f.now()
	f.last = f.started
	f.mu.Unlock()
}

// onReading is the session's telemetry callback.
func (f *liveFeed) onReading(r protocol.Reading) {
	f.mu.Lock()
	now := f.now()
	if f.started.IsZero() {
		f.started = now
		f.last = now
	}
	dt := now.Sub(f.last).Seconds()
	f.last = now
	elapsed := now.Sub(f.started).Seconds()
	f.mu.Unlock()

	step := r.SpeedKmh / 3.6 * dt

	f.store.Update(func(m *ride.Metrics) {
		m.PowerW = r.PowerW
		m.CadenceRPM = r.CadenceRPM
		m.SpeedKmh = r.SpeedKmh
		m.DistanceM += step
		m.ElapsedS = elapsed
	})
}
