// Package ride holds the shared state for the ride in progress: live
// metrics, session mode, and recording status.
package ride

import (
	"sync"
	"time"

	"github.com/scottharvey/crankTUI/internal/events"
)

// Mode is the session mode the app is riding in.
type Mode int

const (
	// ModeDemo runs on simulated data with no trainer connected.
	ModeDemo Mode = iota
	// ModeLive displays trainer data without sending resistance commands.
	ModeLive
	// ModeErg holds the trainer at a target power.
	ModeErg
	// ModeSim drives trainer resistance from the route's grade.
	ModeSim
)

func (m Mode) String() string {
	switch m {
	case ModeDemo:
		return "DEMO"
	case ModeLive:
		return "LIVE"
	case ModeErg:
		return "ERG"
	case ModeSim:
		return "SIM"
	default:
		return "UNKNOWN"
	}
}

// Metrics is a snapshot of the ride in progress.
type Metrics struct {
	SpeedKmh     float64
	PowerW       float64
	CadenceRPM   float64
	HeartRateBPM float64
	DistanceM    float64
	ElapsedS     float64
	GradePct     float64

	// ResistanceScale multiplies the grade sent to the trainer in SIM
	// mode so the rider can soften or sharpen climbs.
	ResistanceScale float64

	StartTime   time.Time
	IsRecording bool
	Mode        Mode
}

// Store is a mutex-guarded container for the current Metrics. Reads return
// copies; writers mutate under the lock via Update. Every change is fanned
// out to listeners, and a listener registered mid-ride immediately sees the
// latest snapshot.
type Store struct {
	mu      sync.Mutex
	metrics Metrics
	changed *events.ChannelEvent[Metrics]
}

// DefaultResistanceScale is the neutral SIM-mode resistance multiplier.
const DefaultResistanceScale = 1.0

func NewStore() *Store {
	return &Store{
		metrics: Metrics{ResistanceScale: DefaultResistanceScale},
		changed: events.NewChannelEvent[Metrics](true),
	}
}

// Metrics returns a copy of the current snapshot.
func (s *Store) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// Update applies fn to the metrics under the lock and notifies listeners
// with the resulting snapshot. fn sets only the fields it has fresh values
// for; the rest keep their last-known values.
func (s *Store) Update(fn func(*Metrics)) {
	s.mu.Lock()
	fn(&s.metrics)
	snapshot := s.metrics
	s.mu.Unlock()

	s.changed.Notify(snapshot)
}

// Mode returns the current session mode without copying the full snapshot.
func (s *Store) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics.Mode
}

// SetMode switches the session mode.
func (s *Store) SetMode(mode Mode) {
	s.Update(func(m *Metrics) { m.Mode = mode })
}

// StartSession stamps the session start and zeroes the accumulated ride.
// The resistance scale carries over between sessions.
func (s *Store) StartSession(mode Mode, start time.Time) {
	s.Update(func(m *Metrics) {
		scale := m.ResistanceScale
		*m = Metrics{Mode: mode, StartTime: start, ResistanceScale: scale}
	})
}

// Reset returns the store to its initial state.
func (s *Store) Reset() {
	s.Update(func(m *Metrics) {
		*m = Metrics{ResistanceScale: DefaultResistanceScale}
	})
}

// Listen registers ch for metric snapshots and returns a deregistration
// function.
func (s *Store) Listen(ch chan<- Metrics) func() {
	return s.changed.Listen(ch)
}
