package trainer

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/scottharvey/crankTUI/internal/goutil"
	"github.com/scottharvey/crankTUI/internal/ride"
)

const demoTickPeriod = 500 * time.Millisecond

// RouteProfile is the slice of the route the demo simulator rides along.
type RouteProfile interface {
	GradeSource
	TotalDistanceM() float64
}

// DemoSimulator feeds the ride store with synthetic metrics so the app is
// usable without a trainer. Speed, power and cadence oscillate sinusoidally;
// distance is integrated from speed and capped at the route's end.
type DemoSimulator struct {
	store  *ride.Store
	route  RouteProfile
	logger *log.Logger

	period time.Duration
	now    func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started time.Time
}

func NewDemoSimulator(store *ride.Store, route RouteProfile, logger *log.Logger) *DemoSimulator {
	if store == nil {
		panic("trainer: ride store must not be nil")
	}
	if route == nil {
		panic("trainer: route must not be nil")
	}
	if logger == nil {
		panic("trainer: logger must not be nil")
	}
	return &DemoSimulator{
		store:  store,
		route:  route,
		logger: logger,
		period: demoTickPeriod,
		now:    time.Now,
	}
}

// Running reports whether the simulation loop is active.
func (d *DemoSimulator) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Start begins the demo ride. A second Start while running is a no-op.
func (d *DemoSimulator) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.started = d.now()
	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	d.store.StartSession(ride.ModeDemo, d.started)

	d.wg.Add(1)
	goutil.SafeGo(d.logger, func() {
		defer d.wg.Done()
		d.loop(loopCtx)
	})
	d.logger.Printf("demo: simulator started")
}

// Stop cancels the loop and waits for it to exit. Safe to call when
// already stopped.
func (d *DemoSimulator) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
	d.logger.Printf("demo: simulator stopped")
}

func (d *DemoSimulator) loop(ctx context.Context) {
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *DemoSimulator) tick() {
	d.mu.Lock()
	elapsed := d.now().Sub(d.started).Seconds()
	d.mu.Unlock()

	speedKmh := 25.0 + 5.0*math.Sin(elapsed*0.3)
	powerW := 200.0 + 50.0*math.Sin(elapsed*0.5)
	cadenceRPM := 80.0 + 10.0*math.Sin(elapsed*0.4)

	speedMS := speedKmh / 3.6
	step := speedMS * d.period.Seconds()
	maxDistance := d.route.TotalDistanceM()

	d.store.Update(func(m *ride.Metrics) {
		distance := m.DistanceM + step
		if distance > maxDistance {
			distance = maxDistance
		}
		m.SpeedKmh = speedKmh
		m.PowerW = powerW
		m.CadenceRPM = cadenceRPM
		m.DistanceM = distance
		m.ElapsedS = elapsed
		m.GradePct = d.route.GradeAt(distance, gradeLookaheadM)
	})
}
