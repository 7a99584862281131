package trainer

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/scottharvey/crankTUI/internal/goutil"
	"github.com/scottharvey/crankTUI/internal/physics"
	"github.com/scottharvey/crankTUI/internal/ride"
)

const (
	simTickPeriod = 2 * time.Second
	// Resistance moves toward the route's grade at most this many
	// percentage points per tick, so a wall in the profile arrives as a
	// ramp at the pedals.
	maxGradeStepPct = 1.0

	gradeLookaheadM = 100.0

	// Bounds of the user-adjustable resistance scale.
	MinResistanceScale  = 0.3
	MaxResistanceScale  = 2.0
	ResistanceScaleStep = 0.1
)

// Commander is the slice of the session the SIM loop drives.
type Commander interface {
	IsConnected() bool
	SetGrade(gradePct float64) (bool, string)
	SetRiderCharacteristics(weightKg, crr, cda float64) (bool, string)
}

var _ Commander = (*Session)(nil)

// GradeSource provides the forward grade of the route being ridden.
type GradeSource interface {
	GradeAt(distanceM, lookaheadM float64) float64
}

// SimController runs SIM mode: every tick it reads the rider's position,
// derives the route grade ahead, smooths and scales it, and pushes it to
// the trainer. Exactly one loop runs at a time; the loop exits on its own
// when the ride mode leaves SIM.
type SimController struct {
	session Commander
	store   *ride.Store
	route   GradeSource
	logger  *log.Logger

	riderWeightKg float64
	bikeWeightKg  float64

	period time.Duration

	mu           sync.Mutex
	running      bool
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	lastGradePct float64
}

func NewSimController(session Commander, store *ride.Store, route GradeSource,
	riderWeightKg, bikeWeightKg float64, logger *log.Logger) *SimController {
	if session == nil {
		panic("trainer: session must not be nil")
	}
	if store == nil {
		panic("trainer: ride store must not be nil")
	}
	if route == nil {
		panic("trainer: route must not be nil")
	}
	if logger == nil {
		panic("trainer: logger must not be nil")
	}
	return &SimController{
		session:       session,
		store:         store,
		route:         route,
		logger:        logger,
		riderWeightKg: riderWeightKg,
		bikeWeightKg:  bikeWeightKg,
		period:        simTickPeriod,
	}
}

// Running reports whether the SIM loop is active.
func (c *SimController) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Start switches the ride into SIM mode and launches the control loop.
// Starting an already-running controller is a no-op.
func (c *SimController) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.lastGradePct = 0.0
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	if c.session.IsConnected() {
		totalMass := c.riderWeightKg + c.bikeWeightKg
		if ok, msg := c.session.SetRiderCharacteristics(totalMass,
			physics.RollingResistance, physics.DragCoefficientArea); !ok {
			c.logger.Printf("sim: rider characteristics not accepted (continuing): %s", msg)
		}
	}

	c.store.SetMode(ride.ModeSim)

	c.wg.Add(1)
	goutil.SafeGo(c.logger, func() {
		defer c.wg.Done()
		c.loop(loopCtx)
	})
	c.logger.Printf("sim: loop started (period %v)", c.period)
}

// Stop cancels the loop and waits for it to finish, so no in-flight grade
// command can race a subsequent mode change. Safe to call when stopped.
func (c *SimController) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	c.mu.Lock()
	c.running = false
	c.lastGradePct = 0.0
	c.mu.Unlock()
}

func (c *SimController) loop(ctx context.Context) {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.tick() {
				c.mu.Lock()
				c.running = false
				if c.cancel != nil {
					c.cancel()
					c.cancel = nil
				}
				c.mu.Unlock()
				c.logger.Printf("sim: ride mode changed, loop exiting")
				return
			}
		}
	}
}

// tick runs one control iteration. It returns false when the ride mode is
// no longer SIM, which ends the loop.
func (c *SimController) tick() bool {
	m := c.store.Metrics()
	if m.Mode != ride.ModeSim {
		return false
	}

	target := c.route.GradeAt(m.DistanceM, gradeLookaheadM)

	c.mu.Lock()
	smoothed := stepToward(c.lastGradePct, target, maxGradeStepPct)
	c.lastGradePct = smoothed
	c.mu.Unlock()

	scale := clampScale(m.ResistanceScale)
	scaled := smoothed * scale

	if ok, msg := c.session.SetGrade(scaled); !ok {
		c.logger.Printf("sim: grade %.1f%% not sent: %s", scaled, msg)
	}

	// Publish the applied grade and re-assert SIM mode in one atomic
	// update. A mode change that landed since the read at the top of the
	// tick must win, so the re-assert is skipped and the loop exits.
	stillSim := true
	c.store.Update(func(m *ride.Metrics) {
		if m.Mode != ride.ModeSim {
			stillSim = false
			return
		}
		m.GradePct = scaled
		m.Mode = ride.ModeSim
	})
	return stillSim
}

// AdjustScale nudges the resistance scale by the given number of steps
// (positive or negative) and returns the new value.
func (c *SimController) AdjustScale(steps int) float64 {
	var newScale float64
	c.store.Update(func(m *ride.Metrics) {
		s := m.ResistanceScale + float64(steps)*ResistanceScaleStep
		// Land exactly on a step multiple despite float accumulation.
		s = math.Round(s/ResistanceScaleStep) * ResistanceScaleStep
		m.ResistanceScale = clampScale(s)
		newScale = m.ResistanceScale
	})
	return newScale
}

// EstimateSpeedKmh is the diagnostic speed the physics model predicts for
// the rider's current power at the grade being simulated.
func (c *SimController) EstimateSpeedKmh(powerW, gradePct float64) float64 {
	return physics.SpeedFromPowerKmh(powerW, gradePct, c.riderWeightKg+c.bikeWeightKg)
}

func stepToward(last, target, maxStep float64) float64 {
	delta := target - last
	if math.Abs(delta) <= maxStep {
		return target
	}
	if delta > 0 {
		return last + maxStep
	}
	return last - maxStep
}

func clampScale(s float64) float64 {
	if s < MinResistanceScale {
		return MinResistanceScale
	}
	if s > MaxResistanceScale {
		return MaxResistanceScale
	}
	return s
}
