package trainer

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottharvey/crankTUI/internal/ride"
)

type fakeCommander struct {
	mu        sync.Mutex
	connected bool
	grades    []float64
	riderSent bool
}

var _ Commander = (*fakeCommander)(nil)

func (c *fakeCommander) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeCommander) SetGrade(gradePct float64) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grades = append(c.grades, gradePct)
	return true, ""
}

func (c *fakeCommander) SetRiderCharacteristics(weightKg, crr, cda float64) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.riderSent = true
	return true, ""
}

func (c *fakeCommander) sentGrades() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]float64, len(c.grades))
	copy(out, c.grades)
	return out
}

type constantGrade float64

func (g constantGrade) GradeAt(distanceM, lookaheadM float64) float64 { return float64(g) }

func newTestController(session Commander, store *ride.Store, grade GradeSource) *SimController {
	c := NewSimController(session, store, grade, 75, 10, testLogger())
	c.period = 5 * time.Millisecond
	return c
}

func TestSimLoopRampsTowardSteepTarget(t *testing.T) {
	cmd := &fakeCommander{connected: true}
	store := ride.NewStore()
	c := newTestController(cmd, store, constantGrade(10.0))

	c.Start(context.Background())
	defer c.Stop()

	require.Eventually(t, func() bool {
		return len(cmd.sentGrades()) >= 5
	}, time.Second, time.Millisecond)
	c.Stop()

	grades := cmd.sentGrades()
	assert.InDelta(t, 1.0, grades[0], 1e-9, "first tick steps at most one point from zero")
	for i := 1; i < len(grades); i++ {
		assert.LessOrEqual(t, math.Abs(grades[i]-grades[i-1]), 1.0+1e-9,
			"tick %d jumped from %v to %v", i, grades[i-1], grades[i])
	}
	assert.True(t, cmd.riderSent, "rider characteristics pushed on start")
	assert.Equal(t, ride.ModeSim, store.Mode())
}

func TestSimLoopReachesAndHoldsTarget(t *testing.T) {
	cmd := &fakeCommander{connected: true}
	store := ride.NewStore()
	c := newTestController(cmd, store, constantGrade(2.5))

	c.Start(context.Background())
	defer c.Stop()

	require.Eventually(t, func() bool {
		grades := cmd.sentGrades()
		return len(grades) > 0 && grades[len(grades)-1] == 2.5
	}, time.Second, time.Millisecond)

	m := store.Metrics()
	assert.Equal(t, 2.5, m.GradePct)
}

func TestSimLoopAppliesResistanceScale(t *testing.T) {
	cmd := &fakeCommander{connected: true}
	store := ride.NewStore()
	store.Update(func(m *ride.Metrics) { m.ResistanceScale = 0.5 })
	c := newTestController(cmd, store, constantGrade(1.0))

	c.Start(context.Background())
	defer c.Stop()

	require.Eventually(t, func() bool {
		grades := cmd.sentGrades()
		return len(grades) > 0 && grades[len(grades)-1] == 0.5
	}, time.Second, time.Millisecond, "1%% grade at scale 0.5 sends 0.5%%")
}

func TestSimLoopExitsWhenModeChanges(t *testing.T) {
	cmd := &fakeCommander{connected: true}
	store := ride.NewStore()
	c := newTestController(cmd, store, constantGrade(5.0))

	c.Start(context.Background())
	require.Eventually(t, func() bool { return len(cmd.sentGrades()) > 0 }, time.Second, time.Millisecond)

	store.SetMode(ride.ModeLive)

	require.Eventually(t, func() bool { return !c.Running() }, time.Second, time.Millisecond)
	assert.Equal(t, ride.ModeLive, store.Mode(), "controller must not re-assert SIM after exit")
}

func TestSimStartIsReentrant(t *testing.T) {
	cmd := &fakeCommander{connected: true}
	store := ride.NewStore()
	c := newTestController(cmd, store, constantGrade(5.0))

	c.Start(context.Background())
	c.Start(context.Background())
	defer c.Stop()

	assert.True(t, c.Running())
}

func TestSimStopAwaitsLoop(t *testing.T) {
	cmd := &fakeCommander{connected: true}
	store := ride.NewStore()
	c := newTestController(cmd, store, constantGrade(5.0))

	c.Start(context.Background())
	require.Eventually(t, func() bool { return len(cmd.sentGrades()) > 0 }, time.Second, time.Millisecond)

	c.Stop()
	assert.False(t, c.Running())

	n := len(cmd.sentGrades())
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, n, len(cmd.sentGrades()), "no grade commands after Stop returns")
}

func TestSimStopWithoutStart(t *testing.T) {
	c := newTestController(&fakeCommander{}, ride.NewStore(), constantGrade(0))
	c.Stop() // must not panic or block
}

func TestAdjustScale(t *testing.T) {
	store := ride.NewStore()
	c := newTestController(&fakeCommander{}, store, constantGrade(0))

	assert.InDelta(t, 1.1, c.AdjustScale(1), 1e-9)
	assert.InDelta(t, 0.9, c.AdjustScale(-2), 1e-9)
	assert.InDelta(t, MaxResistanceScale, c.AdjustScale(100), 1e-9)
	assert.InDelta(t, MinResistanceScale, c.AdjustScale(-100), 1e-9)
	assert.InDelta(t, MinResistanceScale, store.Metrics().ResistanceScale, 1e-9)
}

func TestStepToward(t *testing.T) {
	assert.Equal(t, 0.5, stepToward(0, 0.5, 1.0))
	assert.Equal(t, 1.0, stepToward(0, 8.0, 1.0))
	assert.Equal(t, -1.0, stepToward(0, -8.0, 1.0))
	assert.Equal(t, 3.0, stepToward(3.5, 3.0, 1.0))
	assert.Equal(t, 2.0, stepToward(2.0, 2.0, 1.0))
}

func TestEstimateSpeedKmh(t *testing.T) {
	c := newTestController(&fakeCommander{}, ride.NewStore(), constantGrade(0))
	assert.Greater(t, c.EstimateSpeedKmh(200, 0), 0.0)
	assert.Equal(t, 0.0, c.EstimateSpeedKmh(0, 5))
}
