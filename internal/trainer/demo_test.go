package trainer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottharvey/crankTUI/internal/ride"
	"github.com/scottharvey/crankTUI/internal/route"
)

func demoRoute() *route.Route {
	return &route.Route{
		Name:       "Demo Hills",
		DistanceKm: 10.0,
		Points: []route.Point{
			{DistanceM: 0, ElevationM: 100},
			{DistanceM: 10000, ElevationM: 200},
		},
	}
}

func newTestDemo(store *ride.Store, r RouteProfile) *DemoSimulator {
	d := NewDemoSimulator(store, r, testLogger())
	d.period = 2 * time.Millisecond
	return d
}

func TestDemoSimulatorProducesMetrics(t *testing.T) {
	store := ride.NewStore()
	d := newTestDemo(store, demoRoute())

	d.Start(context.Background())
	defer d.Stop()

	assert.True(t, d.Running())
	assert.Equal(t, ride.ModeDemo, store.Mode())

	require.Eventually(t, func() bool {
		return store.Metrics().DistanceM > 0
	}, time.Second, time.Millisecond)

	m := store.Metrics()
	assert.InDelta(t, 25.0, m.SpeedKmh, 5.0001)
	assert.InDelta(t, 200.0, m.PowerW, 50.0001)
	assert.InDelta(t, 80.0, m.CadenceRPM, 10.0001)
	assert.InDelta(t, 1.0, m.GradePct, 1e-9, "1%% climb over the whole route")
	assert.False(t, m.StartTime.IsZero())
}

func TestDemoSimulatorCapsDistanceAtRouteEnd(t *testing.T) {
	short := &route.Route{
		Name:       "Sprint",
		DistanceKm: 0.001, // one meter
		Points: []route.Point{
			{DistanceM: 0, ElevationM: 100},
			{DistanceM: 1, ElevationM: 100},
		},
	}
	store := ride.NewStore()
	d := newTestDemo(store, short)

	d.Start(context.Background())
	defer d.Stop()

	require.Eventually(t, func() bool {
		return store.Metrics().DistanceM == 1.0
	}, time.Second, time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1.0, store.Metrics().DistanceM)
}

func TestDemoSimulatorStartIsReentrant(t *testing.T) {
	store := ride.NewStore()
	d := newTestDemo(store, demoRoute())

	d.Start(context.Background())
	started := store.Metrics().StartTime
	d.Start(context.Background())
	defer d.Stop()

	assert.Equal(t, started, store.Metrics().StartTime, "second Start must not restart the session")
}

func TestDemoSimulatorStopAwaitsLoop(t *testing.T) {
	store := ride.NewStore()
	d := newTestDemo(store, demoRoute())

	d.Start(context.Background())
	require.Eventually(t, func() bool {
		return store.Metrics().DistanceM > 0
	}, time.Second, time.Millisecond)

	d.Stop()
	assert.False(t, d.Running())

	distance := store.Metrics().DistanceM
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, distance, store.Metrics().DistanceM, "no updates after Stop returns")
}

func TestDemoSimulatorStopWithoutStart(t *testing.T) {
	d := newTestDemo(ride.NewStore(), demoRoute())
	d.Stop() // must not panic or block
}
