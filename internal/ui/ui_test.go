package ui

import (
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottharvey/crankTUI/internal/bt"
	"github.com/scottharvey/crankTUI/internal/protocol"
	"github.com/scottharvey/crankTUI/internal/ride"
	"github.com/scottharvey/crankTUI/internal/route"
	"github.com/scottharvey/crankTUI/internal/trainer"
)

func TestRenderMetrics(t *testing.T) {
	out := renderMetrics(ride.Metrics{
		PowerW:          215,
		CadenceRPM:      88,
		SpeedKmh:        32.4,
		GradePct:        3.2,
		DistanceM:       12340,
		ElapsedS:        3725,
		Mode:            ride.ModeSim,
		ResistanceScale: 1.2,
		IsRecording:     true,
	})

	assert.Contains(t, out, "215 W")
	assert.Contains(t, out, "88 rpm")
	assert.Contains(t, out, "32.4 km/h")
	assert.Contains(t, out, "+3.2 %")
	assert.Contains(t, out, "12.34 km")
	assert.Contains(t, out, "1:02:05")
	assert.Contains(t, out, "SIM")
	assert.Contains(t, out, "1.2x")
	assert.Contains(t, out, "REC")
}

func TestRenderMetricsLiveModeOmitsScale(t *testing.T) {
	out := renderMetrics(ride.Metrics{Mode: ride.ModeLive, ResistanceScale: 1.0})
	assert.Contains(t, out, "LIVE")
	assert.NotContains(t, out, "Scale")
	assert.NotContains(t, out, "REC")
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:00", formatElapsed(0))
	assert.Equal(t, "00:59", formatElapsed(59.9))
	assert.Equal(t, "12:05", formatElapsed(725))
	assert.Equal(t, "1:00:00", formatElapsed(3600))
}

func TestRenderElevation(t *testing.T) {
	r := &route.Route{
		Name:       "Climb",
		DistanceKm: 1.0,
		Points: []route.Point{
			{DistanceM: 0, ElevationM: 100},
			{DistanceM: 1000, ElevationM: 200},
		},
	}

	out := renderElevation(r, 20, 5, 0)
	require.NotEmpty(t, out)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 6, "5 chart rows plus the elevation axis")
	assert.Contains(t, lines[5], "100m")
	assert.Contains(t, lines[5], "200m")
	// Rider at the start is highlighted.
	assert.Contains(t, out, "[red]█[white]")
	// Bottom row is fully filled; the top row only at the high end.
	assert.NotContains(t, lines[4], " ")
	assert.Contains(t, lines[0], " ")
}

func TestRenderElevationDegenerateInputs(t *testing.T) {
	assert.Empty(t, renderElevation(nil, 20, 5, 0))
	assert.Empty(t, renderElevation(&route.Route{}, 20, 5, 0))

	flat := &route.Route{
		DistanceKm: 1.0,
		Points: []route.Point{
			{DistanceM: 0, ElevationM: 100},
			{DistanceM: 1000, ElevationM: 100},
		},
	}
	out := renderElevation(flat, 10, 3, 500)
	assert.NotEmpty(t, out, "flat route still renders")
}

func TestFormatDevice(t *testing.T) {
	assert.Equal(t, "KICKR CORE 1234 (AA:BB) [RSSI: -60]", formatDevice("KICKR CORE 1234", "AA:BB", -60))
	assert.Equal(t, "Unknown (AA:BB) [RSSI: -60]", formatDevice("", "AA:BB", -60))
}

func TestLiveFeedIntegratesDistance(t *testing.T) {
	store := ride.NewStore()
	f := newLiveFeed(store)

	clock := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return clock }
	f.start()

	// 36 km/h for 2 seconds = 20 m.
	clock = clock.Add(2 * time.Second)
	f.onReading(protocol.Reading{PowerW: 200, CadenceRPM: 85, SpeedKmh: 36})

	m := store.Metrics()
	assert.Equal(t, 200.0, m.PowerW)
	assert.InDelta(t, 20.0, m.DistanceM, 1e-9)
	assert.InDelta(t, 2.0, m.ElapsedS, 1e-9)

	// Another second at the same speed accumulates.
	clock = clock.Add(time.Second)
	f.onReading(protocol.Reading{SpeedKmh: 36})
	assert.InDelta(t, 30.0, store.Metrics().DistanceM, 1e-9)
}

func TestLiveFeedFirstReadingWithoutStart(t *testing.T) {
	store := ride.NewStore()
	f := newLiveFeed(store)

	f.onReading(protocol.Reading{SpeedKmh: 36})
	assert.Equal(t, 0.0, store.Metrics().DistanceM, "no wall-clock gap yet")
}

// stubTrainer is the minimum bt.Device needed to put a session into a
// connected state from keyboard tests.
type stubTrainer struct {
	mu        sync.Mutex
	connected bool
	services  []string
	writes    map[string][][]byte
}

var _ bt.Device = (*stubTrainer)(nil)

func newStubTrainer(services ...string) *stubTrainer {
	return &stubTrainer{services: services, writes: make(map[string][][]byte)}
}

func (d *stubTrainer) AddressString() string    { return "AA:BB:CC:DD:EE:FF" }
func (d *stubTrainer) LocalName() string        { return "KICKR CORE 1234" }
func (d *stubTrainer) ScanRSSI() (int16, error) { return -60, nil }

func (d *stubTrainer) State() bt.DeviceState {
	if d.IsConnected() {
		return bt.Connected
	}
	return bt.Disconnected
}

func (d *stubTrainer) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *stubTrainer) WaitForConnection(time.Duration) error { return nil }
func (d *stubTrainer) ServiceUUIDs() []string                { return d.services }

func (d *stubTrainer) HasServiceUUID(uuid string) bool {
	for _, s := range d.services {
		if s == uuid {
			return true
		}
	}
	return false
}

func (d *stubTrainer) EnableNotifications(string, string, func(buf []byte)) error { return nil }
func (d *stubTrainer) DisableNotifications(string, string) error                  { return nil }

func (d *stubTrainer) WriteCharacteristic(_, charUUID string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes[charUUID] = append(d.writes[charUUID], append([]byte(nil), data...))
	return nil
}

type stubConnector struct {
	dev *stubTrainer
}

func (c stubConnector) Connect(bt.Device) error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.dev.connected = true
	return nil
}

func (c stubConnector) Disconnect(bt.Device) error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.dev.connected = false
	return nil
}

func TestResistanceKeysSendBrakeCommands(t *testing.T) {
	dev := newStubTrainer(protocol.ServiceUUIDWahoo)
	logger := log.New(io.Discard, "", 0)
	session := trainer.NewSession(stubConnector{dev: dev}, logger)

	ok, msg := session.Connect(dev)
	require.True(t, ok, msg)

	v := NewView(Deps{Logger: logger, Session: session})
	v.Initialize()
	capture := v.app.GetInputCapture()
	require.NotNil(t, capture)

	for _, key := range []rune{'3', '4', '5'} {
		handled := capture(tcell.NewEventKey(tcell.KeyRune, key, tcell.ModNone))
		assert.Nil(t, handled, "key %c should be consumed", key)
	}

	writes := dev.writes[protocol.CharUUIDWahooControl]
	require.Len(t, writes, 3)
	assert.Equal(t, []byte{0x41, 0x02}, writes[0]) // 20%
	assert.Equal(t, []byte{0x41, 0x05}, writes[1]) // 50%
	assert.Equal(t, []byte{0x41, 0x07}, writes[2]) // 80%
}

func TestResistanceKeyWithoutConnectionLogsFailure(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	session := trainer.NewSession(stubConnector{dev: newStubTrainer()}, logger)

	v := NewView(Deps{Logger: logger, Session: session})
	v.Initialize()

	v.app.GetInputCapture()(tcell.NewEventKey(tcell.KeyRune, '3', tcell.ModNone))

	assert.Contains(t, v.logView.GetText(true), "Not connected")
}
