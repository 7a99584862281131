// Package ui composes the terminal interface: device picker, riding
// dashboard, and the log panel shared between them.
package ui

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/scottharvey/crankTUI/internal/bt"
	"github.com/scottharvey/crankTUI/internal/config"
	"github.com/scottharvey/crankTUI/internal/goutil"
	"github.com/scottharvey/crankTUI/internal/protocol"
	"github.com/scottharvey/crankTUI/internal/recorder"
	"github.com/scottharvey/crankTUI/internal/ride"
	"github.com/scottharvey/crankTUI/internal/route"
	"github.com/scottharvey/crankTUI/internal/trainer"
)

// Page names for tview.Pages
const (
	pageDevices = "devices"
	pageRiding  = "riding"
)

const elevationChartHeight = 8

// Deps are the collaborators the view drives. All fields are required
// except Recorder, which is absent in demo mode without a selected route.
type Deps struct {
	Logger   *log.Logger
	Manager  bt.Manager
	Session  *trainer.Session
	Sim      *trainer.SimController
	Demo     *trainer.DemoSimulator
	Store    *ride.Store
	Recorder *recorder.RideLogger
	Config   *config.Config
	Route    *route.Route
}

// View is the tview application shell.
type View struct {
	deps Deps
	app  *tview.Application

	pages   *tview.Pages
	logView *tview.TextView

	deviceList  *tview.List
	scanDevices []bt.Device

	metricsPanel   *tview.TextView
	elevationPanel *tview.TextView
	helpPanel      *tview.TextView

	feed *liveFeed
}

func NewView(deps Deps) *View {
	if deps.Logger == nil {
		panic("ui: logger must not be nil")
	}
	return &View{
		deps: deps,
		app:  tview.NewApplication(),
		feed: newLiveFeed(deps.Store),
	}
}

// Initialize builds the widget tree. Must be called before Run.
func (v *View) Initialize() {
	// Note: no SetChangedFunc with app.Draw() on the log view - it can hang
	// during shutdown when the app has stopped but log writes continue.
	v.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	v.logView.SetBorder(true).SetTitle(" Logs ")

	v.pages = tview.NewPages()
	v.initDevicesPage()
	v.initRidingPage()
	v.pages.AddPage(pageDevices, v.devicesFlex(), true, true)
	v.pages.AddPage(pageRiding, v.ridingFlex(), true, false)

	mainFlex := tview.NewFlex().
		AddItem(v.pages, 0, 2, true).
		AddItem(v.logView, 0, 1, false)

	v.app.SetRoot(mainFlex, true)
	v.setupKeyboardHandlers()
}

func (v *View) initDevicesPage() {
	v.deviceList = tview.NewList().
		ShowSecondaryText(false).
		SetSelectedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
			if index >= len(v.scanDevices) {
				return
			}
			v.connectTo(v.scanDevices[index])
		})
	v.deviceList.SetBorder(true).SetTitle(" Trainers ")
}

func (v *View) devicesFlex() *tview.Flex {
	instructions := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	instructions.SetText("[yellow]S[white] Toggle Scan  |  [yellow]Enter[white] Connect  |  [yellow]L[white] Last Device  |  [yellow]2[white] Ride  |  [yellow]Esc[white] Quit")

	return tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(instructions, 2, 0, false).
		AddItem(v.deviceList, 0, 1, true)
}

func (v *View) initRidingPage() {
	v.metricsPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	v.metricsPanel.SetBorder(true).SetTitle(" Metrics ")
	v.metricsPanel.SetText(renderMetrics(ride.Metrics{ResistanceScale: ride.DefaultResistanceScale}))

	v.elevationPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	v.elevationPanel.SetBorder(true)
	if v.deps.Route != nil {
		v.elevationPanel.SetTitle(fmt.Sprintf(" %s ", v.deps.Route.Name))
	} else {
		v.elevationPanel.SetTitle(" Route ")
	}

	v.helpPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	v.helpPanel.SetText("[yellow]M[white] SIM  |  [yellow]E[white] ERG  |  [yellow]3/4/5[white] Resistance Lo/Med/Hi  |  [yellow]+/-[white] Scale  |  [yellow]R[white] Record  |  [yellow]1[white] Devices")
}

func (v *View) ridingFlex() *tview.Flex {
	return tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(v.metricsPanel, 0, 2, true).
		AddItem(v.elevationPanel, elevationChartHeight+3, 0, false).
		AddItem(v.helpPanel, 1, 0, false)
}

func (v *View) setupKeyboardHandlers() {
	v.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape {
			v.app.Stop()
			return nil
		}
		if event.Key() != tcell.KeyRune {
			return event
		}

		switch event.Rune() {
		case '1':
			v.pages.SwitchToPage(pageDevices)
		case '2':
			v.pages.SwitchToPage(pageRiding)
		case 's', 'S':
			v.toggleScan()
		case 'l', 'L':
			v.connectToLastDevice()
		case '3':
			v.setResistanceLevel(20)
		case '4':
			v.setResistanceLevel(50)
		case '5':
			v.setResistanceLevel(80)
		case 'm', 'M':
			v.startSimMode()
		case 'e', 'E':
			v.startErgMode()
		case '+', '=':
			v.adjustScale(1)
		case '-':
			v.adjustScale(-1)
		case 'r', 'R':
			v.toggleRecording()
		case 'q', 'Q':
			v.app.Stop()
		default:
			return event
		}
		return nil
	})
}

// Run starts the demo ride (when no trainer is expected), the event
// listeners, and the tview main loop. Blocks until the user quits.
func (v *View) Run(ctx context.Context) error {
	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	v.listenToStore(listenCtx)
	v.listenToScan(listenCtx)

	defer v.shutdown()
	return v.app.Run()
}

func (v *View) shutdown() {
	if v.deps.Recorder != nil {
		v.deps.Recorder.Stop()
	}
	v.deps.Sim.Stop()
	v.deps.Demo.Stop()
	v.deps.Session.Disconnect()
}

func (v *View) listenToStore(ctx context.Context) {
	ch := make(chan ride.Metrics, 16)
	stop := v.deps.Store.Listen(ch)

	goutil.SafeGo(v.deps.Logger, func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-ch:
				v.app.QueueUpdateDraw(func() {
					v.metricsPanel.SetText(renderMetrics(m))
					if v.deps.Route != nil {
						v.elevationPanel.SetText(renderElevation(
							v.deps.Route, 60, elevationChartHeight, m.DistanceM))
					}
				})
			}
		}
	})
}

func (v *View) listenToScan(ctx context.Context) {
	ch := make(chan []bt.Device, 4)
	stop := v.deps.Manager.ListenToScanDevices(ch)

	goutil.SafeGo(v.deps.Logger, func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case devices := <-ch:
				v.app.QueueUpdateDraw(func() {
					v.scanDevices = devices
					v.deviceList.Clear()
					for _, d := range devices {
						rssi, _ := d.ScanRSSI()
						v.deviceList.AddItem(formatDevice(d.LocalName(), d.AddressString(), rssi), "", 0, nil)
					}
				})
			}
		}
	})
}

func (v *View) toggleScan() {
	if v.deps.Manager.IsScanning() {
		if err := v.deps.Manager.StopScan(); err != nil {
			v.logf("Stop scan failed: %v", err)
		}
		v.logf("Scan stopped")
		return
	}
	v.deps.Manager.StartScan(bt.ScanFilter{
		ServiceUUIDs: []string{
			protocol.ServiceUUIDFTMS,
			protocol.ServiceUUIDWahoo,
			protocol.ServiceUUIDCyclingPower,
		},
		// Some trainers advertise without service UUIDs; match on name too.
		NameKeywords: []string{"KICKR", "WAHOO", "TACX", "ELITE", "SARIS"},
	})
	v.logf("Scanning for trainers...")
}

// connectTo runs the connect sequence off the UI goroutine; Connect blocks
// for up to the transport timeout.
func (v *View) connectTo(device bt.Device) {
	v.logf("Connecting to %s...", device.LocalName())
	goutil.SafeGo(v.deps.Logger, func() {
		ok, msg := v.deps.Session.Connect(device)
		if !ok {
			v.logf("%s", msg)
			return
		}

		addr, name := v.deps.Session.DeviceInfo()
		v.deps.Config.SetLastDevice(addr, name)
		v.logf("Connected to %s (%s)", name, v.deps.Session.Protocol())

		v.deps.Demo.Stop()
		v.feed.start()
		v.deps.Store.StartSession(ride.ModeLive, time.Now())
		if ok, msg := v.deps.Session.StartDataStream(v.feed.onReading); !ok {
			v.logf("Telemetry unavailable: %s", msg)
			return
		}
		v.app.QueueUpdateDraw(func() {
			v.pages.SwitchToPage(pageRiding)
		})
	})
}

func (v *View) connectToLastDevice() {
	addr, name := v.deps.Config.LastDevice()
	if addr == "" {
		v.logf("No previous trainer saved")
		return
	}
	device := v.deps.Manager.DeviceByAddress(addr)
	if device == nil {
		v.logf("%s not seen yet - scan first", name)
		return
	}
	v.connectTo(device)
}

func (v *View) startSimMode() {
	if !v.deps.Session.IsConnected() {
		v.logf("SIM mode needs a connected trainer")
		return
	}
	v.deps.Sim.Start(context.Background())
	v.logf("SIM mode: resistance follows %s", v.deps.Route.Name)
}

func (v *View) startErgMode() {
	if !v.deps.Session.IsConnected() {
		v.logf("ERG mode needs a connected trainer")
		return
	}
	v.deps.Store.SetMode(ride.ModeErg) // ends a running SIM loop cooperatively
	target := 200.0
	if ok, msg := v.deps.Session.SetTargetPower(target); !ok {
		v.logf("ERG mode failed: %s", msg)
		return
	}
	v.logf("ERG mode: holding %.0f W", target)
}

// setResistanceLevel sends a fixed brake level, bypassing SIM/ERG. Useful
// for checking that trainer control works at all.
func (v *View) setResistanceLevel(percent float64) {
	if ok, msg := v.deps.Session.SetResistanceLevel(percent); !ok {
		v.logf("Resistance command failed: %s", msg)
		return
	}
	v.logf("Resistance set to %.0f%%", percent)
}

func (v *View) adjustScale(steps int) {
	scale := v.deps.Sim.AdjustScale(steps)
	v.logf("Resistance scale: %.1fx", scale)
}

func (v *View) toggleRecording() {
	if v.deps.Recorder == nil {
		v.logf("Recording unavailable")
		return
	}
	if v.deps.Store.Metrics().IsRecording {
		v.deps.Recorder.Stop()
		v.logf("Recording saved: %s", v.deps.Recorder.FilePath())
		return
	}
	path, err := v.deps.Recorder.Start(context.Background())
	if err != nil {
		v.logf("Recording failed: %v", err)
		return
	}
	v.logf("Recording to %s", path)
}

// logf appends a timestamped line to the log panel and the app logger.
// TextView.Write is safe from any goroutine; QueueUpdateDraw is not used
// here because logf also runs on the event goroutine, where queueing a
// draw would deadlock.
func (v *View) logf(format string, args ...interface{}) {
	v.deps.Logger.Printf("ui: "+format, args...)
	message := fmt.Sprintf("[%s] %s\n", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	fmt.Fprint(v.logView, message)
}
