package bt

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/scottharvey/crankTUI/internal/events"
	"github.com/scottharvey/crankTUI/internal/goutil"
	"tinygo.org/x/bluetooth"
)

// Manager owns the BLE adapter: scanning, connect/disconnect, and the
// per-address Device registry.
type Manager interface {
	Enable() error
	DeviceByAddress(address string) Device
	StartScan(filter ScanFilter)
	StopScan() error
	IsScanning() bool
	Connect(device Device) error
	Disconnect(device Device) error
	ScanDevices() []Device
	ListenToScanDevices(ch chan<- []Device) func()
	ListenToConnectedDevices(ch chan<- []Device) func()
	Shutdown()
}

var _ Manager = (*AdapterManager)(nil)

type AdapterManager struct {
	adapter          *bluetooth.Adapter
	devicesByAddress map[string]*deviceImpl
	mu               sync.RWMutex
	scanning         bool
	scanTimeout      time.Duration

	scanDevicesEvent      *events.ChannelEvent[[]Device]
	connectedDevicesEvent *events.ChannelEvent[[]Device]

	scanCtx    context.Context
	scanCancel context.CancelFunc
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *log.Logger
}

const defaultScanTimeout = 15 * time.Second

func NewAdapterManager(adapter *bluetooth.Adapter, logger *log.Logger) *AdapterManager {
	if logger == nil {
		panic("bt: Manager logger cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AdapterManager{
		adapter:               adapter,
		devicesByAddress:      make(map[string]*deviceImpl),
		scanTimeout:           defaultScanTimeout,
		scanDevicesEvent:      events.NewChannelEvent[[]Device](true),
		connectedDevicesEvent: events.NewChannelEvent[[]Device](true),
		ctx:                   ctx,
		cancel:                cancel,
		logger:                logger,
	}
}

func (m *AdapterManager) Enable() error {
	// The connect handler is the single source of truth for link state: both
	// our own Connect calls and spontaneous disconnects land here.
	m.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		d := m.deviceImplFor(device.Address)
		if connected {
			m.logger.Printf("bt: device connected: %s", device.Address.String())
			dev := device
			d.setConnectedDevice(&dev)
			d.setState(Connected)
		} else {
			m.logger.Printf("bt: device disconnected: %s", device.Address.String())
			d.setConnectedDevice(nil)
			d.setState(Disconnected)
		}
		m.emitConnectedDevices()
	})
	return m.adapter.Enable()
}

func (m *AdapterManager) DeviceByAddress(address string) Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.devicesByAddress[address]; ok {
		return d
	}
	return nil
}

func (m *AdapterManager) deviceImplFor(address bluetooth.Address) *deviceImpl {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr := address.String()
	d, ok := m.devicesByAddress[addr]
	if !ok {
		d = newDeviceImpl(m.logger, address, m.scanTimeout)
		m.devicesByAddress[addr] = d
	}
	return d
}

// ScanFilter limits scan results to devices advertising one of the
// service UUIDs or carrying one of the keywords in their local name.
// An empty filter matches everything.
type ScanFilter struct {
	ServiceUUIDs []string
	NameKeywords []string
}

func (f ScanFilter) empty() bool {
	return len(f.ServiceUUIDs) == 0 && len(f.NameKeywords) == 0
}

func (f ScanFilter) matchesName(name string) bool {
	if name == "" {
		return false
	}
	upper := strings.ToUpper(name)
	for _, kw := range f.NameKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

func (m *AdapterManager) StartScan(filter ScanFilter) {
	m.mu.Lock()
	if m.scanning && m.scanCancel != nil {
		m.logger.Printf("bt: scan already running, restarting")
		m.scanCancel()
	}
	m.scanning = true
	m.scanCtx, m.scanCancel = context.WithCancel(m.ctx)
	scanCtx := m.scanCtx
	m.mu.Unlock()

	filterSet := make(map[string]struct{}, len(filter.ServiceUUIDs))
	for _, f := range filter.ServiceUUIDs {
		filterSet[f] = struct{}{}
	}

	m.wg.Add(1)
	goutil.SafeGo(m.logger, func() {
		defer m.wg.Done()
		m.cleanupStaleDevices(scanCtx)
	})

	m.wg.Add(1)
	goutil.SafeGo(m.logger, func() {
		defer m.wg.Done()
		defer m.logger.Printf("bt: exiting scan loop")

		err := m.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			select {
			case <-scanCtx.Done():
				return
			default:
			}

			if !filter.empty() {
				found := false
				for _, uuid := range result.ServiceUUIDs() {
					if _, ok := filterSet[uuid.String()]; ok {
						found = true
						break
					}
				}
				if !found && !filter.matchesName(result.LocalName()) {
					return
				}
			}

			d := m.deviceImplFor(result.Address)
			fresh := d.scanSeen().IsZero() || d.scanSeen().Equal(time.Unix(0, 0))
			res := result
			d.setScanResult(&res, time.Now())
			d.setServiceUUIDs(result.ServiceUUIDs())
			if fresh {
				name := result.LocalName()
				if name == "" {
					name = "Unknown"
				}
				m.logger.Printf("bt: found device: %s (%s) [RSSI: %d]", name, result.Address.String(), result.RSSI)
			}
		})
		if err != nil {
			m.logger.Printf("bt: scan error: %v", err)
		}
	})

	// Emit the current scan results once a second while scanning.
	m.wg.Add(1)
	goutil.SafeGo(m.logger, func() {
		defer m.wg.Done()

		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-scanCtx.Done():
				return
			case <-ticker.C:
				m.scanDevicesEvent.Notify(m.ScanDevices())
			}
		}
	})
}

func (m *AdapterManager) cleanupStaleDevices(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			for addr, d := range m.devicesByAddress {
				if d.IsConnected() {
					continue
				}
				if now.Sub(d.scanSeen()) > m.scanTimeout {
					delete(m.devicesByAddress, addr)
					m.logger.Printf("bt: device timeout: %s (not seen for %v)", addr, m.scanTimeout)
				}
			}
			m.mu.Unlock()
		}
	}
}

func (m *AdapterManager) StopScan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanning = false
	if m.scanCancel != nil {
		m.scanCancel()
		m.scanCancel = nil
	}
	return m.adapter.StopScan()
}

func (m *AdapterManager) IsScanning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanning
}

// Connect initiates a connection. Completion is reported asynchronously via
// the adapter's connect handler; use Device.WaitForConnection to block.
func (m *AdapterManager) Connect(device Device) error {
	addr := device.AddressString()
	m.mu.RLock()
	impl, ok := m.devicesByAddress[addr]
	m.mu.RUnlock()
	if !ok || impl == nil {
		return fmt.Errorf("unknown device %s", addr)
	}

	if _, err := m.adapter.Connect(impl.address, bluetooth.ConnectionParams{}); err != nil {
		m.logger.Printf("bt: connection error: %v", err)
		return err
	}
	impl.setState(Connecting)
	m.logger.Printf("bt: connection initiated to %s", addr)
	return nil
}

func (m *AdapterManager) Disconnect(device Device) error {
	addr := device.AddressString()
	m.mu.RLock()
	impl, ok := m.devicesByAddress[addr]
	m.mu.RUnlock()
	if !ok || impl == nil {
		return fmt.Errorf("unknown device %s", addr)
	}
	if impl.State() == Disconnected {
		return nil
	}
	inner := impl.connectedDevice()
	if inner == nil {
		return nil
	}
	return inner.Disconnect()
}

func (m *AdapterManager) ScanDevices() []Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]Device, 0)
	for _, d := range m.devicesByAddress {
		if d.isRecentlyScanned() {
			result = append(result, d)
		}
	}
	return result
}

func (m *AdapterManager) connectedDevices() []Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]Device, 0)
	for _, d := range m.devicesByAddress {
		if d.IsConnected() {
			result = append(result, d)
		}
	}
	return result
}

func (m *AdapterManager) emitConnectedDevices() {
	m.connectedDevicesEvent.Notify(m.connectedDevices())
}

func (m *AdapterManager) ListenToScanDevices(ch chan<- []Device) func() {
	return m.scanDevicesEvent.Listen(ch)
}

func (m *AdapterManager) ListenToConnectedDevices(ch chan<- []Device) func() {
	return m.connectedDevicesEvent.Listen(ch)
}

func (m *AdapterManager) Shutdown() {
	m.logger.Println("bt: Manager shutting down")
	for _, dev := range m.connectedDevices() {
		if err := m.Disconnect(dev); err != nil {
			m.logger.Printf("bt: error disconnecting %s: %v", dev.AddressString(), err)
		}
	}
	if err := m.StopScan(); err != nil {
		m.logger.Printf("bt: error stopping scan: %v", err)
	}
	m.cancel()
	m.wg.Wait()
	m.logger.Println("bt: Manager shutdown complete")
}
