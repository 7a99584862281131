package bt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/scottharvey/crankTUI/internal/safemap"
	"tinygo.org/x/bluetooth"
)

type DeviceState int

const (
	Disconnected DeviceState = iota
	Connecting
	Connected
)

func (s DeviceState) String() string {
	switch s {
	case Connected:
		return "Connected"
	case Connecting:
		return "Connecting"
	default:
		return "Disconnected"
	}
}

// Device is the transport-level view of one BLE peripheral. The trainer
// session drives it through this interface so tests can substitute a fake.
type Device interface {
	AddressString() string
	LocalName() string
	ScanRSSI() (int16, error)
	State() DeviceState
	IsConnected() bool
	WaitForConnection(timeout time.Duration) error
	ServiceUUIDs() []string
	HasServiceUUID(uuid string) bool
	EnableNotifications(serviceUUID, charUUID string, callback func(buf []byte)) error
	DisableNotifications(serviceUUID, charUUID string) error
	WriteCharacteristic(serviceUUID, charUUID string, data []byte) error
}

type deviceImpl struct {
	address      bluetooth.Address
	localName    string
	scanLastSeen time.Time
	scanResult   *bluetooth.ScanResult
	connected    *bluetooth.Device // nil when not connected
	mu           sync.RWMutex
	bleMu        sync.Mutex // serializes GATT operations on this peripheral
	scanTimeout  time.Duration
	logger       *log.Logger
	state        DeviceState

	serviceByUUID        *safemap.SafeMap[string, *bluetooth.DeviceService]
	charByUUID           *safemap.SafeMap[string, *bluetooth.DeviceCharacteristic]
	serviceCharsResolved *safemap.SafeMap[string, bool]
	allServicesResolved  bool
	serviceUUIDStrs      []string
}

func newDeviceImpl(logger *log.Logger, address bluetooth.Address, scanTimeout time.Duration) *deviceImpl {
	if logger == nil {
		panic("bt: logger must be non nil")
	}
	if scanTimeout <= 0 {
		panic("bt: scanTimeout must be > 0")
	}
	return &deviceImpl{
		logger:               logger,
		address:              address,
		localName:            "Unknown",
		scanTimeout:          scanTimeout,
		scanLastSeen:         time.Unix(0, 0),
		state:                Disconnected,
		serviceByUUID:        safemap.New[string, *bluetooth.DeviceService](),
		charByUUID:           safemap.New[string, *bluetooth.DeviceCharacteristic](),
		serviceCharsResolved: safemap.New[string, bool](),
	}
}

func (d *deviceImpl) AddressString() string {
	return d.address.String()
}

func (d *deviceImpl) LocalName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.scanResult != nil {
		if name := d.scanResult.LocalName(); name != "" {
			return name
		}
	}
	return d.localName
}

func (d *deviceImpl) ScanRSSI() (int16, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.scanResult == nil {
		return 0, errors.New("no rssi available")
	}
	return d.scanResult.RSSI, nil
}

func (d *deviceImpl) State() DeviceState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *deviceImpl) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected != nil
}

func (d *deviceImpl) WaitForConnection(timeout time.Duration) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(timeout)

	for {
		select {
		case <-ticker.C:
			if d.IsConnected() {
				return nil
			}
		case <-deadline:
			return fmt.Errorf("timeout after %v waiting for connection", timeout)
		}
	}
}

func (d *deviceImpl) ServiceUUIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	result := make([]string, len(d.serviceUUIDStrs))
	copy(result, d.serviceUUIDStrs)
	return result
}

func (d *deviceImpl) HasServiceUUID(uuid string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.serviceUUIDStrs {
		if u == uuid {
			return true
		}
	}
	return false
}

func (d *deviceImpl) setServiceUUIDs(uuids []bluetooth.UUID) {
	strs := make([]string, 0, len(uuids))
	for _, u := range uuids {
		strs = append(strs, u.String())
	}
	d.mu.Lock()
	d.serviceUUIDStrs = strs
	d.mu.Unlock()
}

func (d *deviceImpl) setScanResult(result *bluetooth.ScanResult, seen time.Time) {
	d.mu.Lock()
	d.scanResult = result
	d.scanLastSeen = seen
	d.mu.Unlock()
}

func (d *deviceImpl) isRecentlyScanned() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.scanResult == nil {
		return false
	}
	return time.Since(d.scanLastSeen) <= d.scanTimeout
}

func (d *deviceImpl) scanSeen() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.scanLastSeen
}

func (d *deviceImpl) setConnectedDevice(dev *bluetooth.Device) {
	d.mu.Lock()
	d.connected = dev
	if dev == nil {
		// A fresh connection re-discovers the GATT table; stale handles from
		// the previous link must not be reused.
		d.allServicesResolved = false
		d.serviceByUUID = safemap.New[string, *bluetooth.DeviceService]()
		d.charByUUID = safemap.New[string, *bluetooth.DeviceCharacteristic]()
		d.serviceCharsResolved = safemap.New[string, bool]()
	}
	d.mu.Unlock()
}

func (d *deviceImpl) connectedDevice() *bluetooth.Device {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

func (d *deviceImpl) setState(state DeviceState) {
	d.mu.Lock()
	d.state = state
	d.mu.Unlock()
}

func (d *deviceImpl) EnableNotifications(serviceUUIDStr, charUUIDStr string, callback func(buf []byte)) error {
	d.bleMu.Lock()
	defer d.bleMu.Unlock()

	char, err := d.resolveCharacteristic(serviceUUIDStr, charUUIDStr)
	if err != nil {
		return err
	}

	if err := char.EnableNotifications(callback); err != nil {
		return fmt.Errorf("failed to enable notifications on %s: %w", charUUIDStr, err)
	}
	d.logger.Printf("bt: notifications enabled for %s", charUUIDStr)
	return nil
}

func (d *deviceImpl) DisableNotifications(serviceUUIDStr, charUUIDStr string) error {
	d.bleMu.Lock()
	defer d.bleMu.Unlock()

	char, err := d.resolveCharacteristic(serviceUUIDStr, charUUIDStr)
	if err != nil {
		return err
	}

	// A nil callback disables notifications in tinygo bluetooth.
	if err := char.EnableNotifications(nil); err != nil {
		return fmt.Errorf("failed to disable notifications on %s: %w", charUUIDStr, err)
	}
	return nil
}

func (d *deviceImpl) WriteCharacteristic(serviceUUIDStr, charUUIDStr string, data []byte) error {
	d.bleMu.Lock()
	defer d.bleMu.Unlock()

	char, err := d.resolveCharacteristic(serviceUUIDStr, charUUIDStr)
	if err != nil {
		return err
	}

	if _, err := char.WriteWithoutResponse(data); err != nil {
		return fmt.Errorf("failed to write characteristic %s: %w", charUUIDStr, err)
	}
	return nil
}

func (d *deviceImpl) resolveCharacteristic(serviceUUIDStr, charUUIDStr string) (*bluetooth.DeviceCharacteristic, error) {
	serviceUUID, err := bluetooth.ParseUUID(serviceUUIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", serviceUUIDStr, err)
	}
	charUUID, err := bluetooth.ParseUUID(charUUIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic UUID %q: %w", charUUIDStr, err)
	}

	comboKey := serviceUUID.String() + "_" + charUUID.String()
	if char, ok := d.charByUUID.Load(comboKey); ok {
		return char, nil
	}

	service, err := d.resolveService(serviceUUID)
	if err != nil {
		return nil, err
	}

	serviceKey := serviceUUID.String()
	if resolved, _ := d.serviceCharsResolved.Load(serviceKey); !resolved {
		// Discover ALL characteristics at once. Discovering singular
		// characteristics repeatedly interrupts already-active subscriptions
		// on some BLE stacks.
		chars, err := service.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("could not discover characteristics for service %s: %w", serviceKey, err)
		}
		for i := range chars {
			c := &chars[i]
			d.charByUUID.Store(serviceKey+"_"+c.UUID().String(), c)
		}
		d.serviceCharsResolved.Store(serviceKey, true)
	}

	char, ok := d.charByUUID.Load(comboKey)
	if !ok {
		return nil, fmt.Errorf("characteristic %s not found in service %s", charUUIDStr, serviceUUIDStr)
	}
	return char, nil
}

func (d *deviceImpl) resolveService(serviceUUID bluetooth.UUID) (*bluetooth.DeviceService, error) {
	connected := d.connectedDevice()
	if connected == nil {
		return nil, errors.New("no connected device")
	}

	key := serviceUUID.String()
	if service, ok := d.serviceByUUID.Load(key); ok {
		return service, nil
	}

	d.mu.Lock()
	resolved := d.allServicesResolved
	d.mu.Unlock()

	if !resolved {
		services, err := connected.DiscoverServices(nil)
		if err != nil {
			return nil, fmt.Errorf("error discovering services: %w", err)
		}
		for i := range services {
			svc := &services[i]
			d.serviceByUUID.Store(svc.UUID().String(), svc)
		}
		d.mu.Lock()
		d.allServicesResolved = true
		d.mu.Unlock()
	}

	service, ok := d.serviceByUUID.Load(key)
	if !ok {
		return nil, fmt.Errorf("service %s not found on device", key)
	}
	return service, nil
}
