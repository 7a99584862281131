// Package trainer owns the logical trainer session on top of the BLE
// transport: protocol selection, telemetry decode fan-in, control commands,
// and the SIM/demo ride loops.
package trainer

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/scottharvey/crankTUI/internal/bt"
	"github.com/scottharvey/crankTUI/internal/protocol"
)

const connectTimeout = 10 * time.Second

// The peripheral's GATT table is not guaranteed to be populated right after
// the link comes up; discovering too early returns an empty table on some
// trainers. Variable so tests can skip the wait.
var settleDelay = 500 * time.Millisecond

// Connector is the slice of the BLE manager the session needs.
type Connector interface {
	Connect(device bt.Device) error
	Disconnect(device bt.Device) error
}

var _ Connector = (bt.Manager)(nil)

// ReadingCallback receives the merged telemetry snapshot after every
// successfully decoded notification.
type ReadingCallback func(reading protocol.Reading)

// Session is one logical connection to a trainer. It selects the wire
// protocol from the advertised services, fans decoded notifications from
// all subscribed characteristics into a single last-known-value reading,
// and exposes the vendor control commands.
//
// All BLE failures surface as (false, message) results; nothing here
// propagates a transport error to the caller.
type Session struct {
	connector Connector
	logger    *log.Logger

	mu       sync.Mutex
	device   bt.Device
	proto    protocol.Protocol
	address  string
	name     string
	latest   protocol.Reading
	csc      *protocol.CSCDecoder
	callback ReadingCallback
}

func NewSession(connector Connector, logger *log.Logger) *Session {
	if connector == nil {
		panic("trainer: connector must not be nil")
	}
	if logger == nil {
		panic("trainer: logger must not be nil")
	}
	return &Session{
		connector: connector,
		logger:    logger,
		csc:       protocol.NewCSCDecoder(),
	}
}

// IsConnected reports whether a trainer link is up.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device != nil && s.device.IsConnected()
}

// Protocol returns the wire protocol selected at connect time.
func (s *Session) Protocol() protocol.Protocol {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proto
}

// DeviceInfo returns the connected trainer's address and name. Both are
// empty when disconnected.
func (s *Session) DeviceInfo() (address, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address, s.name
}

// Latest returns the current merged telemetry snapshot.
func (s *Session) Latest() protocol.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Connect establishes a link to device and selects the protocol to speak.
// An existing connection is torn down first; the session never layers two
// links. FTMS is preferred when a trainer advertises both it and the Wahoo
// service.
func (s *Session) Connect(device bt.Device) (bool, string) {
	s.Disconnect()

	if err := s.connector.Connect(device); err != nil {
		return false, fmt.Sprintf("Connection failed: %v", err)
	}
	if err := device.WaitForConnection(connectTimeout); err != nil {
		s.connector.Disconnect(device)
		return false, fmt.Sprintf("Connection failed: %v", err)
	}

	time.Sleep(settleDelay)

	var proto protocol.Protocol
	switch {
	case device.HasServiceUUID(protocol.ServiceUUIDFTMS):
		proto = protocol.ProtocolFTMS
	case device.HasServiceUUID(protocol.ServiceUUIDWahoo):
		proto = protocol.ProtocolWahoo
	default:
		s.connector.Disconnect(device)
		return false, "No FTMS or Wahoo service found"
	}

	s.mu.Lock()
	s.device = device
	s.proto = proto
	s.address = device.AddressString()
	s.name = device.LocalName()
	s.latest = protocol.Reading{}
	s.csc.Reset()
	s.mu.Unlock()

	s.logger.Printf("trainer: connected to %s (%s) using %s", s.name, s.address, proto)
	return true, ""
}

// Disconnect tears the link down. Idempotent: callable at any time, and the
// session's address/name/protocol state is cleared even when the transport
// disconnect fails.
func (s *Session) Disconnect() {
	s.mu.Lock()
	device := s.device
	s.device = nil
	s.proto = protocol.ProtocolUnknown
	s.address = ""
	s.name = ""
	s.callback = nil
	s.mu.Unlock()

	if device == nil {
		return
	}
	if err := s.connector.Disconnect(device); err != nil {
		s.logger.Printf("trainer: disconnect error (ignored): %v", err)
	}
}

// StartDataStream subscribes to the telemetry characteristics of the
// selected protocol and delivers merged readings to onReading. For the
// Wahoo protocol the subscription is a best-effort fan-out over four
// characteristics; the stream counts as started when at least one
// subscription succeeds.
func (s *Session) StartDataStream(onReading ReadingCallback) (bool, string) {
	s.mu.Lock()
	device := s.device
	proto := s.proto
	s.callback = onReading
	s.mu.Unlock()

	if device == nil {
		return false, "Not connected"
	}

	switch proto {
	case protocol.ProtocolFTMS:
		err := device.EnableNotifications(protocol.ServiceUUIDFTMS, protocol.CharUUIDIndoorBikeData,
			func(buf []byte) { s.handleIndoorBikeData(buf) })
		if err != nil {
			return false, fmt.Sprintf("Subscribe failed: %v", err)
		}
		return true, ""

	case protocol.ProtocolWahoo:
		s.sendUnlock(device)

		type sub struct {
			service string
			char    string
			handler func([]byte)
		}
		subs := []sub{
			{protocol.ServiceUUIDWahoo, protocol.CharUUIDWahooData, s.handleWahooData},
			{protocol.ServiceUUIDWahoo, protocol.CharUUIDWahooControl, s.handleWahooControl},
			{protocol.ServiceUUIDCyclingPower, protocol.CharUUIDCyclingPowerMeasurement, s.handleCyclingPower},
			{protocol.ServiceUUIDCyclingPower, protocol.CharUUIDCSCMeasurement, s.handleCSC},
		}

		subscribed := 0
		for _, sb := range subs {
			if err := device.EnableNotifications(sb.service, sb.char, sb.handler); err != nil {
				s.logger.Printf("trainer: subscribe %s failed (continuing): %v", sb.char, err)
				continue
			}
			subscribed++
		}
		if subscribed == 0 {
			return false, "No telemetry characteristics available"
		}
		return true, ""

	default:
		return false, "Not connected"
	}
}

// sendUnlock arms the Wahoo control channel. Some firmware revisions accept
// commands without it, so a failed unlock is logged and ignored.
func (s *Session) sendUnlock(device bt.Device) {
	err := device.WriteCharacteristic(protocol.ServiceUUIDWahoo, protocol.CharUUIDWahooControl,
		protocol.EncodeUnlock())
	if err != nil {
		s.logger.Printf("trainer: unlock write failed (continuing): %v", err)
	}
}

func (s *Session) handleWahooData(buf []byte) {
	update, ok := protocol.DecodeWahooData(buf)
	if !ok {
		s.logger.Printf("trainer: discarding short Wahoo frame (%d bytes)", len(buf))
		return
	}
	s.mergeAndDeliver(update)
}

// handleWahooControl logs command responses for diagnostics. The response
// stream carries no telemetry.
func (s *Session) handleWahooControl(buf []byte) {
	s.logger.Printf("trainer: control response: % X", buf)
}

func (s *Session) handleCyclingPower(buf []byte) {
	update, ok := protocol.DecodeCyclingPowerMeasurement(buf)
	if !ok {
		return
	}
	s.mergeAndDeliver(update)
}

func (s *Session) handleCSC(buf []byte) {
	s.mu.Lock()
	update, ok := s.csc.Decode(buf)
	s.mu.Unlock()
	if !ok {
		return
	}
	s.mergeAndDeliver(update)
}

func (s *Session) handleIndoorBikeData(buf []byte) {
	update, err := protocol.DecodeIndoorBikeData(buf)
	if err != nil {
		s.logger.Printf("trainer: discarding indoor bike data frame: %v", err)
		return
	}
	s.mergeAndDeliver(update)
}

// mergeAndDeliver folds a partial update into the latest reading and hands
// the snapshot to the callback. Fields absent from the update keep their
// last known value. A panicking callback is contained here so it can never
// take down the notification subscription.
func (s *Session) mergeAndDeliver(update protocol.Update) {
	s.mu.Lock()
	if update.HasPower {
		s.latest.PowerW = update.PowerW
	}
	if update.HasCadence {
		s.latest.CadenceRPM = update.CadenceRPM
	}
	if update.HasSpeed {
		s.latest.SpeedKmh = update.SpeedKmh
	}
	if update.HasDistance {
		s.latest.DistanceM = update.DistanceM
	}
	snapshot := s.latest
	callback := s.callback
	s.mu.Unlock()

	if callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("trainer: reading callback panicked (swallowed): %v", r)
		}
	}()
	callback(snapshot)
}

// SetResistanceLevel sets brake resistance from a 0-100 percent input.
func (s *Session) SetResistanceLevel(percent float64) (bool, string) {
	return s.writeCommand(protocol.EncodeResistanceLevel(percent))
}

// SetTargetPower puts the trainer in ERG mode at the given wattage.
func (s *Session) SetTargetPower(powerW float64) (bool, string) {
	return s.writeCommand(protocol.EncodeTargetPower(powerW))
}

// SetGrade sets the simulated road grade, clamped to +/-20 percent.
func (s *Session) SetGrade(gradePct float64) (bool, string) {
	return s.writeCommand(protocol.EncodeSimGrade(gradePct))
}

// SetRiderCharacteristics sends the rider's weight and aero/rolling
// parameters used by the trainer's own SIM model.
func (s *Session) SetRiderCharacteristics(weightKg, crr, cda float64) (bool, string) {
	return s.writeCommand(protocol.EncodeRiderCharacteristics(weightKg, crr, cda))
}

// writeCommand sends an encoded command to the Wahoo control channel.
// Commands are vendor-only: an FTMS-connected trainer reports its readings
// but takes no control input.
func (s *Session) writeCommand(data []byte) (bool, string) {
	s.mu.Lock()
	device := s.device
	proto := s.proto
	s.mu.Unlock()

	if device == nil || !device.IsConnected() {
		return false, "Not connected"
	}
	if proto != protocol.ProtocolWahoo {
		return false, fmt.Sprintf("Trainer control not supported over %s", proto)
	}

	err := device.WriteCharacteristic(protocol.ServiceUUIDWahoo, protocol.CharUUIDWahooControl, data)
	if err != nil {
		s.logger.Printf("trainer: command write failed: %v", err)
		return false, fmt.Sprintf("Command failed: %v", err)
	}
	return true, ""
}
