package protocol

import (
	"encoding/binary"
	"fmt"
)

// DefaultWheelCircumferenceM approximates a 700c road wheel.
const DefaultWheelCircumferenceM = 2.105

// Cycling Power Measurement flag bits (Cycling Power Service 1.1).
const (
	cpFlagAccumulatedEnergy = 0x08
	cpFlagCrankRevolution   = 0x10
)

// DecodeCyclingPowerMeasurement decodes the SIG Cycling Power Measurement
// characteristic (0x2A63). Only instantaneous power is extracted; crank
// revolution data, when flagged, is skipped structurally but not used for
// cadence: the KICKR has no crank sensor, so the field carries nothing
// useful on this hardware.
func DecodeCyclingPowerMeasurement(buf []byte) (Update, bool) {
	if len(buf) < 4 {
		return Update{}, false
	}

	flags := binary.LittleEndian.Uint16(buf[0:2])
	power := int16(binary.LittleEndian.Uint16(buf[2:4]))
	offset := 4

	if flags&cpFlagAccumulatedEnergy != 0 {
		offset += 2
	}
	if flags&cpFlagCrankRevolution != 0 && len(buf) >= offset+4 {
		offset += 4
	}
	_ = offset

	return Update{
		Reading:  Reading{PowerW: float64(power)},
		HasPower: true,
	}, true
}

// CSCDecoder decodes SIG CSC Measurement notifications (0x2A5B) and derives
// speed by finite-differencing consecutive wheel revolution samples. The
// first sample only primes the state; crank revolution data (flag bit 1) is
// not handled.
type CSCDecoder struct {
	WheelCircumferenceM float64

	prevWheelRevs uint32
	prevWheelTime uint16
	hasPrev       bool
}

func NewCSCDecoder() *CSCDecoder {
	return &CSCDecoder{WheelCircumferenceM: DefaultWheelCircumferenceM}
}

const cscFlagWheelRevolution = 0x01

// Decode returns a speed update when two wheel samples have been seen and
// both deltas are positive. Event time is in 1/1024 s units and wraps at
// 65536; the wrap is corrected here. Revolution counter wrap is not
// handled, which only matters on implausibly long sessions.
func (d *CSCDecoder) Decode(buf []byte) (Update, bool) {
	if len(buf) < 1 {
		return Update{}, false
	}

	flags := buf[0]
	if flags&cscFlagWheelRevolution == 0 {
		return Update{}, false
	}
	if len(buf) < 7 {
		return Update{}, false
	}

	wheelRevs := binary.LittleEndian.Uint32(buf[1:5])
	wheelTime := binary.LittleEndian.Uint16(buf[5:7])

	if !d.hasPrev {
		d.prevWheelRevs = wheelRevs
		d.prevWheelTime = wheelTime
		d.hasPrev = true
		return Update{}, false
	}

	revsDelta := int64(wheelRevs) - int64(d.prevWheelRevs)
	timeDelta := int64(wheelTime) - int64(d.prevWheelTime)
	if timeDelta < 0 {
		timeDelta += 65536
	}

	d.prevWheelRevs = wheelRevs
	d.prevWheelTime = wheelTime

	if timeDelta <= 0 || revsDelta <= 0 {
		return Update{}, false
	}

	circumference := d.WheelCircumferenceM
	if circumference <= 0 {
		circumference = DefaultWheelCircumferenceM
	}

	speedMS := float64(revsDelta) / (float64(timeDelta) / 1024.0) * circumference
	return Update{
		Reading:  Reading{SpeedKmh: speedMS * 3.6},
		HasSpeed: true,
	}, true
}

// Reset clears the rolling wheel state, e.g. after a reconnect.
func (d *CSCDecoder) Reset() {
	d.prevWheelRevs = 0
	d.prevWheelTime = 0
	d.hasPrev = false
}

// DecodeWahooData decodes the Wahoo proprietary data characteristic frame.
//
// The layout is reverse-engineered and not vendor-confirmed: three
// little-endian u16 fields - power in watts, cadence in rpm, speed in
// 0.01 km/h. Distance is not carried. Frames shorter than six bytes are
// discarded. Keep this layout as-is; recorded rides and the tests depend
// on it.
func DecodeWahooData(buf []byte) (Update, bool) {
	if len(buf) < 6 {
		return Update{}, false
	}

	power := binary.LittleEndian.Uint16(buf[0:2])
	cadence := binary.LittleEndian.Uint16(buf[2:4])
	speedRaw := binary.LittleEndian.Uint16(buf[4:6])

	return Update{
		Reading: Reading{
			PowerW:     float64(power),
			CadenceRPM: float64(cadence),
			SpeedKmh:   float64(speedRaw) / 100.0,
			DistanceM:  0.0,
		},
		HasPower:    true,
		HasCadence:  true,
		HasSpeed:    true,
		HasDistance: true,
	}, true
}

// Indoor Bike Data flag bits (FTMS 1.0). Bit 0 is inverted: 0 means
// instantaneous speed IS present.
const (
	ibdFlagMoreData             = 1 << 0
	ibdFlagAverageSpeed         = 1 << 1
	ibdFlagInstantaneousCadence = 1 << 2
	ibdFlagAverageCadence       = 1 << 3
	ibdFlagTotalDistance        = 1 << 4
	ibdFlagResistanceLevel      = 1 << 5
	ibdFlagInstantaneousPower   = 1 << 6
)

// DecodeIndoorBikeData decodes the FTMS Indoor Bike Data characteristic
// (0x2AD2) into the four fields we track, walking the conditional field
// layout far enough to reach instantaneous power. Fields past power are
// irrelevant here and ignored.
func DecodeIndoorBikeData(buf []byte) (Update, error) {
	if len(buf) < 2 {
		return Update{}, fmt.Errorf("indoor bike data too short: %d bytes", len(buf))
	}

	flags := binary.LittleEndian.Uint16(buf[0:2])
	offset := 2
	var update Update

	need := func(n int) error {
		if offset+n > len(buf) {
			return fmt.Errorf("indoor bike data truncated at offset %d", offset)
		}
		return nil
	}

	if flags&ibdFlagMoreData == 0 {
		if err := need(2); err != nil {
			return Update{}, err
		}
		update.SpeedKmh = float64(binary.LittleEndian.Uint16(buf[offset:])) * 0.01
		update.HasSpeed = true
		offset += 2
	}
	if flags&ibdFlagAverageSpeed != 0 {
		if err := need(2); err != nil {
			return Update{}, err
		}
		offset += 2
	}
	if flags&ibdFlagInstantaneousCadence != 0 {
		if err := need(2); err != nil {
			return Update{}, err
		}
		update.CadenceRPM = float64(binary.LittleEndian.Uint16(buf[offset:])) * 0.5
		update.HasCadence = true
		offset += 2
	}
	if flags&ibdFlagAverageCadence != 0 {
		if err := need(2); err != nil {
			return Update{}, err
		}
		offset += 2
	}
	if flags&ibdFlagTotalDistance != 0 {
		if err := need(3); err != nil {
			return Update{}, err
		}
		update.DistanceM = float64(uint32(buf[offset]) | uint32(buf[offset+1])<<8 | uint32(buf[offset+2])<<16)
		update.HasDistance = true
		offset += 3
	}
	if flags&ibdFlagResistanceLevel != 0 {
		if err := need(2); err != nil {
			return Update{}, err
		}
		offset += 2
	}
	if flags&ibdFlagInstantaneousPower != 0 {
		if err := need(2); err != nil {
			return Update{}, err
		}
		update.PowerW = float64(int16(binary.LittleEndian.Uint16(buf[offset:])))
		update.HasPower = true
	}

	return update, nil
}
