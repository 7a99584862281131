package protocol

import (
	"encoding/binary"
	"math"
)

// Wahoo control channel op codes.
const (
	wahooOpSetResistance byte = 0x41
	wahooOpSetTargetPwr  byte = 0x42
	wahooOpSetRiderChar  byte = 0x43
	wahooOpSetSimGrade   byte = 0x46
)

// Command clamp bounds. Every encoder clamps out-of-range input silently
// before encoding - the trainer firmware must never see an invalid command.
const (
	MaxTargetPowerW = 2000
	MaxSimGradePct  = 20.0

	MinRiderWeightKg = 40.0
	MaxRiderWeightKg = 150.0
	MinCrr           = 0.002
	MaxCrr           = 0.010
	MinCdA           = 0.2
	MaxCdA           = 0.6
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EncodeUnlock builds the magic init sequence that must be written to the
// control characteristic once per connection before any other command.
func EncodeUnlock() []byte {
	return []byte{0x20, 0xEE, 0xFC}
}

// EncodeResistanceLevel maps a 0-100 percent request onto the trainer's
// integer levels 0-9.
func EncodeResistanceLevel(percent float64) []byte {
	percent = clamp(percent, 0, 100)
	level := byte(math.Round(percent / 100.0 * 9.0))
	return []byte{wahooOpSetResistance, level}
}

// EncodeTargetPower builds the ERG-mode command, power clamped to
// [0, 2000] W, encoded as u16 LE.
func EncodeTargetPower(powerW float64) []byte {
	watts := uint16(math.Round(clamp(powerW, 0, MaxTargetPowerW)))
	cmd := make([]byte, 3)
	cmd[0] = wahooOpSetTargetPwr
	binary.LittleEndian.PutUint16(cmd[1:], watts)
	return cmd
}

// EncodeSimGrade builds the SIM-mode grade command. The grade is clamped to
// +/-20 % and encoded as a u16 fixed-point value centered on 32768:
// round((grade/100 + 1) * 32768), so -20 % -> 26214, 0 % -> 32768,
// +20 % -> 39322.
func EncodeSimGrade(gradePct float64) []byte {
	gradePct = clamp(gradePct, -MaxSimGradePct, MaxSimGradePct)
	raw := uint16(math.Round((gradePct/100.0 + 1.0) * 32768.0))
	cmd := make([]byte, 3)
	cmd[0] = wahooOpSetSimGrade
	binary.LittleEndian.PutUint16(cmd[1:], raw)
	return cmd
}

// DecodeSimGrade inverts the EncodeSimGrade fixed-point scheme.
func DecodeSimGrade(raw uint16) float64 {
	return (float64(raw)/32768.0 - 1.0) * 100.0
}

// EncodeRiderCharacteristics builds the rider parameter command used by the
// trainer's own SIM physics: weight (kg, x100), rolling resistance
// coefficient (x10000) and drag area (m^2, x1000), each u16 LE.
func EncodeRiderCharacteristics(weightKg, crr, cda float64) []byte {
	weight := uint16(math.Round(clamp(weightKg, MinRiderWeightKg, MaxRiderWeightKg) * 100.0))
	crrRaw := uint16(math.Round(clamp(crr, MinCrr, MaxCrr) * 10000.0))
	cdaRaw := uint16(math.Round(clamp(cda, MinCdA, MaxCdA) * 1000.0))

	cmd := make([]byte, 7)
	cmd[0] = wahooOpSetRiderChar
	binary.LittleEndian.PutUint16(cmd[1:3], weight)
	binary.LittleEndian.PutUint16(cmd[3:5], crrRaw)
	binary.LittleEndian.PutUint16(cmd[5:7], cdaRaw)
	return cmd
}
