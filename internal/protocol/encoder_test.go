package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeUnlock(t *testing.T) {
	assert.Equal(t, []byte{0x20, 0xEE, 0xFC}, EncodeUnlock())
}

func TestEncodeResistanceLevel(t *testing.T) {
	tests := []struct {
		name    string
		percent float64
		level   byte
	}{
		{"zero", 0, 0},
		{"full", 100, 9},
		{"half", 50, 5},
		{"low", 20, 2},
		{"clamped high", 150, 9},
		{"clamped negative", -10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := EncodeResistanceLevel(tt.percent)
			require.Len(t, cmd, 2)
			assert.Equal(t, byte(0x41), cmd[0])
			assert.Equal(t, tt.level, cmd[1])
		})
	}
}

func TestEncodeResistanceLevel_ClampIdempotence(t *testing.T) {
	assert.Equal(t, EncodeResistanceLevel(100), EncodeResistanceLevel(150))
	assert.Equal(t, EncodeResistanceLevel(0), EncodeResistanceLevel(-10))
}

func TestEncodeTargetPower(t *testing.T) {
	tests := []struct {
		name   string
		powerW float64
		watts  uint16
	}{
		{"typical", 200, 200},
		{"zero", 0, 0},
		{"max", 2000, 2000},
		{"clamped high", 2500, 2000},
		{"clamped negative", -50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := EncodeTargetPower(tt.powerW)
			require.Len(t, cmd, 3)
			assert.Equal(t, byte(0x42), cmd[0])
			assert.Equal(t, tt.watts, binary.LittleEndian.Uint16(cmd[1:]))
		})
	}
}

func TestEncodeSimGrade_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		gradePct float64
		raw      uint16
	}{
		{"flat", 0, 32768},
		{"max climb", 20, 39322},
		{"max descent", -20, 26214},
		{"clamped above", 35, 39322},
		{"clamped below", -35, 26214},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := EncodeSimGrade(tt.gradePct)
			require.Len(t, cmd, 3)
			assert.Equal(t, byte(0x46), cmd[0])
			assert.Equal(t, tt.raw, binary.LittleEndian.Uint16(cmd[1:]))
		})
	}
}

func TestEncodeSimGrade_RoundTrip(t *testing.T) {
	// One raw unit is 100/32768 of a percentage point, so rounding during
	// encode can move the recovered grade by at most half of that.
	const tolerance = 100.0 / 32768.0

	for grade := -20.0; grade <= 20.0; grade += 0.1 {
		cmd := EncodeSimGrade(grade)
		raw := binary.LittleEndian.Uint16(cmd[1:])
		assert.InDelta(t, grade, DecodeSimGrade(raw), tolerance, "grade %.1f", grade)
	}
}

func TestEncodeRiderCharacteristics(t *testing.T) {
	cmd := EncodeRiderCharacteristics(75.0, 0.004, 0.3)
	require.Len(t, cmd, 7)
	assert.Equal(t, byte(0x43), cmd[0])
	assert.Equal(t, uint16(7500), binary.LittleEndian.Uint16(cmd[1:3]))
	assert.Equal(t, uint16(40), binary.LittleEndian.Uint16(cmd[3:5]))
	assert.Equal(t, uint16(300), binary.LittleEndian.Uint16(cmd[5:7]))
}

func TestEncodeRiderCharacteristics_Clamps(t *testing.T) {
	cmd := EncodeRiderCharacteristics(500.0, 1.0, 5.0)
	assert.Equal(t, uint16(15000), binary.LittleEndian.Uint16(cmd[1:3]))
	assert.Equal(t, uint16(100), binary.LittleEndian.Uint16(cmd[3:5]))
	assert.Equal(t, uint16(600), binary.LittleEndian.Uint16(cmd[5:7]))

	cmd = EncodeRiderCharacteristics(10.0, 0.0, 0.0)
	assert.Equal(t, uint16(4000), binary.LittleEndian.Uint16(cmd[1:3]))
	assert.Equal(t, uint16(20), binary.LittleEndian.Uint16(cmd[3:5]))
	assert.Equal(t, uint16(200), binary.LittleEndian.Uint16(cmd[5:7]))
}
