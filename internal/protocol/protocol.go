package protocol

// Service and characteristic UUIDs for the trainer protocols we speak.
const (
	// Fitness Machine Service (FTMS)
	ServiceUUIDFTMS        = "00001826-0000-1000-8000-00805f9b34fb"
	CharUUIDIndoorBikeData = "00002ad2-0000-1000-8000-00805f9b34fb"

	// Wahoo proprietary service. The data characteristic carries the
	// reverse-engineered telemetry frame; the control characteristic takes
	// resistance/ERG/SIM commands and answers on the same channel. The
	// legacy unlock characteristic predates the control channel, kept for
	// reference only.
	ServiceUUIDWahoo      = "a026ee01-0a7d-4ab3-97fa-f1500f9feb8b"
	CharUUIDWahooData     = "a026e004-0a7d-4ab3-97fa-f1500f9feb8b"
	CharUUIDWahooControl  = "a026e005-0a7d-4ab3-97fa-f1500f9feb8b"
	CharUUIDWahooUnlockV1 = "a026e002-0a7d-4ab3-97fa-f1500f9feb8b"

	// Standard Cycling Power service. KICKR units expose the CSC
	// measurement characteristic under this same service UUID.
	ServiceUUIDCyclingPower         = "00001818-0000-1000-8000-00805f9b34fb"
	CharUUIDCyclingPowerMeasurement = "00002a63-0000-1000-8000-00805f9b34fb"
	CharUUIDCSCMeasurement          = "00002a5b-0000-1000-8000-00805f9b34fb"
)

// Protocol identifies which wire protocol a connected trainer speaks.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolFTMS
	ProtocolWahoo
)

func (p Protocol) String() string {
	switch p {
	case ProtocolFTMS:
		return "FTMS"
	case ProtocolWahoo:
		return "Wahoo"
	default:
		return "Unknown"
	}
}

// Reading is one normalized telemetry sample. DistanceM is always zero when
// sourced from BLE; total distance is integrated downstream from speed.
type Reading struct {
	PowerW     float64
	CadenceRPM float64
	SpeedKmh   float64
	DistanceM  float64
}

// Update is a partial Reading: only fields with the matching Has flag set
// were present in the decoded notification. The session merges updates into
// its latest Reading with last-known-value semantics.
type Update struct {
	Reading
	HasPower    bool
	HasCadence  bool
	HasSpeed    bool
	HasDistance bool
}
