package ftms

import "tinygo.org/x/bluetooth"

// Service and characteristic UUIDs for the Fitness Machine Service (spec
// §4.6, byte-for-byte compatible with Bluetooth SIG FTMS 1.0).
var (
	ServiceUUID = bluetooth.New16BitUUID(0x1826)

	CharFeature              = bluetooth.New16BitUUID(0x2ACC)
	CharIndoorBikeData       = bluetooth.New16BitUUID(0x2AD2)
	CharTrainingStatus       = bluetooth.New16BitUUID(0x2AD3)
	CharSupportedResistance  = bluetooth.New16BitUUID(0x2AD6)
	CharSupportedPowerRange  = bluetooth.New16BitUUID(0x2AD8)
	CharControlPoint         = bluetooth.New16BitUUID(0x2AD9)
	CharMachineStatus        = bluetooth.New16BitUUID(0x2ADA)
)

// Auxiliary service UUIDs included in the discovery scan filter alongside
// the target FTMS service (spec §4.5: "union of {target service,
// heart-rate/cadence 0x1816, power 0x1818}").
var (
	ServiceHeartRateCadence = bluetooth.New16BitUUID(0x1816)
	ServicePower            = bluetooth.New16BitUUID(0x1818)
)

// Control point opcodes (spec §4.6).
const (
	OpRequestControl      byte = 0x00
	OpReset               byte = 0x01
	OpSetTargetResistance byte = 0x04
	OpSetTargetPower      byte = 0x05
	OpStart               byte = 0x07
	OpStop                byte = 0x08

	// ResponseOpcode prefixes every control-point indication (spec §4.6).
	ResponseOpcode byte = 0x80
)

// Control point response status codes (spec §4.6).
const (
	StatusSuccess             byte = 0x01
	StatusOpCodeNotSupported  byte = 0x02
	StatusInvalidParam        byte = 0x03
	StatusOperationFailed     byte = 0x04
	StatusControlNotPermitted byte = 0x05
)

// StatusString renders a control-point status byte for logging.
func StatusString(status byte) string {
	switch status {
	case StatusSuccess:
		return "Success"
	case StatusOpCodeNotSupported:
		return "OpCodeNotSupported"
	case StatusInvalidParam:
		return "InvalidParam"
	case StatusOperationFailed:
		return "OperationFailed"
	case StatusControlNotPermitted:
		return "ControlNotPermitted"
	default:
		return "Unknown"
	}
}
