package ftms

import (
	"encoding/binary"
	"fmt"
)

var resistanceScalarRange = NewScalar().WithDecExp(1)

// ResistanceRange is the decoded Supported Resistance Range characteristic
// (spec §4.6: "6 bytes: min/max/step, scaled by 10^1").
type ResistanceRange struct {
	Minimum float64
	Maximum float64
	Step    float64
}

// DecodeResistanceRange parses the 6-byte Supported Resistance Range
// payload.
func DecodeResistanceRange(b []byte) (ResistanceRange, error) {
	if len(b) < 6 {
		return ResistanceRange{}, fmt.Errorf("resistance range: buffer too short (%d bytes)", len(b))
	}
	raw := func(off int) float64 { return float64(int16(binary.LittleEndian.Uint16(b[off:]))) }
	return ResistanceRange{
		Minimum: resistanceScalarRange.Decode(raw(0)),
		Maximum: resistanceScalarRange.Decode(raw(2)),
		Step:    resistanceScalarRange.Decode(raw(4)),
	}, nil
}

// PowerRange is the decoded Supported Power Range characteristic (spec
// §4.6: "6 bytes: i16 min, i16 max, u16 step").
type PowerRange struct {
	Minimum int16
	Maximum int16
	Step    uint16
}

// DecodePowerRange parses the 6-byte Supported Power Range payload.
func DecodePowerRange(b []byte) (PowerRange, error) {
	if len(b) < 6 {
		return PowerRange{}, fmt.Errorf("power range: buffer too short (%d bytes)", len(b))
	}
	return PowerRange{
		Minimum: int16(binary.LittleEndian.Uint16(b[0:2])),
		Maximum: int16(binary.LittleEndian.Uint16(b[2:4])),
		Step:    binary.LittleEndian.Uint16(b[4:6]),
	}, nil
}

// Contains reports whether watts lies within [Minimum, Maximum] inclusive
// (spec §4.6: "Validates min <= power <= max").
func (r PowerRange) Contains(watts int16) bool {
	return watts >= r.Minimum && watts <= r.Maximum
}

// Clamp restricts watts to [Minimum, Maximum] (spec §4.2 step 5: "clamped
// to the driver's supported power range").
func (r PowerRange) Clamp(watts int16) int16 {
	if watts < r.Minimum {
		return r.Minimum
	}
	if watts > r.Maximum {
		return r.Maximum
	}
	return watts
}

// Feature is the decoded Fitness Machine Feature characteristic (spec
// §4.6: "8 bytes LE: two u32 bitfields").
type Feature struct {
	MachineFeatures uint32
	TargetSettingFeatures uint32
}

// DecodeFeature parses the 8-byte Feature payload.
func DecodeFeature(b []byte) (Feature, error) {
	if len(b) < 8 {
		return Feature{}, fmt.Errorf("feature: buffer too short (%d bytes)", len(b))
	}
	return Feature{
		MachineFeatures:       binary.LittleEndian.Uint32(b[0:4]),
		TargetSettingFeatures: binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}
