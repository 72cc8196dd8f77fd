package ftms

import (
	"encoding/binary"
	"fmt"
)

// Scalars for each Indoor Bike Data field (spec §4.6 table; GATT
// Specification Supplement defaults unless noted).
var (
	speedScalar      = NewScalar().WithDecExp(-2)  // u16 * 0.01 km/h
	cadenceScalar    = NewScalar().WithDecExp(-1)  // u16 * 0.1 rpm
	resistanceScalar = NewScalar().WithMultiplier(10) // u8 * 10
)

// BikeData is the decoded Indoor Bike Data notification payload (spec
// §4.6). Fields whose bit was unset in the packet are left at their zero
// value; Present records exactly which fields this packet carried.
type BikeData struct {
	Present Presence

	InstantaneousSpeed float64 // km/h
	AverageSpeed       float64 // km/h
	InstantaneousCadence float64 // rpm
	AverageCadence     float64 // rpm
	TotalDistance      uint32  // meters
	ResistanceLevel    float64
	InstantaneousPower int16 // watts
	AveragePower       int16 // watts
	ElapsedTime        uint16 // seconds
	RemainingTime      uint16 // seconds
}

// Presence records which optional fields a decoded BikeData packet
// actually carried, mirroring the flags bitfield bit-for-bit (spec §4.6).
type Presence struct {
	InstantaneousSpeed bool
	AverageSpeed       bool
	InstantaneousCadence bool
	AverageCadence     bool
	TotalDistance      bool
	ResistanceLevel    bool
	InstantaneousPower bool
	AveragePower       bool
	ElapsedTime        bool
	RemainingTime      bool
}

// moreDataBit, when set, marks the packet as a continuation fragment.
// This driver does not support fragmented Indoor Bike Data packets (spec
// §4.6: "unsupported; reject").
const moreDataBit = 1 << 0

// DecodeBikeData parses an Indoor Bike Data notification payload (spec
// §4.6). It returns an error for a fragmented packet (bit 0 set) or a
// truncated buffer.
func DecodeBikeData(b []byte) (BikeData, error) {
	if len(b) < 2 {
		return BikeData{}, fmt.Errorf("indoor bike data: buffer too short for flags")
	}
	flags := binary.LittleEndian.Uint16(b[0:2])
	cursor := 2

	if flags&moreDataBit != 0 {
		return BikeData{}, fmt.Errorf("indoor bike data: fragmented packet (more-data bit set) not supported")
	}

	var d BikeData

	need := func(n int) error {
		if cursor+n > len(b) {
			return fmt.Errorf("indoor bike data: buffer too short at cursor %d (need %d more bytes)", cursor, n)
		}
		return nil
	}

	// Bit 0 clear => instantaneous speed is present (spec §4.6: "Bit 0 is
	// inverted").
	if err := need(2); err != nil {
		return BikeData{}, err
	}
	d.InstantaneousSpeed = speedScalar.Decode(float64(binary.LittleEndian.Uint16(b[cursor:])))
	d.Present.InstantaneousSpeed = true
	cursor += 2

	bit := func(n uint) bool { return flags&(1<<n) != 0 }

	if bit(1) {
		if err := need(2); err != nil {
			return BikeData{}, err
		}
		d.AverageSpeed = speedScalar.Decode(float64(binary.LittleEndian.Uint16(b[cursor:])))
		d.Present.AverageSpeed = true
		cursor += 2
	}
	if bit(2) {
		if err := need(2); err != nil {
			return BikeData{}, err
		}
		d.InstantaneousCadence = cadenceScalar.Decode(float64(binary.LittleEndian.Uint16(b[cursor:])))
		d.Present.InstantaneousCadence = true
		cursor += 2
	}
	if bit(3) {
		if err := need(2); err != nil {
			return BikeData{}, err
		}
		d.AverageCadence = cadenceScalar.Decode(float64(binary.LittleEndian.Uint16(b[cursor:])))
		d.Present.AverageCadence = true
		cursor += 2
	}
	if bit(4) {
		if err := need(3); err != nil {
			return BikeData{}, err
		}
		d.TotalDistance = uint32(b[cursor]) | uint32(b[cursor+1])<<8 | uint32(b[cursor+2])<<16
		d.Present.TotalDistance = true
		cursor += 3
	}
	if bit(5) {
		if err := need(1); err != nil {
			return BikeData{}, err
		}
		d.ResistanceLevel = resistanceScalar.Decode(float64(b[cursor]))
		d.Present.ResistanceLevel = true
		cursor++
	}
	if bit(6) {
		if err := need(2); err != nil {
			return BikeData{}, err
		}
		d.InstantaneousPower = int16(binary.LittleEndian.Uint16(b[cursor:]))
		d.Present.InstantaneousPower = true
		cursor += 2
	}
	if bit(7) {
		if err := need(2); err != nil {
			return BikeData{}, err
		}
		d.AveragePower = int16(binary.LittleEndian.Uint16(b[cursor:]))
		d.Present.AveragePower = true
		cursor += 2
	}
	if bit(8) {
		return BikeData{}, fmt.Errorf("indoor bike data: expended energy field (bit 8) not implemented")
	}
	if bit(9) {
		return BikeData{}, fmt.Errorf("indoor bike data: heart rate field (bit 9) not implemented")
	}
	if bit(10) {
		return BikeData{}, fmt.Errorf("indoor bike data: metabolic equivalent field (bit 10) not implemented")
	}
	if bit(11) {
		if err := need(2); err != nil {
			return BikeData{}, err
		}
		d.ElapsedTime = binary.LittleEndian.Uint16(b[cursor:])
		d.Present.ElapsedTime = true
		cursor += 2
	}
	if bit(12) {
		if err := need(2); err != nil {
			return BikeData{}, err
		}
		d.RemainingTime = binary.LittleEndian.Uint16(b[cursor:])
		d.Present.RemainingTime = true
		cursor += 2
	}

	return d, nil
}
