package ftms

import (
	"encoding/binary"
	"fmt"
)

// ControlPointResponse is the decoded 3-byte control-point indication
// (spec §4.6): `0x80, request_opcode, status`.
type ControlPointResponse struct {
	RequestOpcode byte
	Status        byte
}

// DecodeControlPointResponse parses a control-point indication payload. It
// asserts the leading response opcode (spec §4.6: "The driver asserts the
// leading 0x80").
func DecodeControlPointResponse(b []byte) (ControlPointResponse, error) {
	if len(b) < 3 {
		return ControlPointResponse{}, fmt.Errorf("control point response: buffer too short (%d bytes)", len(b))
	}
	if b[0] != ResponseOpcode {
		return ControlPointResponse{}, fmt.Errorf("control point response: expected response opcode 0x%02x, got 0x%02x", ResponseOpcode, b[0])
	}
	return ControlPointResponse{RequestOpcode: b[1], Status: b[2]}, nil
}

// encodeRequestControl builds the RequestControl write frame (no params).
func encodeRequestControl() []byte { return []byte{OpRequestControl} }

// encodeReset builds the Reset write frame (no params).
func encodeReset() []byte { return []byte{OpReset} }

// encodeStart builds the Start write frame (no params).
func encodeStart() []byte { return []byte{OpStart} }

// encodeStop builds the Stop write frame (no params).
func encodeStop() []byte { return []byte{OpStop} }

// encodeSetTargetResistance builds the SetTargetResistance write frame
// (spec §4.6: opcode ++ u8 param).
func encodeSetTargetResistance(level uint8) []byte {
	return []byte{OpSetTargetResistance, level}
}

// encodeSetTargetPower builds the SetTargetPower write frame (spec §4.6:
// opcode ++ i16 little-endian param).
func encodeSetTargetPower(watts int16) []byte {
	buf := make([]byte, 3)
	buf[0] = OpSetTargetPower
	binary.LittleEndian.PutUint16(buf[1:], uint16(watts))
	return buf
}
