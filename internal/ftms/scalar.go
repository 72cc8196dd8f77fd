// Package ftms implements the Bluetooth SIG Fitness Machine Service (GATT
// profile 0x1826) for indoor bikes: scalar field decoding, BLE peripheral
// discovery, and the full driver (feature/range reads, notification
// fan-out, control-point request/response).
package ftms

import "math"

// Scalar builds a `raw -> f64` decoder for a GATT fixed-point field, as
// defined by the Bluetooth GATT Specification Supplement: value = raw *
// M * 10^d * 2^b. It is pure and holds no I/O state (spec §4.4).
type Scalar struct {
	multiplier float64
	base10     float64
	base2      float64
}

// NewScalar returns a Scalar with identity defaults (M=1, d=0, b=0).
func NewScalar() Scalar {
	return Scalar{multiplier: 1, base10: 1, base2: 1}
}

// WithMultiplier sets M, the integer scale factor.
func (s Scalar) WithMultiplier(m int) Scalar {
	s.multiplier = float64(m)
	return s
}

// WithDecExp sets d such that the field is scaled by 10^d.
func (s Scalar) WithDecExp(d int) Scalar {
	s.base10 = math.Pow(10, float64(d))
	return s
}

// WithBinExp sets b such that the field is scaled by 2^b.
func (s Scalar) WithBinExp(b int) Scalar {
	s.base2 = math.Pow(2, float64(b))
	return s
}

// Decode converts a raw integer field reading into its scaled value.
func (s Scalar) Decode(raw float64) float64 {
	return raw * s.multiplier * s.base10 * s.base2
}
