package ftms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScalarIdentity(t *testing.T) {
	s := NewScalar()
	assert.Equal(t, 42.0, s.Decode(42))
}

func TestScalarMultiplier(t *testing.T) {
	s := NewScalar().WithMultiplier(10)
	assert.Equal(t, 420.0, s.Decode(42))
}

func TestScalarDecExp(t *testing.T) {
	s := NewScalar().WithDecExp(-2)
	assert.InDelta(t, 25.0, s.Decode(2500), 1e-9)
}

func TestScalarBinExp(t *testing.T) {
	s := NewScalar().WithBinExp(1)
	assert.Equal(t, 84.0, s.Decode(42))
}

func TestScalarComposesAllThreeFactors(t *testing.T) {
	s := NewScalar().WithMultiplier(2).WithDecExp(1).WithBinExp(1)
	// 5 * 2 * 10 * 2 = 200
	assert.InDelta(t, 200.0, s.Decode(5), 1e-9)
}
