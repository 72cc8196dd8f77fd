package workout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1: Warmup{duration=4, low=0.0, high=100.0}, FTP=1 ⇒ (1,0),(1,25),(1,50),(1,75).
func TestWarmupScenarioS1(t *testing.T) {
	w := NewWarmup(4, 0, 100)

	var got []Setpoint
	for {
		sp, ok := w.Advance()
		if !ok {
			break
		}
		got = append(got, sp)
	}

	require.Len(t, got, 4)
	want := []float64{0, 25, 50, 75}
	for i, level := range want {
		assert.Equal(t, 1.0, got[i].Duration)
		assert.InDelta(t, level, got[i].PowerLevel, 1e-9)
	}
}

// S2: Cooldown{duration=4, low=100.0, high=0.0}, FTP=1 ⇒ (1,100),(1,75),(1,50),(1,25).
func TestCooldownScenarioS2(t *testing.T) {
	c := NewCooldown(4, 100, 0)

	var levels []float64
	for {
		sp, ok := c.Advance()
		if !ok {
			break
		}
		levels = append(levels, sp.PowerLevel)
	}

	require.Equal(t, []float64{100, 75, 50, 25}, levels)
}

// S3: IntervalsT{repeat=3, on=10, off=20, on_power=80, off_power=150}, FTP=1
// ⇒ six emissions, then end.
func TestIntervalsScenarioS3(t *testing.T) {
	iv := NewIntervalsT(3, 10, 20, 80, 150)

	type pair struct {
		duration, power float64
	}
	want := []pair{
		{10, 80}, {20, 150},
		{10, 80}, {20, 150},
		{10, 80}, {20, 150},
	}

	for i, w := range want {
		sp, ok := iv.Advance()
		require.Truef(t, ok, "expected emission %d", i)
		assert.Equal(t, w.duration, sp.Duration)
		assert.Equal(t, w.power, sp.PowerLevel)
	}

	_, ok := iv.Advance()
	assert.False(t, ok, "expected no emission after repeat exhausted")
}

func TestIntervalsRepeatZeroEmitsNothing(t *testing.T) {
	iv := NewIntervalsT(0, 10, 20, 80, 150)
	_, ok := iv.Advance()
	assert.False(t, ok)
	assert.Equal(t, 0, iv.ItemCount())
}

func TestIntervalsSkipEndsOnlyCurrentHalf(t *testing.T) {
	iv := NewIntervalsT(2, 10, 20, 80, 150)

	sp, ok := iv.Advance()
	require.True(t, ok)
	assert.Equal(t, 80.0, sp.PowerLevel)

	iv.Skip() // skip the rest half that would follow
	sp, ok = iv.Advance()
	require.True(t, ok, "skip should only end the current half, not the whole step")
	assert.Equal(t, 80.0, sp.PowerLevel, "skipping the rest half should land on the next work half")
}

func TestIntervalsRemainingBeforeFirstAdvance(t *testing.T) {
	iv := NewIntervalsT(3, 10, 20, 80, 150)
	assert.Equal(t, iv.TotalDuration(), iv.Remaining())
}

// Mid-pair: after one work half is consumed, the sequence still owed is
// off+on+off+on+off (the pending rest half of the current pair, plus the
// two full pairs after it), not a miscounted leftover of the work duration.
func TestIntervalsRemainingMidPairUsesOffDuration(t *testing.T) {
	iv := NewIntervalsT(3, 10, 20, 80, 150)

	_, ok := iv.Advance() // consume the first "on" half
	require.True(t, ok)

	assert.Equal(t, 80.0, iv.Remaining())
}

func TestSteadyStateEmitsOnceThenExhausted(t *testing.T) {
	s := NewSteadyState(10, 0.5)

	sp, ok := s.Advance()
	require.True(t, ok)
	assert.Equal(t, 10.0, sp.Duration)
	assert.Equal(t, 0.5, sp.PowerLevel)

	_, ok = s.Advance()
	assert.False(t, ok)
}

func TestFreeRideIsAlwaysZeroPower(t *testing.T) {
	f := NewFreeRide(30, 1.0)
	sp, ok := f.Advance()
	require.True(t, ok)
	assert.Equal(t, 0.0, sp.PowerLevel)
}

func TestItemCountMatchesInvariant2(t *testing.T) {
	cases := []struct {
		step Step
		want int
	}{
		{NewWarmup(4, 0, 1), 4},
		{NewRamp(6, 0, 1), 6},
		{NewCooldown(5, 1, 0), 5},
		{NewSteadyState(10, 0.5), 1},
		{NewFreeRide(10, 0), 1},
		{NewIntervalsT(3, 10, 20, 0.8, 1.5), 6},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.step.ItemCount(), c.step.Kind())
	}
}

func TestNewStepUnknownTagIsParseError(t *testing.T) {
	_, err := NewStep("Sprint", nil)
	assert.Error(t, err)
}

func TestNewStepBuildsKnownTags(t *testing.T) {
	s, err := NewStep("SteadyState", map[string]string{"Duration": "30", "Power": "0.75"})
	require.NoError(t, err)
	ss, ok := s.(*SteadyState)
	require.True(t, ok)
	assert.Equal(t, 30.0, ss.DurationS)
	assert.Equal(t, 0.75, ss.Power)
}
