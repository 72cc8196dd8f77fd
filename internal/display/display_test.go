package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/szymek156/velomania-go/internal/workout"
)

func TestNewPrinterNonTTYDoesNotColorize(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	assert.False(t, p.colorize)
	assert.Equal(t, defaultWidth, p.width)
}

func TestRenderPlainStatusLine(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	st := workout.State{
		CurrentStepNumber:    2,
		TotalSteps:           3,
		WorkoutElapsed:       90 * time.Second,
		TotalWorkoutDuration: 300 * time.Second,
		CurrentPowerSet:      210,
		CurrentStepInfo: workout.StepInfo{
			Step:     workout.NewSteadyState(120, 0.8),
			Duration: 120 * time.Second,
			Elapsed:  45 * time.Second,
		},
	}

	line := p.render(st)
	assert.Contains(t, line, "[2/3]")
	assert.Contains(t, line, "00:45/02:00")
	assert.Contains(t, line, "210W")
	assert.Contains(t, line, "total 01:30/05:00")
}

func TestRenderIncludesIntervalInfoWhenPresent(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	st := workout.State{
		CurrentStepInfo: workout.StepInfo{
			Step: workout.NewSteadyState(1, 0.5),
		},
		CurrentIntervalInfo: &workout.IntervalInfo{
			Repetition: 3,
			IsWork:     true,
			Duration:   30 * time.Second,
			Elapsed:    10 * time.Second,
		},
	}

	line := p.render(st)
	assert.Contains(t, line, "rep 3 work 00:10/00:30")
}

func TestRenderOmitsIntervalInfoWhenAbsent(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	st := workout.State{CurrentStepInfo: workout.StepInfo{Step: workout.NewSteadyState(1, 0.5)}}
	line := p.render(st)
	assert.NotContains(t, line, "rep ")
}

func TestRunPrintsOneLinePerState(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	states := make(chan workout.State, 2)
	states <- workout.State{CurrentStepInfo: workout.StepInfo{Step: workout.NewSteadyState(1, 0.5)}}
	states <- workout.State{CurrentStepInfo: workout.StepInfo{Step: workout.NewSteadyState(1, 0.5)}}
	close(states)

	p.Run(states)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 2)
}

func TestPrintWarningWritesPlainLine(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintWarning("setpoint rejected")
	assert.Equal(t, "setpoint rejected\n", buf.String())
}

func TestFormatDurationClampsNegative(t *testing.T) {
	assert.Equal(t, "00:00", formatDuration(-5*time.Second))
	assert.Equal(t, "01:05", formatDuration(65*time.Second))
}
