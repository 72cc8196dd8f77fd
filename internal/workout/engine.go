package workout

import (
	"fmt"
	"math"
	"time"
)

// farFuture is used to "disarm" the pending timer on Pause: an unreachable
// deadline that a later Resume/SkipStep re-arms (spec §4.2).
const farFuture = 100 * 365 * 24 * time.Hour

// SetTargetPower is the command the engine emits at each setpoint boundary.
// Watts is the raw computed value (round(ftp_base * power_level)); clamping
// against the trainer's supported power range is the driver's job (spec
// §4.2 step 5), not the engine's.
type SetTargetPower struct {
	Watts int16
}

// StepTransition describes a move to a new current step, used by the
// caller (normally the command router) to update a workout state tracker
// (spec §4.2, §4.3).
type StepTransition struct {
	StepNumber int // 1-based
	Step       Step
	NextStep   Step // nil if this is the last step
}

// Engine sequences a workout's steps, timer-drives advancement, and exposes
// pause/resume/skip. It is deliberately single-threaded: every exported
// method (other than TimerC, which only reads a channel reference) must be
// called from the same goroutine — normally the command router's event
// loop (spec §9, design choice (b): the router owns the engine directly,
// with no internal locking).
type Engine struct {
	ftpBase float64

	current   Step
	remaining []Step

	timer           *time.Timer
	deadline        time.Time     // absolute time the armed setpoint expires at
	heldFor         time.Duration // duration the current setpoint was armed for
	heldLevel       float64       // power_level of the currently-armed setpoint
	paused          bool
	pausedRemaining time.Duration // remaining time of the held setpoint, frozen at Pause

	totalDuration time.Duration
	totalSteps    int
	stepNumber    int
	done          bool

	// lastTransition is set whenever Fire() advances to a new step, and
	// cleared (nil) when Fire() only consumed another item of the same
	// step.
	lastTransition *StepTransition
}

// NewEngine builds an engine over the given steps. It fails if steps is
// empty (spec §4.2: "Zero-length workout => constructor failure").
func NewEngine(steps []Step, ftpBase float64) (*Engine, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("workout has no steps")
	}

	total := time.Duration(0)
	for _, s := range steps {
		total += time.Duration(s.TotalDuration() * float64(time.Second))
	}

	e := &Engine{
		ftpBase:       ftpBase,
		current:       steps[0],
		remaining:     steps[1:],
		totalDuration: total,
		totalSteps:    len(steps),
		stepNumber:    1,
	}
	// First setpoint is emitted immediately: timer fires at t=0 (spec §4.2).
	e.timer = time.NewTimer(0)
	e.deadline = time.Now()
	return e, nil
}

func (e *Engine) peekNext() Step {
	if len(e.remaining) == 0 {
		return nil
	}
	return e.remaining[0]
}

// TimerC returns the channel the owning event loop selects on. It fires
// when the currently-armed setpoint's duration has elapsed (or immediately,
// for the first setpoint, or right away after SkipStep re-arms it). After
// Resume it fires once the held setpoint's remaining time has elapsed.
func (e *Engine) TimerC() <-chan time.Time {
	return e.timer.C
}

// Done reports whether the engine has emitted every setpoint in the
// workout (Fire will return ok=false from here on).
func (e *Engine) Done() bool { return e.done }

// Fire consumes the event that made TimerC() fire: it pops the next
// (duration, power_level) from the current step, advancing to the next
// step if the current one is exhausted, arms the timer for the new
// duration, and returns the SetTargetPower command to issue. ok is false
// once the whole workout tree is exhausted.
func (e *Engine) Fire() (cmd SetTargetPower, transition *StepTransition, ok bool) {
	if e.done {
		return SetTargetPower{}, nil, false
	}

	e.lastTransition = nil

	sp, stepOK := e.current.Advance()
	for !stepOK {
		if len(e.remaining) == 0 {
			e.done = true
			return SetTargetPower{}, nil, false
		}
		e.current = e.remaining[0]
		e.remaining = e.remaining[1:]
		e.stepNumber++
		e.lastTransition = &StepTransition{StepNumber: e.stepNumber, Step: e.current, NextStep: e.peekNext()}
		sp, stepOK = e.current.Advance()
	}

	e.heldFor = time.Duration(sp.Duration * float64(time.Second))
	e.heldLevel = sp.PowerLevel
	e.armTimer(e.heldFor)

	watts := int16(math.Round(e.ftpBase * sp.PowerLevel))
	return SetTargetPower{Watts: watts}, e.lastTransition, true
}

// armTimer safely (re)arms the internal timer for duration d, draining a
// pending fire if necessary per the documented time.Timer.Reset contract,
// and records the resulting absolute deadline.
func (e *Engine) armTimer(d time.Duration) {
	if !e.timer.Stop() {
		select {
		case <-e.timer.C:
		default:
		}
	}
	e.deadline = time.Now().Add(d)
	e.timer.Reset(d)
}

// remainingOfHeld is how much of the currently-held setpoint has not yet
// elapsed: the live value while running, or the value frozen at Pause.
func (e *Engine) remainingOfHeld() time.Duration {
	if e.paused {
		return e.pausedRemaining
	}
	remaining := time.Until(e.deadline)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Pause disarms the pending timer to an unreachable future deadline. The
// trainer keeps running at the last commanded power (spec §4.2).
func (e *Engine) Pause() {
	if e.paused {
		return
	}
	e.pausedRemaining = e.remainingOfHeld()
	e.paused = true
	e.armTimer(farFuture)
}

// Resume re-arms the pending timer with the remaining duration of the
// currently-held setpoint (spec §9: the non-simplified resume semantics).
// If somehow called while not paused, it is a no-op.
func (e *Engine) Resume() {
	if !e.paused {
		return
	}
	remaining := e.pausedRemaining
	e.paused = false
	e.armTimer(remaining)
}

// SkipStep invokes the current step's Skip, rearms the timer to fire
// immediately, and returns the amount by which total_workout_duration
// should decrease: the remaining time of the setpoint that was in force,
// plus the durations of the setpoints Skip drops (the rest of the step, or
// for an IntervalsT the one pending half-interval) (spec §4.2 invariant 5).
func (e *Engine) SkipStep() time.Duration {
	delta := e.remainingOfHeld()
	switch s := e.current.(type) {
	case *IntervalsT:
		if s.Repeat > 0 && !s.skipHalf {
			pending := s.OffDurationS
			if s.IsWork() {
				pending = s.OnDurationS
			}
			delta += time.Duration(pending * float64(time.Second))
		}
	default:
		delta += time.Duration(e.current.Remaining() * float64(time.Second))
	}
	e.current.Skip()
	if e.totalDuration >= delta {
		e.totalDuration -= delta
	} else {
		e.totalDuration = 0
	}
	e.paused = false
	e.armTimer(0)
	return delta
}

// TotalDuration is the engine's live estimate of total workout wall-clock
// time, decreasing as SkipStep consumes unspent remainders (spec §4.3).
func (e *Engine) TotalDuration() time.Duration { return e.totalDuration }

// CurrentStepNumber is the 1-based index of the step currently executing.
func (e *Engine) CurrentStepNumber() int { return e.stepNumber }

// CurrentStep returns the step currently executing.
func (e *Engine) CurrentStep() Step { return e.current }

// NextStep returns the step that will execute after the current one, or
// nil if the current step is last.
func (e *Engine) NextStep() Step { return e.peekNext() }

// TotalSteps is the number of steps in the whole workout (fixed at
// construction; skipping does not change it).
func (e *Engine) TotalSteps() int { return e.totalSteps }

// FTPBase returns the immutable FTP base the engine was constructed with.
func (e *Engine) FTPBase() float64 { return e.ftpBase }
