package workout

import "time"

// StepInfo describes the step currently executing, for display/snapshot
// purposes (spec §4.3: current_step_info{ step, duration, elapsed }).
type StepInfo struct {
	Step     Step
	Duration time.Duration
	Elapsed  time.Duration
}

// IntervalInfo is only populated while current_step is an IntervalsT; it is
// nil otherwise (spec §4.3).
type IntervalInfo struct {
	Repetition int // 1-based number of the repetition in progress
	IsWork     bool
	Duration   time.Duration
	Elapsed    time.Duration
}

// State is the workout state snapshot value object (spec §4.3, C3). It is
// a plain value: fields are updated by Tracker, and Tracker.Snapshot()
// returns a copy safe to hand to a subscriber or serialize.
type State struct {
	TotalSteps           int
	CurrentStepNumber    int // 1-based
	TotalWorkoutDuration time.Duration
	WorkoutElapsed       time.Duration
	NextStep             Step // nil if current step is last
	CurrentPowerSet      int16
	FTPBase              float64
	CurrentStepInfo      StepInfo
	CurrentIntervalInfo  *IntervalInfo
}

// Tracker mirrors the engine's progress into a State snapshot. It owns the
// monotonic-clock anchors (workout_started, step_started) that
// *_elapsed fields are derived from at publish time (spec §4.3). Like
// Engine, it is single-threaded: one goroutine (the router) drives it.
type Tracker struct {
	state State

	workoutStarted time.Time
	stepStarted    time.Time

	intervalStarted time.Time
}

// NewTracker builds a Tracker for the first step of a freshly constructed
// Engine. totalDuration and totalSteps come from the engine so the two
// stay consistent with each other from the start.
func NewTracker(firstStep Step, nextStep Step, totalDuration time.Duration, totalSteps int, ftpBase float64) *Tracker {
	now := time.Now()
	t := &Tracker{
		workoutStarted: now,
		stepStarted:    now,
	}
	t.state = State{
		TotalSteps:           totalSteps,
		CurrentStepNumber:    1,
		TotalWorkoutDuration: totalDuration,
		NextStep:             nextStep,
		FTPBase:              ftpBase,
		CurrentStepInfo: StepInfo{
			Step:     firstStep,
			Duration: stepDuration(firstStep),
		},
	}
	t.applyInterval(firstStep, now)
	return t
}

func stepDuration(s Step) time.Duration {
	return time.Duration(s.TotalDuration() * float64(time.Second))
}

// applyInterval (re)derives current_interval_info from an IntervalsT's own
// counters, entirely from iv.CurrentInterval: the half most recently
// returned by Advance is index CurrentInterval-1 (clamped to 0 before the
// step's first Advance call), so repetition and work/rest parity are
// computed, never incremented by hand — avoiding drift between this and
// the engine's own bookkeeping. current_interval_info is cleared to nil
// for non-interval steps (spec §4.3: "otherwise clear it").
func (t *Tracker) applyInterval(s Step, now time.Time) {
	iv, ok := s.(*IntervalsT)
	if !ok {
		t.state.CurrentIntervalInfo = nil
		return
	}
	last := iv.CurrentInterval - 1
	if last < 0 {
		last = 0
	}
	isWork := last%2 == 0
	duration := iv.OffDurationS
	if isWork {
		duration = iv.OnDurationS
	}
	t.intervalStarted = now
	t.state.CurrentIntervalInfo = &IntervalInfo{
		Repetition: last/2 + 1,
		IsWork:     isWork,
		Duration:   time.Duration(duration * float64(time.Second)),
	}
}

// OnTransition applies a step transition reported by Engine.Fire, updating
// current_step, current_step_number, next_step, resetting the step-elapsed
// clock, and (re)initializing current_interval_info (spec §4.3).
func (t *Tracker) OnTransition(tr *StepTransition) {
	if tr == nil {
		return
	}
	now := time.Now()
	t.stepStarted = now
	t.state.CurrentStepNumber = tr.StepNumber
	t.state.NextStep = tr.NextStep
	t.state.CurrentStepInfo = StepInfo{
		Step:     tr.Step,
		Duration: stepDuration(tr.Step),
	}
	t.applyInterval(tr.Step, now)
}

// OnAdvance is called by the router after Engine.Fire returns a nil
// transition (the fire advanced within the same step), to keep
// current_interval_info's repetition and work/rest flag in sync as an
// IntervalsT step moves from half to half.
func (t *Tracker) OnAdvance(current Step) {
	if t.state.CurrentIntervalInfo == nil {
		return
	}
	t.applyInterval(current, time.Now())
}

// OnSetTargetPower records the watt value the engine just emitted.
func (t *Tracker) OnSetTargetPower(watts int16) {
	t.state.CurrentPowerSet = watts
}

// OnSkip decreases total_workout_duration by delta, the unspent time of
// the step/interval that was skipped (spec §4.3 invariant 5).
func (t *Tracker) OnSkip(delta time.Duration) {
	if t.state.TotalWorkoutDuration >= delta {
		t.state.TotalWorkoutDuration -= delta
	} else {
		t.state.TotalWorkoutDuration = 0
	}
}

// Snapshot recomputes the *_elapsed fields from the monotonic-clock
// anchors and returns a copy of the current state (spec §4.3:
// "*_elapsed is derived at publish time from monotonic-clock deltas").
func (t *Tracker) Snapshot() State {
	now := time.Now()
	s := t.state
	s.WorkoutElapsed = now.Sub(t.workoutStarted)
	s.CurrentStepInfo.Elapsed = now.Sub(t.stepStarted)
	if s.CurrentIntervalInfo != nil {
		info := *s.CurrentIntervalInfo
		info.Elapsed = now.Sub(t.intervalStarted)
		s.CurrentIntervalInfo = &info
	}
	return s
}
