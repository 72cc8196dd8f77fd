// Package router implements the command router task (spec §4.7): the
// single goroutine owning the engine -> trainer pipeline. It multiplexes
// the engine's timer-driven setpoint stream, a 1Hz snapshot-publish tick,
// and a user-command channel, and serializes every control-point round
// trip against the Fitness Machine driver (grounded on the teacher's
// single-goroutine `interactive.Session` event-driven lifecycle in
// internal/interactive/session.go).
package router

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/szymek156/velomania-go/internal/ftms"
	"github.com/szymek156/velomania-go/internal/pubsub"
	"github.com/szymek156/velomania-go/internal/workout"
)

// Command is a user-issued instruction accepted by the router, sourced
// from stdin or the WebSocket endpoint (spec §4.7, §6). A signal does not
// send a Command: it cancels the context passed to Run, which Run handles
// as an abort.
type Command int

const (
	CommandPause Command = iota
	CommandResume
	CommandSkipStep
	CommandAbort
)

// Driver is the subset of *ftms.Driver the router depends on, named here
// so tests can substitute a fake without constructing real BLE plumbing.
type Driver interface {
	SetTargetPower(ctx context.Context, watts int16) (ftms.ControlPointResponse, error)
	Stop(ctx context.Context) (ftms.ControlPointResponse, error)
	Close() error
}

// Router is the command router task (C7). Construct with New and run its
// event loop with Run from a single goroutine; send commands on the
// channel returned by Commands.
type Router struct {
	engine  *workout.Engine
	tracker *workout.Tracker
	driver  Driver

	commands chan Command
	state    *pubsub.Broadcaster[workout.State]

	logger *log.Logger
}

// New builds a Router over an already-constructed Engine/Tracker pair and
// a connected Driver. The returned state broadcaster is created here and
// closed by Run when the workout ends or is aborted (spec §4.8: "The
// sender is created at startup and dropped when the engine terminates").
func New(engine *workout.Engine, tracker *workout.Tracker, driver Driver) *Router {
	return &Router{
		engine:   engine,
		tracker:  tracker,
		driver:   driver,
		commands: make(chan Command, 8),
		state:    pubsub.New[workout.State](16),
		logger:   log.Default().With("component", "router"),
	}
}

// Commands returns the channel user-command sources (stdin reader,
// WebSocket handler) send on.
func (r *Router) Commands() chan<- Command { return r.commands }

// SubscribeState returns a fresh receive endpoint for workout state
// snapshots, published once per 1Hz tick (spec §4.8).
func (r *Router) SubscribeState() <-chan workout.State { return r.state.Subscribe() }

// Run is the router's event loop (spec §4.7, §5: "Router task (one):
// serializes engine/tick/user-command handling and BLE control-point
// round-trips"). It returns when the workout ends, is aborted, or ctx is
// canceled.
func (r *Router) Run(ctx context.Context) error {
	defer r.state.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.abort(ctx)
			return ctx.Err()

		case cmd := <-r.commands:
			switch cmd {
			case CommandPause:
				r.engine.Pause()
				r.logger.Info("workout paused")
			case CommandResume:
				r.engine.Resume()
				r.logger.Info("workout resumed")
			case CommandSkipStep:
				delta := r.engine.SkipStep()
				r.tracker.OnSkip(delta)
				r.logger.Info("step skipped", "recovered_duration", delta)
			case CommandAbort:
				r.abort(ctx)
				return nil
			}

		case <-ticker.C:
			r.state.Send(r.tracker.Snapshot())

		case <-r.engine.TimerC():
			cmd, transition, ok := r.engine.Fire()
			if !ok {
				r.logger.Info("workout complete")
				_, _ = r.driver.Stop(ctx)
				return nil
			}

			if transition != nil {
				r.tracker.OnTransition(transition)
			} else {
				r.tracker.OnAdvance(r.engine.CurrentStep())
			}
			r.tracker.OnSetTargetPower(cmd.Watts)

			resp, err := r.driver.SetTargetPower(ctx, cmd.Watts)
			if err != nil {
				r.logger.Error("set target power rejected", "watts", cmd.Watts, "err", err)
				continue
			}
			if resp.Status != ftms.StatusSuccess {
				r.logger.Warn("set target power nack", "watts", cmd.Watts, "status", resp.Status)
				continue
			}
			r.logger.Info("set target power", "watts", cmd.Watts)
		}
	}
}

func (r *Router) abort(ctx context.Context) {
	r.logger.Info("aborting workout")
	_, _ = r.driver.Stop(ctx)
}
