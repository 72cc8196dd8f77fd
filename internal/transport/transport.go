// Package transport exposes the workout's running state and command input
// over HTTP: a newline-delimited JSON stream and a bidirectional
// WebSocket, both collaborators to the core router (spec §6, §4.8).
// Connection handling (ping/pong keepalive, read/write loop split)
// mirrors the teacher's WorkerWSClient in internal/api/worker_ws.go,
// adapted from a client dialing out to a server accepting connections.
package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/szymek156/velomania-go/internal/router"
	"github.com/szymek156/velomania-go/internal/workout"
)

const (
	pingInterval = 5 * time.Second
	idleTimeout  = 10 * time.Second
)

// StateSource is the subset of *router.Router the transport depends on.
type StateSource interface {
	SubscribeState() <-chan workout.State
	Commands() chan<- router.Command
}

// Server wires the HTTP and WebSocket endpoints onto a StateSource. Each
// Server mints a fresh run ID that is patched into every snapshot frame it
// sends, purely for correlation; it never affects engine/driver logic and
// is not added to log lines.
type Server struct {
	source StateSource
	runID  string
	logger *log.Logger

	upgrader websocket.Upgrader
}

// NewServer builds a Server for the given command/state source.
func NewServer(source StateSource) *Server {
	return &Server{
		source: source,
		runID:  uuid.NewString(),
		logger: log.Default().With("component", "transport"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Routes registers the transport's handlers on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/workout_state", s.handleWorkoutState)
	mux.HandleFunc("/ws", s.handleWS)
}

// snapshotJSON marshals a workout.State and patches in server_time and
// run_id without adding those fields to the struct itself (spec
// `[EXPANDED]` C10: sjson-patched correlation fields).
func (s *Server) snapshotJSON(st workout.State) ([]byte, error) {
	raw, err := json.Marshal(publicState(st))
	if err != nil {
		return nil, err
	}
	raw, err = sjson.SetBytes(raw, "server_time", time.Now().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(raw, "run_id", s.runID)
}

// handleWorkoutState streams newline-delimited JSON state snapshots,
// responding 400 if no workout is active (spec §6: "GET /workout_state ->
// newline-delimited JSON of the state snapshot ... Responds 400 if no
// workout active").
func (s *Server) handleWorkoutState(w http.ResponseWriter, r *http.Request) {
	sub := s.source.SubscribeState()
	if sub == nil {
		http.Error(w, "no workout active", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		// Send the headers now so the client sees the stream open before
		// the first snapshot arrives.
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case st, ok := <-sub:
			if !ok {
				return
			}
			payload, err := s.snapshotJSON(st)
			if err != nil {
				s.logger.Error("marshal state snapshot", "err", err)
				continue
			}
			if _, err := w.Write(append(payload, '\n')); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// handleWS upgrades to a WebSocket, sending the state snapshot as JSON
// text on each broadcast and accepting `S`/`Q` (or `{"cmd":"skip"}`-style
// envelopes) command messages with the same semantics as stdin (spec §6).
// Pings every 5s; disconnects a client idle for 10s.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade", "err", err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go s.wsReadLoop(conn, done)

	sub := s.source.SubscribeState()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(2*time.Second)); err != nil {
				return
			}
		case st, ok := <-sub:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "workout ended"))
				return
			}
			payload, err := s.snapshotJSON(st)
			if err != nil {
				s.logger.Error("marshal state snapshot", "err", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}

// wsReadLoop reads client command messages leniently: either a bare
// single-letter command (`S`, `Q`) or a `{"cmd":"skip"|"abort"|...}`
// envelope, parsed with gjson so malformed JSON never crashes the
// connection (spec `[EXPANDED]` C10).
func (s *Server) wsReadLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		cmd, ok := parseCommand(msg)
		if !ok {
			s.logger.Warn("unrecognized websocket command", "payload", string(msg))
			continue
		}
		select {
		case s.source.Commands() <- cmd:
		default:
		}
	}
}

// parseCommand accepts a bare letter ("S", "s", "Q", "q") or a JSON
// envelope with a "cmd" field ("skip", "abort", "pause", "resume"),
// matching the stdin command vocabulary (spec §6).
func parseCommand(msg []byte) (router.Command, bool) {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 1 {
		return letterCommand(trimmed[0])
	}

	cmd := gjson.GetBytes(msg, "cmd")
	if !cmd.Exists() {
		return 0, false
	}
	switch cmd.String() {
	case "skip", "S", "s":
		return router.CommandSkipStep, true
	case "abort", "Q", "q":
		return router.CommandAbort, true
	case "pause":
		return router.CommandPause, true
	case "resume":
		return router.CommandResume, true
	default:
		return 0, false
	}
}

func letterCommand(b byte) (router.Command, bool) {
	switch b {
	case 'S', 's':
		return router.CommandSkipStep, true
	case 'Q', 'q':
		return router.CommandAbort, true
	default:
		return 0, false
	}
}

// publicStateT is the JSON-facing projection of workout.State: durations
// rendered as seconds (float) rather than time.Duration's default
// nanosecond integer, matching a wire-friendly NDJSON/WS payload.
type publicStateT struct {
	TotalSteps           int                 `json:"total_steps"`
	CurrentStepNumber    int                 `json:"current_step_number"`
	TotalWorkoutDuration float64             `json:"total_workout_duration"`
	WorkoutElapsed       float64             `json:"workout_elapsed"`
	NextStepKind         string              `json:"next_step,omitempty"`
	CurrentPowerSet      int16               `json:"current_power_set"`
	FTPBase              float64             `json:"ftp_base"`
	CurrentStepInfo      publicStepInfo      `json:"current_step_info"`
	CurrentIntervalInfo  *publicIntervalInfo `json:"current_interval_info,omitempty"`
}

type publicStepInfo struct {
	Step     string  `json:"step"`
	Duration float64 `json:"duration"`
	Elapsed  float64 `json:"elapsed"`
}

type publicIntervalInfo struct {
	Repetition int     `json:"repetition"`
	IsWork     bool    `json:"is_work"`
	Duration   float64 `json:"duration"`
	Elapsed    float64 `json:"elapsed"`
}

func publicState(st workout.State) publicStateT {
	p := publicStateT{
		TotalSteps:           st.TotalSteps,
		CurrentStepNumber:    st.CurrentStepNumber,
		TotalWorkoutDuration: st.TotalWorkoutDuration.Seconds(),
		WorkoutElapsed:       st.WorkoutElapsed.Seconds(),
		CurrentPowerSet:      st.CurrentPowerSet,
		FTPBase:              st.FTPBase,
		CurrentStepInfo: publicStepInfo{
			Step:     st.CurrentStepInfo.Step.Kind(),
			Duration: st.CurrentStepInfo.Duration.Seconds(),
			Elapsed:  st.CurrentStepInfo.Elapsed.Seconds(),
		},
	}
	if st.NextStep != nil {
		p.NextStepKind = st.NextStep.Kind()
	}
	if st.CurrentIntervalInfo != nil {
		p.CurrentIntervalInfo = &publicIntervalInfo{
			Repetition: st.CurrentIntervalInfo.Repetition,
			IsWork:     st.CurrentIntervalInfo.IsWork,
			Duration:   st.CurrentIntervalInfo.Duration.Seconds(),
			Elapsed:    st.CurrentIntervalInfo.Elapsed.Seconds(),
		}
	}
	return p
}
