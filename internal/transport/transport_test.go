package transport

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/szymek156/velomania-go/internal/router"
	"github.com/szymek156/velomania-go/internal/workout"
)

type fakeSource struct {
	states   chan workout.State
	commands chan router.Command
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		states:   make(chan workout.State, 4),
		commands: make(chan router.Command, 4),
	}
}

func (f *fakeSource) SubscribeState() <-chan workout.State { return f.states }
func (f *fakeSource) Commands() chan<- router.Command      { return f.commands }

func sampleState() workout.State {
	return workout.State{
		TotalSteps:           2,
		CurrentStepNumber:    1,
		TotalWorkoutDuration: 10 * time.Second,
		WorkoutElapsed:       2 * time.Second,
		CurrentPowerSet:      150,
		FTPBase:              200,
		CurrentStepInfo: workout.StepInfo{
			Step:     workout.NewSteadyState(10, 0.75),
			Duration: 10 * time.Second,
			Elapsed:  2 * time.Second,
		},
	}
}

func TestHandleWorkoutStateStreamsNDJSON(t *testing.T) {
	src := newFakeSource()
	srv := NewServer(src)
	mux := http.NewServeMux()
	srv.Routes(mux)

	ts := httptest.NewServer(mux)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/workout_state", nil)
	require.NoError(t, err)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	src.states <- sampleState()

	scanner := bufio.NewScanner(resp.Body)
	require.True(t, scanner.Scan())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &decoded))
	assert.Equal(t, float64(150), decoded["current_power_set"])
	assert.Contains(t, decoded, "server_time")
	assert.Contains(t, decoded, "run_id")
}

func TestHandleWSRoundTrip(t *testing.T) {
	src := newFakeSource()
	srv := NewServer(src)
	mux := http.NewServeMux()
	srv.Routes(mux)

	ts := httptest.NewServer(mux)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	src.states <- sampleState()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, float64(150), decoded["current_power_set"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("S")))

	select {
	case cmd := <-src.commands:
		assert.Equal(t, router.CommandSkipStep, cmd)
	case <-time.After(time.Second):
		t.Fatal("skip command was not forwarded")
	}
}

func TestParseCommandAcceptsBareLettersAndJSONEnvelope(t *testing.T) {
	cmd, ok := parseCommand([]byte("q"))
	require.True(t, ok)
	assert.Equal(t, router.CommandAbort, cmd)

	cmd, ok = parseCommand([]byte(`{"cmd":"skip"}`))
	require.True(t, ok)
	assert.Equal(t, router.CommandSkipStep, cmd)

	_, ok = parseCommand([]byte("garbage"))
	assert.False(t, ok)
}
