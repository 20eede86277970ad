package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/seven-days-calm/internal/tracker"
)

func run(t *testing.T, state, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--state", state}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestStatusCompleteReset(t *testing.T) {
	state := filepath.Join(t.TempDir(), "calm.db")

	out, err := run(t, state, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Day 1 of 7: Arrive")
	assert.Contains(t, out, "Progress: [>][ ][ ][ ][ ][ ][ ]")

	out, err = run(t, state, "", "complete")
	require.NoError(t, err)
	assert.Contains(t, out, "Now on Day 2: Longer Exhale")

	out, err = run(t, state, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Progress: [x][>][ ][ ][ ][ ][ ]")

	out, err = run(t, state, "", "reset")
	require.NoError(t, err)
	assert.Contains(t, out, tracker.ResetMessage)

	out, err = run(t, state, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Day 1 of 7")
}

func TestSetDayAndWidget(t *testing.T) {
	state := filepath.Join(t.TempDir(), "calm.db")

	_, err := run(t, state, "", "set-day", "6")
	require.NoError(t, err)

	out, err := run(t, state, "", "widget")
	require.NoError(t, err)
	var attrs map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &attrs))
	assert.Equal(t, tracker.FirstMessage(6), attrs[tracker.AttrFirstMessage])
	assert.Contains(t, attrs[tracker.AttrDynamicVariables], `"challenge_day":6`)

	_, err = run(t, state, "", "set-day", "six")
	assert.Error(t, err)
}

func TestSkipAlreadyCaughtUp(t *testing.T) {
	state := filepath.Join(t.TempDir(), "calm.db")
	out, err := run(t, state, "", "skip")
	require.NoError(t, err)
	assert.Contains(t, out, "Already on today's day (Day 1)")
}

func TestPromptConfirm(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, promptConfirm(strings.NewReader("y\n"), &out)(1, 3))
	assert.Contains(t, out.String(), "Jump from Day 1 to Day 3?")
	assert.True(t, promptConfirm(strings.NewReader("YES\n"), &out)(1, 3))
	assert.False(t, promptConfirm(strings.NewReader("n\n"), &out)(1, 3))
	assert.False(t, promptConfirm(strings.NewReader(""), &out)(1, 3))
}

func TestRemind(t *testing.T) {
	state := filepath.Join(t.TempDir(), "calm.db")

	_, err := run(t, state, "", "remind", "21:30", "Sleep", "Wind-Down")
	require.NoError(t, err)

	out, err := run(t, state, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Reminder: 21:30 Sleep Wind-Down")

	_, err = run(t, state, "", "remind", "9pm", "x")
	assert.Error(t, err)
}

func TestSession(t *testing.T) {
	var gotDay string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDay = r.URL.Query().Get("challenge_day")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"url":"wss://convai.example/ws?token=t&day=1","signed_url":"wss://convai.example/ws?token=t&day=1","expiresAt":"2030-01-01T00:00:00Z","challenge_day":1}`))
	}))
	defer srv.Close()

	state := filepath.Join(t.TempDir(), "calm.db")
	out, err := run(t, state, "", "--api", srv.URL, "session")
	require.NoError(t, err)
	assert.Equal(t, "1", gotDay)
	assert.Contains(t, out, tracker.StatusReadyMessage)
	assert.Contains(t, out, "wss://convai.example/ws?token=t&day=1")
}

func TestSessionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"error":"Origin not allowed"}`))
	}))
	defer srv.Close()

	state := filepath.Join(t.TempDir(), "calm.db")
	out, err := run(t, state, "", "--api", srv.URL, "session")
	require.Error(t, err)
	assert.Contains(t, out, tracker.StatusErrorMessage)
}

func TestTrackerWarningsUseConsoleLogger(t *testing.T) {
	state := filepath.Join(t.TempDir(), "calm.db")
	st, err := tracker.OpenBolt(state)
	require.NoError(t, err)
	require.NoError(t, st.Set(tracker.KeyReminder, "not json"))
	require.NoError(t, st.Close())

	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--state", state, "status"})
	require.NoError(t, cmd.Execute())

	assert.NotContains(t, out.String(), "Reminder:")
	assert.Contains(t, errOut.String(), "WRN")
	assert.Contains(t, errOut.String(), "Ignoring invalid persisted reminder")
}

func TestSlogBridgeHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newSlogLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))

	logger.Debug("hidden")
	logger.Warn("shown", "error", errors.New("boom"), "day", 3)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"error":"boom"`)
	assert.Contains(t, buf.String(), `"day":3`)
}
