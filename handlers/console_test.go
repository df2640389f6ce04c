package handlers

import (
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"mcpanel/container"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleLogs(t *testing.T) {
	env := newTestEnv(t)
	env.runtime.lines = []string{"[Server thread/INFO]: Starting", "   ", "[Server thread/INFO]: Done (3.2s)!"}

	w := httptest.NewRecorder()
	NewConsoleHandlers(env.container).Logs(w, httptest.NewRequest(http.MethodGet, "/api/console/logs?tail=10", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"[Server thread/INFO]: Starting", "[Server thread/INFO]: Done (3.2s)!"}, decodeJSON(t, w)["logs"])
}

func TestConsoleLogs_MissingContainer(t *testing.T) {
	env := newTestEnv(t)
	env.runtime.streamErr = container.ErrNotFound

	w := httptest.NewRecorder()
	NewConsoleHandlers(env.container).Logs(w, httptest.NewRequest(http.MethodGet, "/api/console/logs", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConsoleStream(t *testing.T) {
	env := newTestEnv(t)
	env.runtime.lines = []string{"first", "", "second"}
	env.runtime.streamErr = stderrors.New("unexpected EOF")

	w := httptest.NewRecorder()
	NewConsoleHandlers(env.container).Stream(w, httptest.NewRequest(http.MethodGet, "/api/console/stream", nil))

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	events := sseEvents(t, w.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, "first", events[0]["log"])
	assert.Equal(t, "second", events[1]["log"])
	assert.Equal(t, "Log stream ended", events[2]["error"])
}

func TestConsoleStream_MissingContainer(t *testing.T) {
	env := newTestEnv(t)
	env.runtime.inspectErr = container.ErrNotFound

	w := httptest.NewRecorder()
	NewConsoleHandlers(env.container).Stream(w, httptest.NewRequest(http.MethodGet, "/api/console/stream", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestWhitelistList_File(t *testing.T) {
	env := newTestEnv(t)
	data := `[{"uuid":"069a79f4-44e9-4726-a5be-fca90e38aaf5","name":"Notch"}]`
	require.NoError(t, os.WriteFile(filepath.Join(env.dataDir, "whitelist.json"), []byte(data), 0o644))

	w := httptest.NewRecorder()
	NewWhitelistHandlers(env.container).List(w, httptest.NewRequest(http.MethodGet, "/api/whitelist", nil))
	require.Equal(t, http.StatusOK, w.Code)

	players := decodeJSON(t, w)["players"].([]any)
	require.Len(t, players, 1)
	assert.Equal(t, "Notch", players[0].(map[string]any)["name"])
	assert.Empty(t, env.rcon.commands())
}

func TestWhitelistList_RCONFallback(t *testing.T) {
	env := newTestEnv(t)
	env.rcon.replies["whitelist list"] = "There are 2 whitelisted players: Steve, Alex"

	w := httptest.NewRecorder()
	NewWhitelistHandlers(env.container).List(w, httptest.NewRequest(http.MethodGet, "/api/whitelist", nil))
	require.Equal(t, http.StatusOK, w.Code)

	players := decodeJSON(t, w)["players"].([]any)
	require.Len(t, players, 2)
	assert.Equal(t, "Alex", players[1].(map[string]any)["name"])
}

func TestWhitelistAddRemove(t *testing.T) {
	env := newTestEnv(t)
	env.rcon.replies["whitelist add Steve"] = "Added Steve to the whitelist"
	env.rcon.replies["whitelist remove Steve"] = "Removed Steve from the whitelist"
	h := NewWhitelistHandlers(env.container)

	w := httptest.NewRecorder()
	h.Add(w, jsonRequest(t, http.MethodPost, "/api/whitelist", map[string]string{"player": "Steve"}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Added Steve to the whitelist", decodeJSON(t, w)["message"])

	w = httptest.NewRecorder()
	h.Remove(w, jsonRequest(t, http.MethodDelete, "/api/whitelist", map[string]string{"player": "Steve"}))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []string{
		"whitelist add Steve", "whitelist reload",
		"whitelist remove Steve", "whitelist reload",
	}, env.rcon.commands())
}

func TestWhitelistAdd_InvalidName(t *testing.T) {
	env := newTestEnv(t)

	for _, name := range []string{"ab", "way_too_long_player_name", "Steve; op Steve"} {
		w := httptest.NewRecorder()
		NewWhitelistHandlers(env.container).Add(w, jsonRequest(t, http.MethodPost, "/api/whitelist", map[string]string{"player": name}))
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
		assert.Equal(t, "Invalid player name", decodeJSON(t, w)["error"])
	}
	assert.Empty(t, env.rcon.commands())
}
