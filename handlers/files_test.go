package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"mcpanel/library"
	"mcpanel/pipeline"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModsList(t *testing.T) {
	env := newTestEnv(t)
	writeTestFile(t, env.container.Config.ModsDir(), "sodium.jar", []byte("jar"))
	writeTestFile(t, env.container.Config.ModsDir(), "readme.txt", []byte("ignored"))

	w := httptest.NewRecorder()
	NewModHandlers(env.container).List(w, httptest.NewRequest(http.MethodGet, "/api/mods", nil))
	require.Equal(t, http.StatusOK, w.Code)

	mods := decodeJSON(t, w)["mods"].([]any)
	require.Len(t, mods, 1)
	assert.Equal(t, "sodium.jar", mods[0].(map[string]any)["filename"])
	assert.Equal(t, float64(3), mods[0].(map[string]any)["size"])
}

func TestModsUploadDelete(t *testing.T) {
	env := newTestEnv(t)
	h := NewModHandlers(env.container)

	w := httptest.NewRecorder()
	h.Upload(w, multipartRequest(t, "/api/mods/upload", "file", "lithium.jar", []byte("jar bytes")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "lithium.jar", decodeJSON(t, w)["filename"])

	w = httptest.NewRecorder()
	h.Upload(w, multipartRequest(t, "/api/mods/upload", "file", "lithium.jar", []byte("again")))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	h.Upload(w, multipartRequest(t, "/api/mods/upload", "file", "virus.exe", []byte("MZ")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid file type. Only .jar files are allowed", decodeJSON(t, w)["error"])

	w = httptest.NewRecorder()
	h.Delete(w, jsonRequest(t, http.MethodDelete, "/api/mods", map[string]string{"filename": "lithium.jar"}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "lithium.jar removed", decodeJSON(t, w)["message"])

	_, err := os.Stat(filepath.Join(env.container.Config.ModsDir(), "lithium.jar"))
	assert.True(t, os.IsNotExist(err))

	w = httptest.NewRecorder()
	h.Delete(w, jsonRequest(t, http.MethodDelete, "/api/mods", map[string]string{"filename": "lithium.jar"}))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestModsDelete_Traversal(t *testing.T) {
	env := newTestEnv(t)
	writeTestFile(t, env.dataDir, "keep.jar", []byte("outside"))

	w := httptest.NewRecorder()
	NewModHandlers(env.container).Delete(w, jsonRequest(t, http.MethodDelete, "/api/mods", map[string]string{"filename": "../keep.jar"}))
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, err := os.Stat(filepath.Join(env.dataDir, "keep.jar"))
	assert.NoError(t, err)
}

func TestModsServe(t *testing.T) {
	env := newTestEnv(t)
	writeTestFile(t, env.container.Config.ModsDir(), "sodium.jar", []byte("jar content"))
	h := NewModHandlers(env.container)

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/mods/serve/sodium.jar", nil),
		map[string]string{"filename": "sodium.jar"})
	w := httptest.NewRecorder()
	h.Serve(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jar content", w.Body.String())
	assert.Equal(t, "application/java-archive", w.Header().Get("Content-Type"))
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/mods/serve/sodium.jar", nil),
		map[string]string{"filename": "sodium.jar"})
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	h.Serve(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)

	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/mods/serve/missing.jar", nil),
		map[string]string{"filename": "missing.jar"})
	w = httptest.NewRecorder()
	h.Serve(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestModsManifest(t *testing.T) {
	env := newTestEnv(t)
	writeTestFile(t, env.container.Config.ModsDir(), "sodium.jar", []byte("abc"))

	w := httptest.NewRecorder()
	NewModHandlers(env.container).Manifest(w, httptest.NewRequest(http.MethodGet, "/api/mods/manifest", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public, max-age=60", w.Header().Get("Cache-Control"))

	body := decodeJSON(t, w)
	assert.Equal(t, library.ManifestVersion, body["version"])
	assert.Equal(t, env.container.Config.Minecraft.Version, body["minecraft_version"])
	mods := body["mods"].([]any)
	require.Len(t, mods, 1)
	entry := mods[0].(map[string]any)
	assert.Equal(t, "/api/mods/serve/sodium.jar", entry["url"])
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", entry["sha256"])
}

func TestShadersInstallStream(t *testing.T) {
	env := newTestEnv(t)
	env.installer.events = []pipeline.Event{
		pipeline.StartEvent{Kind: pipeline.KindShader, TotalItems: 1, Items: []pipeline.Summary{{ID: "bsl", Name: "BSL"}}},
		pipeline.DownloadingEvent{ItemID: "bsl", ItemName: "BSL", Progress: 50},
		pipeline.ItemCompleteEvent{ItemID: "bsl", ItemName: "BSL", Filename: "bsl.zip"},
		pipeline.CompleteEvent{Message: "Installed 1 shader(s)", Installed: []string{"BSL"}, Failed: []string{}},
	}

	body, err := json.Marshal(map[string]any{"shaders": []map[string]any{{
		"id": "bsl", "name": "BSL", "downloadUrl": "https://cdn.example/bsl.zip", "filename": "bsl.zip",
	}}})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	NewShaderHandlers(env.container).InstallStream(w,
		httptest.NewRequest(http.MethodPost, "/api/shaders/install-stream", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := sseEvents(t, w.Body.String())
	require.Len(t, events, 4)
	assert.Equal(t, "start", events[0]["type"])
	assert.Equal(t, "downloading", events[1]["type"])
	assert.Equal(t, "itemComplete", events[2]["type"])
	assert.Equal(t, "complete", events[3]["type"])

	require.Len(t, env.installer.got, 1)
	assert.Equal(t, pipeline.KindShader, env.installer.got[0].Kind)
	assert.Equal(t, "bsl.zip", env.installer.got[0].Items[0].Filename)
}

func TestInstallStream_Empty(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	NewModHandlers(env.container).InstallStream(w,
		httptest.NewRequest(http.MethodPost, "/api/mods/install-stream", bytes.NewReader([]byte(`{"mods":[]}`))))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No mods to install", decodeJSON(t, w)["error"])
	assert.Empty(t, env.installer.got)
}
