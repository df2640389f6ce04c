package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mcpanel/pipeline"
	"mcpanel/resourcepack"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packBody(id string) map[string]any {
	return map[string]any{
		"id":          id,
		"name":        "Pack " + id,
		"version":     "1.0",
		"downloadUrl": "https://cdn.modrinth.com/" + id + ".zip",
		"filename":    id + ".zip",
		"sha1":        "da39a3ee5e6b4b0d3255bfef95601890afd80709",
		"size":        10,
	}
}

func TestResourcePacksAddListRemove(t *testing.T) {
	env := newTestEnv(t)
	h := NewResourcePackHandlers(env.container)

	w := httptest.NewRecorder()
	h.Add(w, jsonRequest(t, http.MethodPost, "/api/resourcepacks", packBody("faithful")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	h.Add(w, jsonRequest(t, http.MethodPost, "/api/resourcepacks", packBody("faithful")))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Resource pack already in list", decodeJSON(t, w)["error"])

	w = httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/resourcepacks", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)
	packs := body["selectedPacks"].([]any)
	require.Len(t, packs, 1)
	assert.Equal(t, "faithful", packs[0].(map[string]any)["id"])
	assert.Nil(t, body["generatedPack"])

	req := mux.SetURLVars(httptest.NewRequest(http.MethodDelete, "/api/resourcepacks/faithful", nil), map[string]string{"id": "faithful"})
	w = httptest.NewRecorder()
	h.Remove(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = mux.SetURLVars(httptest.NewRequest(http.MethodDelete, "/api/resourcepacks/faithful", nil), map[string]string{"id": "faithful"})
	w = httptest.NewRecorder()
	h.Remove(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResourcePacksAdd_Invalid(t *testing.T) {
	env := newTestEnv(t)
	body := packBody("x")
	delete(body, "downloadUrl")

	w := httptest.NewRecorder()
	NewResourcePackHandlers(env.container).Add(w, jsonRequest(t, http.MethodPost, "/api/resourcepacks", body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResourcePacksUpload(t *testing.T) {
	env := newTestEnv(t)
	h := NewResourcePackHandlers(env.container)

	w := httptest.NewRecorder()
	h.Upload(w, multipartRequest(t, "/api/resourcepacks/upload", "file", "mine.zip", []byte("PK zip bytes")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	pack := decodeJSON(t, w)["pack"].(map[string]any)
	assert.Equal(t, true, pack["isCustom"])
	assert.Equal(t, "/api/resourcepacks/custom/mine.zip", pack["downloadUrl"])

	stored := filepath.Join(env.container.Config.CustomPacksDir(), "mine.zip")
	_, err := os.Stat(stored)
	require.NoError(t, err)

	w = httptest.NewRecorder()
	h.Upload(w, multipartRequest(t, "/api/resourcepacks/upload", "file", "copy.zip", []byte("PK zip bytes")))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	h.Upload(w, multipartRequest(t, "/api/resourcepacks/upload", "file", "mine.rar", []byte("rar")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid file type. Only .zip files are allowed", decodeJSON(t, w)["error"])

	id := pack["id"].(string)
	req := mux.SetURLVars(httptest.NewRequest(http.MethodDelete, "/api/resourcepacks/"+id, nil), map[string]string{"id": id})
	w = httptest.NewRecorder()
	h.Remove(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	_, err = os.Stat(stored)
	assert.True(t, os.IsNotExist(err), "uploaded archive should be deleted with the pack")
}

func TestResourcePacksGenerateStream(t *testing.T) {
	env := newTestEnv(t)
	env.generator.events = []pipeline.Event{
		pipeline.GenerateStartEvent{TotalPacks: 1, Packs: []pipeline.Summary{{ID: "faithful", Name: "Faithful"}}},
		pipeline.GenerateCompleteEvent{Message: "Resource pack generated", Pack: &resourcepack.Artifact{Filename: "server-resourcepack.zip"}},
	}

	w := httptest.NewRecorder()
	NewResourcePackHandlers(env.container).GenerateStream(w, httptest.NewRequest(http.MethodGet, "/api/resourcepacks/generate-stream", nil))
	require.Equal(t, http.StatusOK, w.Code)

	events := sseEvents(t, w.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, "start", events[0]["type"])
	assert.Equal(t, "complete", events[1]["type"])
	assert.Equal(t, "server-resourcepack.zip", events[1]["pack"].(map[string]any)["filename"])
}

func TestResourcePacksGenerate(t *testing.T) {
	tests := []struct {
		name  string
		last  pipeline.Event
		code  int
		field string
		want  string
	}{
		{"complete", pipeline.GenerateCompleteEvent{Message: "done", Pack: &resourcepack.Artifact{Filename: "server-resourcepack.zip"}}, http.StatusOK, "message", "done"},
		{"busy", pipeline.ErrorEvent{Message: pipeline.ErrGenerationInProgress.Error()}, http.StatusConflict, "error", "Generation already in progress"},
		{"failed", pipeline.ErrorEvent{Message: "No resource packs selected"}, http.StatusInternalServerError, "error", "No resource packs selected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.generator.events = []pipeline.Event{pipeline.GenerateStartEvent{}, tt.last}

			w := httptest.NewRecorder()
			NewResourcePackHandlers(env.container).Generate(w, httptest.NewRequest(http.MethodPost, "/api/resourcepacks/generate", nil))
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.want, decodeJSON(t, w)[tt.field])
		})
	}
}

func TestResourcePacksServeGenerated(t *testing.T) {
	env := newTestEnv(t)
	writeTestFile(t, env.container.Config.ResourcePacksDir(), "server-resourcepack.zip", []byte("zip"))

	artifact := &resourcepack.Artifact{Filename: "server-resourcepack.zip", GeneratedAt: time.Now()}
	require.NoError(t, env.container.Selection.SetGenerated(context.Background(), artifact))

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/resourcepacks/serve/server-resourcepack.zip", nil),
		map[string]string{"filename": "server-resourcepack.zip"})
	w := httptest.NewRecorder()
	NewResourcePackHandlers(env.container).ServeGenerated(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.NotEmpty(t, w.Header().Get("ETag"))
	assert.Equal(t, "zip", w.Body.String())
}

func TestResourcePacksGenerate_OutlivesWriteTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.generator.delay = 300 * time.Millisecond
	env.generator.events = []pipeline.Event{
		pipeline.GenerateStartEvent{TotalPacks: 2},
		pipeline.GenerateCompleteEvent{Message: "2 packs merged successfully", Pack: &resourcepack.Artifact{Filename: "server-resourcepack.zip"}},
	}

	srv := httptest.NewUnstartedServer(http.HandlerFunc(NewResourcePackHandlers(env.container).Generate))
	srv.Config.WriteTimeout = 50 * time.Millisecond
	srv.Start()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/resourcepacks/generate", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "2 packs merged successfully", body["message"])
}
