package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mcpanel/auth"
	"mcpanel/config"
	"mcpanel/container"
	"mcpanel/db"
	"mcpanel/dockerlog"
	"mcpanel/history"
	"mcpanel/library"
	"mcpanel/modrinth"
	"mcpanel/pipeline"
	"mcpanel/resourcepack"

	"github.com/stretchr/testify/require"
)

type fakeRuntime struct {
	mu         sync.Mutex
	state      *container.State
	stats      *container.Stats
	inspectErr error
	actionErr  error
	actions    []string
	lines      []string
	streamErr  error
}

func (f *fakeRuntime) Inspect(ctx context.Context) (*container.State, error) {
	if f.inspectErr != nil {
		return nil, f.inspectErr
	}
	return f.state, nil
}

func (f *fakeRuntime) Stats(ctx context.Context) (*container.Stats, error) {
	if f.stats == nil {
		return &container.Stats{}, nil
	}
	return f.stats, nil
}

func (f *fakeRuntime) Action(ctx context.Context, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.actionErr != nil {
		return f.actionErr
	}
	f.actions = append(f.actions, action)
	return nil
}

func (f *fakeRuntime) Tail(ctx context.Context, n int, timestamps bool) ([]string, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return f.lines, nil
}

func (f *fakeRuntime) StreamLines(ctx context.Context, opts container.LogOptions, fn func(dockerlog.Line) error) error {
	for _, l := range f.lines {
		if err := fn(dockerlog.Line{Stream: dockerlog.Stdout, Text: l}); err != nil {
			return err
		}
	}
	return f.streamErr
}

// fakeRCON answers commands from a fixed table and records what it was sent.
type fakeRCON struct {
	mu      sync.Mutex
	replies map[string]string
	err     error
	sent    []string
}

func (f *fakeRCON) Exec(ctx context.Context, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, command)
	if f.err != nil {
		return "", f.err
	}
	return f.replies[command], nil
}

func (f *fakeRCON) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeCatalog struct {
	result  *modrinth.SearchResult
	project *modrinth.Project
	err     error
	query   modrinth.SearchQuery
}

func (f *fakeCatalog) Search(ctx context.Context, q modrinth.SearchQuery) (*modrinth.SearchResult, error) {
	f.query = q
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeCatalog) Project(ctx context.Context, slug, gameVersion, loader string) (*modrinth.Project, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.project, nil
}

// eventSource replays a fixed list of events.
type eventSource struct {
	events []pipeline.Event
	got    []pipeline.InstallRequest
}

func (s *eventSource) replay() <-chan pipeline.Event {
	ch := make(chan pipeline.Event, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch
}

type fakeInstaller struct{ eventSource }

func (f *fakeInstaller) Stream(ctx context.Context, req pipeline.InstallRequest) <-chan pipeline.Event {
	f.got = append(f.got, req)
	return f.replay()
}

type fakeGenerator struct {
	eventSource
	delay time.Duration // held before the first event
}

func (f *fakeGenerator) Stream(ctx context.Context) <-chan pipeline.Event {
	if f.delay == 0 {
		return f.replay()
	}
	ch := make(chan pipeline.Event)
	go func() {
		defer close(ch)
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return
		}
		for ev := range f.replay() {
			ch <- ev
		}
	}()
	return ch
}

type testEnv struct {
	container *Container
	runtime   *fakeRuntime
	rcon      *fakeRCON
	catalog   *fakeCatalog
	installer *fakeInstaller
	generator *fakeGenerator
	dataDir   string
}

const (
	testUser     = "admin"
	testPassword = "hunter22"
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dataDir := t.TempDir()
	cfg, err := config.NewConfigBuilder().
		WithDBPath(t.TempDir()).
		WithDBFile("test.db").
		WithBucket("test").
		WithDataDir(dataDir).
		WithAdmin(testUser, testPassword).
		Build()
	require.NoError(t, err)

	database, err := db.NewBoltDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	env := &testEnv{
		runtime:   &fakeRuntime{state: &container.State{Running: true, Status: "running"}},
		rcon:      &fakeRCON{replies: map[string]string{}},
		catalog:   &fakeCatalog{},
		installer: &fakeInstaller{},
		generator: &fakeGenerator{},
		dataDir:   dataDir,
	}
	env.container = &Container{
		Config: cfg,
		Sessions: auth.NewManager(database, database.Bucket(db.SessionsBucket),
			auth.Credentials{Username: testUser, Password: testPassword}, time.Hour, nil),
		Runtime: env.runtime,
		RCON:    env.rcon,
		History: history.NewStore(database, database.Bucket(db.HistoryBucket), nil),
		Catalog: env.catalog,
		Mods: library.New(library.Config{
			Dir: cfg.ModsDir(), Ext: ".jar", Key: "mods", ServePrefix: "/api/mods/serve/", ContentType: "application/java-archive",
		}, nil),
		Shaders: library.New(library.Config{
			Dir: cfg.ShadersDir(), Ext: ".zip", Key: "shaders", ServePrefix: "/api/shaders/serve/", ContentType: "application/zip",
		}, nil),
		Generated: library.New(library.Config{
			Dir: cfg.ResourcePacksDir(), Ext: ".zip", Key: "resourcepacks", ContentType: "application/zip",
		}, nil),
		CustomPacks: library.New(library.Config{
			Dir: cfg.CustomPacksDir(), Ext: ".zip", Key: "custom", ServePrefix: "/api/resourcepacks/custom/", ContentType: "application/zip",
		}, nil),
		Selection: resourcepack.NewStore(database, database.Bucket(db.ResourcePacksBucket)),
		Installer: env.installer,
		Generator: env.generator,
	}
	return env
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, target, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// sseEvents splits an event-stream body into its JSON payloads.
func sseEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, chunk := range bytes.Split([]byte(body), []byte("\n\n")) {
		chunk = bytes.TrimSpace(chunk)
		if len(chunk) == 0 {
			continue
		}
		require.True(t, bytes.HasPrefix(chunk, []byte("data: ")), string(chunk))
		var ev map[string]any
		require.NoError(t, json.Unmarshal(chunk[len("data: "):], &ev))
		events = append(events, ev)
	}
	return events
}

func writeTestFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}
