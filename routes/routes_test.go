package routes

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mcpanel/auth"
	"mcpanel/config"
	"mcpanel/container"
	"mcpanel/db"
	"mcpanel/dockerlog"
	"mcpanel/handlers"
	"mcpanel/library"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stoppedServer struct{}

func (stoppedServer) Inspect(ctx context.Context) (*container.State, error) {
	return container.NotFoundState(), nil
}

func (stoppedServer) Stats(ctx context.Context) (*container.Stats, error) {
	return &container.Stats{}, nil
}

func (stoppedServer) Action(ctx context.Context, action string) error { return nil }

func (stoppedServer) Tail(ctx context.Context, n int, timestamps bool) ([]string, error) {
	return nil, nil
}

func (stoppedServer) StreamLines(ctx context.Context, opts container.LogOptions, fn func(dockerlog.Line) error) error {
	return nil
}

// createTestContainer wires the pieces the routing tests touch.
func createTestContainer(t *testing.T) *handlers.Container {
	t.Helper()
	cfg, err := config.NewConfigBuilder().
		WithDBPath(t.TempDir()).
		WithDBFile("test.db").
		WithBucket("test").
		WithDataDir(t.TempDir()).
		WithAdmin("admin", "secret").
		Build()
	require.NoError(t, err)

	database, err := db.NewBoltDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	return &handlers.Container{
		Config: cfg,
		Logger: zap.NewNop(),
		Sessions: auth.NewManager(database, database.Bucket(db.SessionsBucket),
			auth.Credentials{Username: "admin", Password: "secret"}, time.Hour, nil),
		Runtime: stoppedServer{},
		Mods: library.New(library.Config{
			Dir: cfg.ModsDir(), Ext: ".jar", Key: "mods", ServePrefix: "/api/mods/serve/",
		}, nil),
		Shaders: library.New(library.Config{
			Dir: cfg.ShadersDir(), Ext: ".zip", Key: "shaders", ServePrefix: "/api/shaders/serve/",
		}, nil),
	}
}

func TestSetup_RegistersRoutes(t *testing.T) {
	router := Setup(createTestContainer(t), nil, http.NotFoundHandler())

	templates := map[string]bool{}
	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		if tpl, err := route.GetPathTemplate(); err == nil {
			templates[tpl] = true
		}
		return nil
	})
	require.NoError(t, err)

	for _, tpl := range []string{
		"/healthz",
		"/metrics",
		"/api/auth/login",
		"/api/server/status",
		"/api/server/command",
		"/api/server/history",
		"/api/players",
		"/api/whitelist",
		"/api/console/stream",
		"/api/settings/icon",
		"/api/mods/install/stream",
		"/api/mods/serve/{filename}",
		"/api/shaders/{slug}",
		"/api/manifest/mods",
		"/api/resourcepacks/generate/stream",
		"/api/resourcepacks/{id}",
	} {
		assert.True(t, templates[tpl], "missing route %s", tpl)
	}
}

func TestSetup_Authentication(t *testing.T) {
	c := createTestContainer(t)
	router := Setup(c, nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/mods/manifest", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/server/status", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		bytes.NewBufferString(`{"username":"admin","password":"secret"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/api/server/status", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"not found"`)
}

func TestSetup_ChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	router := Setup(createTestContainer(t), []func(http.Handler) http.Handler{mark("first"), mark("second")}, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"first", "second"}, order)
}
