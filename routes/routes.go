package routes

import (
	"net/http"

	"mcpanel/handlers"

	"github.com/gorilla/mux"
)

// Setup configures and returns a new router with all defined routes for the
// application. chain runs in order around every matched route, followed by
// session authentication. metrics may be nil.
func Setup(c *handlers.Container, chain []func(http.Handler) http.Handler, metrics http.Handler) *mux.Router {
	router := mux.NewRouter()

	for _, mw := range chain {
		router.Use(mw)
	}
	router.Use(handlers.AuthMiddleware(c.Sessions, c.Logger))

	router.HandleFunc("/healthz", handlers.Healthz).Methods("GET").Name("Healthz")
	if metrics != nil {
		router.Handle("/metrics", metrics).Methods("GET").Name("Metrics")
	}

	api := router.PathPrefix("/api").Subrouter()
	setupAuthRoutes(api, c)
	setupServerRoutes(api, c)
	setupSettingsRoutes(api, c)
	setupLibraryRoutes(api, "/mods", handlers.NewModHandlers(c), "Mods")
	setupLibraryRoutes(api, "/shaders", handlers.NewShaderHandlers(c), "Shaders")
	setupManifestRoutes(api, c)
	setupResourcePackRoutes(api, c)

	return router
}

func setupAuthRoutes(api *mux.Router, c *handlers.Container) {
	h := handlers.NewAuthHandlers(c)
	api.HandleFunc("/auth/login", h.Login).Methods("POST").Name("Login")
	api.HandleFunc("/auth/logout", h.Logout).Methods("POST").Name("Logout")
}

func setupServerRoutes(api *mux.Router, c *handlers.Container) {
	server := handlers.NewServerHandlers(c)
	api.HandleFunc("/server/status", server.Status).Methods("GET").Name("ServerStatus")
	api.HandleFunc("/server/control", server.Control).Methods("POST").Name("ServerControl")
	api.HandleFunc("/server/command", server.Command).Methods("POST").Name("ServerCommand")
	api.HandleFunc("/server/history", server.History).Methods("GET").Name("CommandHistory")
	api.HandleFunc("/players", server.Players).Methods("GET").Name("Players")

	whitelist := handlers.NewWhitelistHandlers(c)
	api.HandleFunc("/whitelist", whitelist.List).Methods("GET").Name("Whitelist")
	api.HandleFunc("/whitelist", whitelist.Add).Methods("POST").Name("WhitelistAdd")
	api.HandleFunc("/whitelist", whitelist.Remove).Methods("DELETE").Name("WhitelistRemove")

	console := handlers.NewConsoleHandlers(c)
	api.HandleFunc("/console/logs", console.Logs).Methods("GET").Name("ConsoleLogs")
	api.HandleFunc("/console/stream", console.Stream).Methods("GET").Name("ConsoleStream")
}

func setupSettingsRoutes(api *mux.Router, c *handlers.Container) {
	h := handlers.NewSettingsHandlers(c)
	api.HandleFunc("/settings", h.Get).Methods("GET").Name("Settings")
	api.HandleFunc("/settings", h.Put).Methods("PUT").Name("SettingsUpdate")
	api.HandleFunc("/settings/icon", h.GetIcon).Methods("GET").Name("Icon")
	api.HandleFunc("/settings/icon", h.UploadIcon).Methods("POST").Name("IconUpload")
	api.HandleFunc("/settings/icon", h.DeleteIcon).Methods("DELETE").Name("IconDelete")
}

// setupLibraryRoutes registers a mods-like library. Fixed paths come before
// {slug} so they are not taken for project slugs.
func setupLibraryRoutes(api *mux.Router, prefix string, h *handlers.LibraryHandlers, name string) {
	api.HandleFunc(prefix, h.List).Methods("GET").Name(name)
	api.HandleFunc(prefix, h.Delete).Methods("DELETE").Name(name + "Delete")
	api.HandleFunc(prefix+"/upload", h.Upload).Methods("POST").Name(name + "Upload")
	api.HandleFunc(prefix+"/search", h.Search).Methods("GET").Name(name + "Search")
	api.HandleFunc(prefix+"/install/stream", h.InstallStream).Methods("POST").Name(name + "Install")
	api.HandleFunc(prefix+"/manifest", h.Manifest).Methods("GET").Name(name + "Manifest")
	api.HandleFunc(prefix+"/serve/{filename}", h.Serve).Methods("GET", "HEAD").Name(name + "Serve")
	api.HandleFunc(prefix+"/{slug}", h.Project).Methods("GET").Name(name + "Project")
}

// setupManifestRoutes exposes the launcher manifests under one prefix.
func setupManifestRoutes(api *mux.Router, c *handlers.Container) {
	api.HandleFunc("/manifest/mods", handlers.NewModHandlers(c).Manifest).Methods("GET").Name("ManifestMods")
	api.HandleFunc("/manifest/shaders", handlers.NewShaderHandlers(c).Manifest).Methods("GET").Name("ManifestShaders")
}

func setupResourcePackRoutes(api *mux.Router, c *handlers.Container) {
	h := handlers.NewResourcePackHandlers(c)
	api.HandleFunc("/resourcepacks", h.List).Methods("GET").Name("ResourcePacks")
	api.HandleFunc("/resourcepacks", h.Add).Methods("POST").Name("ResourcePackAdd")
	api.HandleFunc("/resourcepacks/upload", h.Upload).Methods("POST").Name("ResourcePackUpload")
	api.HandleFunc("/resourcepacks/search", h.Search).Methods("GET").Name("ResourcePackSearch")
	api.HandleFunc("/resourcepacks/generate", h.Generate).Methods("POST").Name("ResourcePackGenerate")
	api.HandleFunc("/resourcepacks/generate/stream", h.GenerateStream).Methods("GET").Name("ResourcePackGenerateStream")
	api.HandleFunc("/resourcepacks/serve/{filename}", h.ServeGenerated).Methods("GET", "HEAD").Name("ResourcePackServe")
	api.HandleFunc("/resourcepacks/custom/{filename}", h.ServeCustom).Methods("GET", "HEAD").Name("ResourcePackCustom")
	api.HandleFunc("/resourcepacks/{id}", h.Remove).Methods("DELETE").Name("ResourcePackRemove")
	api.HandleFunc("/resourcepacks/{slug}", h.Project).Methods("GET").Name("ResourcePackProject")
}
