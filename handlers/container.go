package handlers

import (
	"context"

	"mcpanel/auth"
	"mcpanel/config"
	"mcpanel/container"
	"mcpanel/dockerlog"
	"mcpanel/history"
	"mcpanel/library"
	"mcpanel/modrinth"
	"mcpanel/pipeline"
	"mcpanel/rcon"
	"mcpanel/resourcepack"

	"go.uber.org/zap"
)

// ServerRuntime controls the game server container. *container.Client
// implements it.
type ServerRuntime interface {
	Inspect(ctx context.Context) (*container.State, error)
	Stats(ctx context.Context) (*container.Stats, error)
	Action(ctx context.Context, action string) error
	Tail(ctx context.Context, n int, timestamps bool) ([]string, error)
	StreamLines(ctx context.Context, opts container.LogOptions, fn func(dockerlog.Line) error) error
}

// Catalog looks projects up on Modrinth. *modrinth.Client implements it.
type Catalog interface {
	Search(ctx context.Context, q modrinth.SearchQuery) (*modrinth.SearchResult, error)
	Project(ctx context.Context, slug, gameVersion, loader string) (*modrinth.Project, error)
}

// InstallStreamer runs an installation. *pipeline.Installer implements it.
type InstallStreamer interface {
	Stream(ctx context.Context, req pipeline.InstallRequest) <-chan pipeline.Event
}

// GenerateStreamer runs a generation. *pipeline.Generator implements it.
type GenerateStreamer interface {
	Stream(ctx context.Context) <-chan pipeline.Event
}

// Container holds dependencies for handlers
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Sessions *auth.Manager
	Runtime  ServerRuntime
	RCON     rcon.Execer
	History  *history.Store
	Catalog  Catalog

	Mods        *library.Library
	Shaders     *library.Library
	Generated   *library.Library // pack served to game clients
	CustomPacks *library.Library // uploaded packs

	Selection *resourcepack.Store
	Installer InstallStreamer
	Generator GenerateStreamer
}

func (c *Container) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
