package app

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"mcpanel/auth"
	"mcpanel/config"
	"mcpanel/container"
	"mcpanel/db"
	"mcpanel/download"
	"mcpanel/handlers"
	"mcpanel/history"
	"mcpanel/internal/logging"
	"mcpanel/library"
	"mcpanel/metrics"
	"mcpanel/mirror"
	"mcpanel/modrinth"
	"mcpanel/pipeline"
	"mcpanel/publish"
	"mcpanel/rcon"
	"mcpanel/resourcepack"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Database  db.Database
	Metrics   *metrics.Metrics
	Sessions  *auth.Manager
	History   *history.Store
	Selection *resourcepack.Store
	Runtime   *container.Client
	RCON      *rcon.Session
	Catalog   *modrinth.Client
	Publisher pipeline.Publisher
	Mirror    *mirror.S3

	Mods        *library.Library
	Shaders     *library.Library
	Generated   *library.Library
	CustomPacks *library.Library

	Installer *pipeline.Installer
	Generator *pipeline.Generator

	closers []func() error
}

// NewContainer creates and wires up all dependencies. logger may be nil, in
// which case one is built from cfg.Log.
func NewContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		l, err := logging.New(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l
	}

	c := &Container{Config: cfg, Logger: logger}
	if cfg.Metrics.Enabled {
		c.Metrics = metrics.NewMetrics()
	}

	database, err := db.NewBoltDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c.Database = database
	c.closers = append(c.closers, database.Close)

	c.Sessions = auth.NewManager(database, database.Bucket(db.SessionsBucket), auth.Credentials{
		Username: cfg.Auth.Username,
		Password: cfg.Auth.Password,
	}, cfg.Auth.SessionTTL.Duration, logger.Named("auth"))
	if cfg.Auth.Password == "" {
		logger.Warn("No admin password configured; logins are disabled")
	}
	c.History = history.NewStore(database, database.Bucket(db.HistoryBucket), logger.Named("history"))
	c.Selection = resourcepack.NewStore(database, database.Bucket(db.ResourcePacksBucket))

	runtime, err := container.New(container.Config{
		Host:       cfg.Docker.Host,
		APIVersion: cfg.Docker.APIVersion,
		Name:       cfg.Docker.ContainerName,
		Timeout:    cfg.Docker.Timeout.Duration,
	}, logger.Named("container"))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create container client: %w", err)
	}
	c.Runtime = runtime

	c.RCON = rcon.NewSession(rcon.Config{
		Addr:     net.JoinHostPort(cfg.RCON.Host, strconv.Itoa(cfg.RCON.Port)),
		Password: cfg.RCON.Password,
		Timeout:  cfg.RCON.Timeout.Duration,
	}, logger.Named("rcon"), c.Metrics)
	c.closers = append(c.closers, c.RCON.Close)

	c.Catalog = modrinth.New(modrinth.Config{
		BaseURL:   cfg.Modrinth.BaseURL,
		UserAgent: cfg.Modrinth.UserAgent,
		CacheSize: cfg.Modrinth.CacheSize,
		CacheTTL:  cfg.Modrinth.CacheTTL.Duration,
	}, nil, logger.Named("modrinth"))

	if err := c.initEvents(ctx); err != nil {
		c.Close()
		return nil, err
	}

	c.initLibraries()
	c.initPipelines()
	return c, nil
}

// initEvents connects the optional Redis publisher and S3 mirror.
func (c *Container) initEvents(ctx context.Context) error {
	cfg := c.Config
	c.Publisher = publish.Nop{}
	if cfg.Events.RedisURL != "" {
		p, err := publish.New(publish.Config{URL: cfg.Events.RedisURL, Prefix: cfg.Events.Prefix}, c.Logger.Named("publish"))
		if err != nil {
			return fmt.Errorf("failed to create event publisher: %w", err)
		}
		if err := p.Ping(ctx); err != nil {
			c.Logger.Warn("Event publisher unreachable; events will be dropped until it recovers", zap.Error(err))
		}
		c.Publisher = p
		c.closers = append(c.closers, p.Close)
	}

	if cfg.Mirror.Bucket != "" {
		m, err := mirror.New(ctx, mirror.Config{
			Bucket:       cfg.Mirror.Bucket,
			Prefix:       cfg.Mirror.Prefix,
			Region:       cfg.Mirror.Region,
			Endpoint:     cfg.Mirror.Endpoint,
			UsePathStyle: cfg.Mirror.UsePathStyle,
		}, c.Logger.Named("mirror"))
		if err != nil {
			return fmt.Errorf("failed to create S3 mirror: %w", err)
		}
		c.Mirror = m
	}
	return nil
}

func (c *Container) initLibraries() {
	cfg := c.Config
	logger := c.Logger.Named("library")
	c.Mods = library.New(library.Config{
		Dir:         cfg.ModsDir(),
		Ext:         ".jar",
		Key:         "mods",
		ServePrefix: "/api/mods/serve/",
		ContentType: "application/java-archive",
	}, logger)
	c.Shaders = library.New(library.Config{
		Dir:         cfg.ShadersDir(),
		Ext:         ".zip",
		Key:         "shaders",
		ServePrefix: "/api/shaders/serve/",
		ContentType: "application/zip",
	}, logger)
	c.Generated = library.New(library.Config{
		Dir:         cfg.ResourcePacksDir(),
		Ext:         ".zip",
		Key:         "resourcepacks",
		ServePrefix: "/api/resourcepacks/serve/",
		ContentType: "application/zip",
	}, logger)
	c.CustomPacks = library.New(library.Config{
		Dir:         cfg.CustomPacksDir(),
		Ext:         ".zip",
		Key:         "custom",
		ServePrefix: "/api/resourcepacks/custom/",
		ContentType: "application/zip",
	}, logger)
}

func (c *Container) initPipelines() {
	cfg := c.Config
	fetcher := download.NewDownloader(nil, cfg.Modrinth.UserAgent, c.Logger.Named("download"))
	opts := pipeline.Options{
		Logger:    c.Logger.Named("pipeline"),
		Metrics:   c.Metrics,
		Publisher: c.Publisher,
	}

	c.Installer = pipeline.NewInstaller(map[pipeline.ItemKind]string{
		pipeline.KindMod:    cfg.ModsDir(),
		pipeline.KindShader: cfg.ShadersDir(),
	}, fetcher, opts)

	// A nil *S3 must not reach the generator as a non-nil interface.
	var m pipeline.Mirror
	if c.Mirror != nil {
		m = c.Mirror
	}
	c.Generator = pipeline.NewGenerator(pipeline.GeneratorConfig{
		PacksDir:       cfg.ResourcePacksDir(),
		CustomDir:      cfg.CustomPacksDir(),
		PropertiesPath: cfg.PropertiesPath(),
		PublicURL:      cfg.HTTP.PublicURL,
	}, c.Selection, fetcher, m, opts)
}

// Handlers returns the dependency set used by the HTTP handlers.
func (c *Container) Handlers() *handlers.Container {
	return &handlers.Container{
		Config:      c.Config,
		Logger:      c.Logger.Named("http"),
		Sessions:    c.Sessions,
		Runtime:     c.Runtime,
		RCON:        c.RCON,
		History:     c.History,
		Catalog:     c.Catalog,
		Mods:        c.Mods,
		Shaders:     c.Shaders,
		Generated:   c.Generated,
		CustomPacks: c.CustomPacks,
		Selection:   c.Selection,
		Installer:   c.Installer,
		Generator:   c.Generator,
	}
}

// Close closes all resources held by the container, last opened first.
func (c *Container) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	return firstErr
}
