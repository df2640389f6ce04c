package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"mcpanel/config"
	"mcpanel/internal/middleware"
	"mcpanel/routes"

	"go.uber.org/zap"
)

// Version is stamped at build time with -ldflags "-X mcpanel/app.Version=...".
var Version = "dev"

const (
	shutdownTimeout = 30 * time.Second
	purgeInterval   = 15 * time.Minute
)

// Application owns the HTTP server and the background jobs around it.
type Application struct {
	container  *Container
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewApplication creates a new application instance from cfg.
func NewApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	container, err := NewContainer(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	var metricsHandler http.Handler
	if container.Metrics != nil {
		metricsHandler = container.Metrics.Handler()
	}
	router := routes.Setup(
		container.Handlers(),
		middleware.DefaultMiddleware(container.Logger.Named("http"), container.Metrics),
		metricsHandler,
	)

	return &Application{
		container: container,
		httpServer: &http.Server{
			Addr:           ":" + cfg.HTTP.Port,
			Handler:        router,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
		stop: make(chan struct{}),
	}, nil
}

// Start binds the listener and serves in the background.
func (a *Application) Start() error {
	logger := a.container.Logger

	ln, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.httpServer.Addr, err)
	}
	a.mu.Lock()
	a.listener = ln
	a.mu.Unlock()

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		logger.Info("HTTP server started", zap.String("addr", ln.Addr().String()), zap.String("version", Version))
		if err := a.httpServer.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}()
	go func() {
		defer a.wg.Done()
		a.purgeSessions()
	}()

	return nil
}

// purgeSessions drops expired sessions until Stop is called.
func (a *Application) purgeSessions() {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			n, err := a.container.Sessions.Purge(context.Background())
			if err != nil {
				a.container.Logger.Warn("Session purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				a.container.Logger.Debug("Purged expired sessions", zap.Int("count", n))
			}
		}
	}
}

// Addr returns the bound address once Start has run.
func (a *Application) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Handler returns the fully wired router.
func (a *Application) Handler() http.Handler {
	return a.httpServer.Handler
}

// Container returns the application's dependencies.
func (a *Application) Container() *Container {
	return a.container
}

// Stop drains the HTTP server and releases every resource.
func (a *Application) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger := a.container.Logger
	if a.Addr() != "" {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down HTTP server", zap.Error(err))
		}
	}
	close(a.stop)
	a.wg.Wait()

	if err := a.container.Close(); err != nil {
		return fmt.Errorf("failed to close container: %w", err)
	}
	_ = logger.Sync()
	return nil
}

// Run starts the application and blocks until ctx is done or SIGINT/SIGTERM
// arrives.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		a.container.Close()
		return fmt.Errorf("failed to start application: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.container.Logger.Info("Application started. Press Ctrl+C to stop.")
	<-ctx.Done()
	a.container.Logger.Info("Shutting down application...")

	if err := a.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}
	a.container.Logger.Info("Application stopped")
	return nil
}
