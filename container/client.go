// Package container controls the Minecraft server container through the
// Docker Engine API.
package container

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned when the configured container does not exist.
var ErrNotFound = errors.New("container not found")

// DefaultTimeout bounds every call except followed log streams.
const DefaultTimeout = 30 * time.Second

// APIError is a non-2xx answer from the engine.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("docker api: status %d", e.Code)
	}
	return fmt.Sprintf("docker api: status %d: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Code == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Config selects the engine endpoint and container.
type Config struct {
	Host       string // unix:///var/run/docker.sock, tcp://host:port or http(s)://host:port
	APIVersion string // e.g. v1.43; empty uses the engine default
	Name       string
	Timeout    time.Duration
}

// Client talks to one container.
type Client struct {
	http    *http.Client
	base    string
	name    string
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a client for cfg.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Name == "" {
		return nil, errors.New("container name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	var base string
	switch {
	case strings.HasPrefix(cfg.Host, "unix://"):
		socket := strings.TrimPrefix(cfg.Host, "unix://")
		dialer := &net.Dialer{Timeout: 5 * time.Second}
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socket)
		}
		base = "http://docker"
	case strings.HasPrefix(cfg.Host, "tcp://"):
		base = "http://" + strings.TrimPrefix(cfg.Host, "tcp://")
	case strings.HasPrefix(cfg.Host, "http://"), strings.HasPrefix(cfg.Host, "https://"):
		base = strings.TrimRight(cfg.Host, "/")
	default:
		return nil, fmt.Errorf("unsupported docker host %q", cfg.Host)
	}
	if cfg.APIVersion != "" {
		base += "/" + strings.Trim(cfg.APIVersion, "/")
	}

	return &Client{
		http:    &http.Client{Transport: transport},
		base:    base,
		name:    cfg.Name,
		timeout: cfg.Timeout,
		logger:  logger.With(zap.String("container", cfg.Name)),
	}, nil
}

// Name returns the container name.
func (c *Client) Name() string {
	return c.name
}

func (c *Client) endpoint(action string, query url.Values) string {
	u := c.base + "/containers/" + url.PathEscape(c.name) + action
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do sends a request and returns the response when the status is 2xx or
// listed in accept.
func (c *Client) do(ctx context.Context, method, target string, accept ...int) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("docker api: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	for _, code := range accept {
		if resp.StatusCode == code {
			return resp, nil
		}
	}
	defer resp.Body.Close()

	apiErr := &APIError{Code: resp.StatusCode}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err == nil {
		apiErr.Message = body.Message
	}
	return nil, apiErr
}

func (c *Client) getJSON(ctx context.Context, target string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, target)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("docker api: decode response: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, action string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodPost, c.endpoint(action, nil), http.StatusNotModified)
	if err != nil {
		c.logger.Warn("Container action failed", zap.String("action", action), zap.Error(err))
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	c.logger.Info("Container action", zap.String("action", strings.TrimPrefix(action, "/")), zap.Int("status", resp.StatusCode))
	return nil
}

// Start starts the container. Starting a running container succeeds.
func (c *Client) Start(ctx context.Context) error {
	return c.post(ctx, "/start")
}

// Stop stops the container. Stopping a stopped container succeeds.
func (c *Client) Stop(ctx context.Context) error {
	return c.post(ctx, "/stop")
}

// Restart restarts the container.
func (c *Client) Restart(ctx context.Context) error {
	return c.post(ctx, "/restart")
}

// Action runs one of start, stop or restart.
func (c *Client) Action(ctx context.Context, action string) error {
	switch action {
	case "start":
		return c.Start(ctx)
	case "stop":
		return c.Stop(ctx)
	case "restart":
		return c.Restart(ctx)
	default:
		return fmt.Errorf("unknown container action %q", action)
	}
}

// cancelOnClose releases a request context when the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
