// Package modrinth queries the Modrinth catalogue for mods, shader packs and
// resource packs.
package modrinth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

var (
	ErrNotFound            = errors.New("project not found")
	ErrNoCompatibleVersion = errors.New("no compatible version found")
)

const (
	DefaultBaseURL   = "https://api.modrinth.com/v2"
	DefaultCacheSize = 256
	DefaultCacheTTL  = 5 * time.Minute
	MaxLimit         = 100
)

// ProjectType is a Modrinth project_type facet value.
type ProjectType string

const (
	TypeMod          ProjectType = "mod"
	TypeShader       ProjectType = "shader"
	TypeResourcePack ProjectType = "resourcepack"
)

// APIError is a non-2xx answer from Modrinth.
type APIError struct {
	Code int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("modrinth api error: %d", e.Code)
}

// Config configures the client.
type Config struct {
	BaseURL   string
	UserAgent string
	CacheSize int
	CacheTTL  time.Duration
}

type cacheEntry struct {
	project *Project
	at      time.Time
}

// Client is a small Modrinth v2 API client. Project lookups are cached.
type Client struct {
	http   *http.Client
	cfg    Config
	logger *zap.Logger
	cache  *lru.Cache[string, cacheEntry]
	now    func() time.Time
}

// New creates a client. A nil httpClient gets a 15 second timeout.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, _ := lru.New[string, cacheEntry](cfg.CacheSize)
	return &Client{
		http:   httpClient,
		cfg:    cfg,
		logger: logger,
		cache:  cache,
		now:    time.Now,
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, v any) error {
	target := c.cfg.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("modrinth: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return &APIError{Code: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("modrinth: decode %s: %w", path, err)
	}
	return nil
}

// SearchQuery filters a catalogue search. Empty GameVersion or Loader
// are not used as facets.
type SearchQuery struct {
	Query       string
	Type        ProjectType
	GameVersion string
	Loader      string
	Offset      int
	Limit       int
}

// Hit is one search result.
type Hit struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Icon        *string  `json:"icon"`
	Downloads   int64    `json:"downloads"`
	Categories  []string `json:"categories"`
}

// SearchResult is a page of hits.
type SearchResult struct {
	Hits   []Hit
	Total  int
	Offset int
	Limit  int
}

type apiHit struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	IconURL     *string  `json:"icon_url"`
	Downloads   int64    `json:"downloads"`
	Categories  []string `json:"categories"`
}

// Facets builds the facets parameter for q.
func (q SearchQuery) Facets() string {
	facets := [][]string{{"project_type:" + string(q.Type)}}
	if q.GameVersion != "" {
		facets = append(facets, []string{"versions:" + q.GameVersion})
	}
	if q.Loader != "" {
		facets = append(facets, []string{"categories:" + q.Loader})
	}
	data, _ := json.Marshal(facets)
	return string(data)
}

// Search runs a catalogue search ordered by downloads.
func (c *Client) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	if q.Type == "" {
		q.Type = TypeMod
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	params := url.Values{
		"query":  {q.Query},
		"facets": {q.Facets()},
		"offset": {strconv.Itoa(q.Offset)},
		"limit":  {strconv.Itoa(q.Limit)},
		"index":  {"downloads"},
	}

	var raw struct {
		Hits      []apiHit `json:"hits"`
		TotalHits int      `json:"total_hits"`
		Offset    int      `json:"offset"`
		Limit     int      `json:"limit"`
	}
	if err := c.get(ctx, "/search", params, &raw); err != nil {
		c.logger.Warn("Modrinth search failed", zap.String("query", q.Query), zap.Error(err))
		return nil, err
	}

	res := &SearchResult{Hits: make([]Hit, 0, len(raw.Hits)), Total: raw.TotalHits, Offset: raw.Offset, Limit: raw.Limit}
	for _, h := range raw.Hits {
		res.Hits = append(res.Hits, Hit{
			ID:          h.Slug,
			Name:        h.Title,
			Description: h.Description,
			Icon:        h.IconURL,
			Downloads:   h.Downloads,
			Categories:  h.Categories,
		})
	}
	return res, nil
}
