package modrinth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// Version is the latest version compatible with the requested filters.
type Version struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Number       string   `json:"number"`
	GameVersions []string `json:"gameVersions"`
	Loaders      []string `json:"loaders,omitempty"`
}

// File is the primary download of a version.
type File struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	SHA1     string `json:"sha1"`
}

// Project is a resolved project ready to install.
type Project struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Icon         *string  `json:"icon"`
	Downloads    int64    `json:"downloads"`
	Categories   []string `json:"categories"`
	Version      Version  `json:"version"`
	File         File     `json:"file"`
	Dependencies []string `json:"dependencies"`
}

type apiProject struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	IconURL     *string  `json:"icon_url"`
	Downloads   int64    `json:"downloads"`
	Categories  []string `json:"categories"`
}

type apiVersion struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	VersionNumber string   `json:"version_number"`
	GameVersions  []string `json:"game_versions"`
	Loaders       []string `json:"loaders"`
	Files         []struct {
		URL      string `json:"url"`
		Filename string `json:"filename"`
		Primary  bool   `json:"primary"`
		Size     int64  `json:"size"`
		Hashes   struct {
			SHA1 string `json:"sha1"`
		} `json:"hashes"`
	} `json:"files"`
	Dependencies []struct {
		ProjectID      string `json:"project_id"`
		DependencyType string `json:"dependency_type"`
	} `json:"dependencies"`
}

func jsonList(v string) string {
	data, _ := json.Marshal([]string{v})
	return string(data)
}

// Project resolves slug to its newest version matching gameVersion and
// loader. An empty loader matches any loader.
func (c *Client) Project(ctx context.Context, slug, gameVersion, loader string) (*Project, error) {
	key := slug + "|" + gameVersion + "|" + loader
	if p, ok := c.cached(key); ok {
		return p, nil
	}

	var proj apiProject
	if err := c.get(ctx, "/project/"+url.PathEscape(slug), nil, &proj); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	params := url.Values{}
	if gameVersion != "" {
		params.Set("game_versions", jsonList(gameVersion))
	}
	if loader != "" {
		params.Set("loaders", jsonList(loader))
	}
	var versions []apiVersion
	if err := c.get(ctx, "/project/"+url.PathEscape(slug)+"/version", params, &versions); err != nil {
		return nil, err
	}
	if len(versions) == 0 || len(versions[0].Files) == 0 {
		return nil, ErrNoCompatibleVersion
	}

	latest := versions[0]
	primary := latest.Files[0]
	for _, f := range latest.Files {
		if f.Primary {
			primary = f
			break
		}
	}

	deps := []string{}
	for _, d := range latest.Dependencies {
		if d.DependencyType == "required" && d.ProjectID != "" {
			deps = append(deps, d.ProjectID)
		}
	}

	p := &Project{
		ID:          proj.Slug,
		Name:        proj.Title,
		Description: proj.Description,
		Icon:        proj.IconURL,
		Downloads:   proj.Downloads,
		Categories:  proj.Categories,
		Version: Version{
			ID:           latest.ID,
			Name:         latest.Name,
			Number:       latest.VersionNumber,
			GameVersions: latest.GameVersions,
			Loaders:      latest.Loaders,
		},
		File: File{
			URL:      primary.URL,
			Filename: primary.Filename,
			Size:     primary.Size,
			SHA1:     primary.Hashes.SHA1,
		},
		Dependencies: deps,
	}

	c.store(key, p)
	c.logger.Debug("Resolved Modrinth project", zap.String("slug", slug), zap.String("version", p.Version.Number))
	return p, nil
}

func (c *Client) cached(key string) (*Project, bool) {
	entry, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.at) > c.cfg.CacheTTL {
		c.cache.Remove(key)
		return nil, false
	}
	return entry.project, true
}

func (c *Client) store(key string, p *Project) {
	c.cache.Add(key, cacheEntry{project: p, at: c.now()})
}
