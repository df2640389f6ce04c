package handlers

import (
	stderrors "errors"
	"net/http"

	"mcpanel/internal/errors"
	"mcpanel/internal/validation"
	"mcpanel/modrinth"

	"github.com/gorilla/mux"
)

const defaultSearchLimit = 20

// catalogKind describes how one project type is looked up on Modrinth.
type catalogKind struct {
	Type       modrinth.ProjectType
	Label      string // "Mod", "Shader", "Resource pack"
	ResultKey  string // list key of search answers
	UseVersion bool
	UseLoader  bool
}

var (
	modCatalog          = catalogKind{Type: modrinth.TypeMod, Label: "Mod", ResultKey: "mods", UseVersion: true, UseLoader: true}
	shaderCatalog       = catalogKind{Type: modrinth.TypeShader, Label: "Shader", ResultKey: "shaders"}
	resourcePackCatalog = catalogKind{Type: modrinth.TypeResourcePack, Label: "Resource pack", ResultKey: "packs", UseVersion: true}
)

type catalogHandler struct {
	container *Container
	kind      catalogKind
}

// filters returns the game version and loader for a lookup. Query
// parameters override the configured server defaults.
func (h *catalogHandler) filters(r *http.Request) (version, loader string) {
	q := r.URL.Query()
	if h.kind.UseVersion {
		version = q.Get("version")
		if version == "" {
			version = h.container.Config.Minecraft.Version
		}
	}
	if h.kind.UseLoader {
		loader = q.Get("loader")
		if loader == "" {
			loader = h.container.Config.Minecraft.Loader
		}
	}
	return version, loader
}

// Search queries the catalogue: ?q=&offset=&limit=&version=&loader=.
func (h *catalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	version, loader := h.filters(r)
	query := modrinth.SearchQuery{
		Query:       r.URL.Query().Get("q"),
		Type:        h.kind.Type,
		GameVersion: version,
		Loader:      loader,
		Offset:      queryInt(r, "offset", 0),
		Limit:       min(queryInt(r, "limit", defaultSearchLimit), modrinth.MaxLimit),
	}

	result, err := h.container.Catalog.Search(r.Context(), query)
	if err != nil {
		errors.HandleHTTPError(w, h.container.logger(),
			errors.NewNetworkError("catalog_search", err).WithMessage("Failed to search "+h.kind.ResultKey))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		h.kind.ResultKey: result.Hits,
		"total":          result.Total,
		"offset":         result.Offset,
		"limit":          result.Limit,
	})
}

// Project resolves {slug} to its latest compatible version and file.
func (h *catalogHandler) Project(w http.ResponseWriter, r *http.Request) {
	logger := h.container.logger()
	slug := mux.Vars(r)["slug"]
	if err := validation.ValidateSlug(slug); err != nil {
		errors.HandleHTTPError(w, logger, errors.NewValidationError("catalog_project", err).WithMessage(validationMessage(err)))
		return
	}

	version, loader := h.filters(r)
	project, err := h.container.Catalog.Project(r.Context(), slug, version, loader)
	switch {
	case stderrors.Is(err, modrinth.ErrNotFound):
		errors.HandleHTTPError(w, logger, errors.NewNotFoundError("catalog_project", h.kind.Label+" not found"))
	case stderrors.Is(err, modrinth.ErrNoCompatibleVersion):
		errors.HandleHTTPError(w, logger,
			errors.NewNotFoundError("catalog_project", "No compatible version found for this loader/game version"))
	case err != nil:
		errors.HandleHTTPError(w, logger,
			errors.NewNetworkError("catalog_project", err).WithMessage("Failed to fetch details").WithContext("slug", slug))
	default:
		writeJSON(w, http.StatusOK, project)
	}
}
