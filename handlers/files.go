package handlers

import (
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"mcpanel/internal/errors"
	"mcpanel/internal/validation"
	"mcpanel/library"
	"mcpanel/pipeline"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// MaxUploadSize bounds files uploaded through the panel.
const MaxUploadSize = 100 << 20

// LibraryHandlers manages installed mods or shader packs.
type LibraryHandlers struct {
	catalogHandler
	lib  *library.Library
	item pipeline.ItemKind
}

// NewModHandlers serves the mods directory.
func NewModHandlers(container *Container) *LibraryHandlers {
	return &LibraryHandlers{
		catalogHandler: catalogHandler{container: container, kind: modCatalog},
		lib:            container.Mods,
		item:           pipeline.KindMod,
	}
}

// NewShaderHandlers serves the shaderpacks directory.
func NewShaderHandlers(container *Container) *LibraryHandlers {
	return &LibraryHandlers{
		catalogHandler: catalogHandler{container: container, kind: shaderCatalog},
		lib:            container.Shaders,
		item:           pipeline.KindShader,
	}
}

// List returns the installed files.
func (h *LibraryHandlers) List(w http.ResponseWriter, r *http.Request) {
	files, err := h.lib.List(r.Context())
	if err != nil {
		errors.HandleHTTPError(w, h.container.logger(), libraryError("list_"+h.kind.ResultKey, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{h.kind.ResultKey: files})
}

// Delete removes the file named in the body {"filename": ...}.
func (h *LibraryHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename string `json:"filename"`
	}
	if err := decodeBody(r, validation.SchemaFilename, &req); err != nil {
		errors.HandleHTTPError(w, h.container.logger(), err)
		return
	}
	name := filepath.Base(req.Filename)
	if err := h.lib.Delete(name); err != nil {
		errors.HandleHTTPError(w, h.container.logger(), libraryError("delete_"+h.kind.ResultKey, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": name + " removed",
	})
}

// Upload stores the multipart field "file".
func (h *LibraryHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	logger := h.container.logger()

	file, header, err := r.FormFile("file")
	if err != nil {
		errors.HandleHTTPError(w, logger, errors.NewValidationError("upload", err).WithMessage("No file provided"))
		return
	}
	defer file.Close()

	saved, err := h.lib.Save(filepath.Base(header.Filename), file, MaxUploadSize)
	if err != nil {
		appErr := libraryError("upload", err)
		if stderrors.Is(err, library.ErrInvalidType) {
			appErr.WithMessage(fmt.Sprintf("Invalid file type. Only %s files are allowed", h.lib.Ext()))
		}
		errors.HandleHTTPError(w, logger, appErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"filename": saved.Filename,
		"size":     saved.Size,
	})
}

// Serve sends {filename} to game clients and launchers.
func (h *LibraryHandlers) Serve(w http.ResponseWriter, r *http.Request) {
	serveLibraryFile(w, r, h.container.logger(), h.lib, "public, max-age=3600")
}

// Manifest lists every file with its SHA-256 for launchers.
func (h *LibraryHandlers) Manifest(w http.ResponseWriter, r *http.Request) {
	manifest, err := h.lib.Manifest(r.Context(), h.container.Config.Minecraft.Version)
	if err != nil {
		errors.HandleHTTPError(w, h.container.logger(), libraryError("manifest", err).WithMessage("Failed to generate manifest"))
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, manifest)
}

// InstallStream downloads the posted items and reports progress as
// server-sent events.
func (h *LibraryHandlers) InstallStream(w http.ResponseWriter, r *http.Request) {
	logger := h.container.logger()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		errors.HandleHTTPError(w, logger, errors.NewValidationError("install", err).WithMessage("Invalid request body"))
		return
	}
	req, err := pipeline.ParseInstallRequest(h.item, body)
	if err != nil {
		errors.HandleHTTPError(w, logger, errors.NewValidationError("install", err).WithMessage(validationMessage(err)))
		return
	}
	if len(req.Items) == 0 {
		errors.HandleHTTPError(w, logger,
			errors.NewValidationError("install", fmt.Errorf("empty request")).WithMessage("No "+h.kind.ResultKey+" to install"))
		return
	}

	logger.Info("Install started", zap.String("kind", string(h.item)), zap.Int("items", len(req.Items)))
	pumpEvents(newSSEWriter(w), h.container.Installer.Stream(r.Context(), req), logger)
}

// serveLibraryFile streams a library file with an ETag so clients can
// revalidate cheaply.
func serveLibraryFile(w http.ResponseWriter, r *http.Request, logger *zap.Logger, lib *library.Library, cacheControl string) {
	name := mux.Vars(r)["filename"]
	f, info, err := lib.Open(name)
	if err != nil {
		errors.HandleHTTPError(w, logger, libraryError("serve_file", err))
		return
	}
	defer f.Close()

	if tag, err := lib.ETag(name); err == nil {
		w.Header().Set("ETag", tag)
	} else {
		logger.Warn("Failed to compute ETag", zap.String("filename", name), zap.Error(err))
	}
	w.Header().Set("Content-Type", lib.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Cache-Control", cacheControl)
	http.ServeContent(w, r, name, info.ModTime(), f)
}
