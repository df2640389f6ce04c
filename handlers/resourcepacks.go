package handlers

import (
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"mcpanel/internal/errors"
	"mcpanel/internal/validation"
	"mcpanel/pipeline"
	"mcpanel/resourcepack"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ResourcePackHandlers manages the pack selection and the generated pack.
type ResourcePackHandlers struct {
	catalogHandler
}

// NewResourcePackHandlers creates a new ResourcePackHandlers instance
func NewResourcePackHandlers(container *Container) *ResourcePackHandlers {
	return &ResourcePackHandlers{
		catalogHandler: catalogHandler{container: container, kind: resourcePackCatalog},
	}
}

func selectionError(op string, err error) error {
	switch {
	case stderrors.Is(err, resourcepack.ErrPackExists):
		return errors.NewConflictError(op, "Resource pack already in list")
	case stderrors.Is(err, resourcepack.ErrCustomExists):
		return errors.NewConflictError(op, "This resource pack already exists")
	case stderrors.Is(err, resourcepack.ErrPackNotFound):
		return errors.NewNotFoundError(op, "Resource pack not found")
	default:
		return errors.NewConfigIOError(op, err).WithMessage("Failed to update resource packs")
	}
}

// List returns the selection and the generated pack.
func (h *ResourcePackHandlers) List(w http.ResponseWriter, r *http.Request) {
	sel, err := h.container.Selection.Get(r.Context())
	if err != nil {
		errors.HandleHTTPError(w, h.container.logger(),
			errors.NewDatabaseError("list_resourcepacks", err).WithMessage("Failed to get resource packs"))
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

// Add appends a catalogue pack to the selection.
func (h *ResourcePackHandlers) Add(w http.ResponseWriter, r *http.Request) {
	var pack resourcepack.Pack
	if err := decodeBody(r, validation.SchemaAddPack, &pack); err != nil {
		errors.HandleHTTPError(w, h.container.logger(), err)
		return
	}
	pack.Custom = false
	pack.AddedAt = time.Time{}

	added, err := h.container.Selection.Add(r.Context(), pack)
	if err != nil {
		errors.HandleHTTPError(w, h.container.logger(), selectionError("add_resourcepack", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "pack": added})
}

// Remove drops {id} from the selection. The archive of an uploaded pack is
// deleted as well.
func (h *ResourcePackHandlers) Remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.container.logger()
	id := mux.Vars(r)["id"]

	packs, err := h.container.Selection.List(ctx)
	if err != nil {
		errors.HandleHTTPError(w, logger, errors.NewDatabaseError("remove_resourcepack", err))
		return
	}
	var removed *resourcepack.Pack
	for i := range packs {
		if packs[i].ID == id {
			removed = &packs[i]
			break
		}
	}

	if err := h.container.Selection.Remove(ctx, id); err != nil {
		errors.HandleHTTPError(w, logger, selectionError("remove_resourcepack", err))
		return
	}
	if removed != nil && removed.Custom {
		if err := h.container.CustomPacks.Delete(removed.Filename); err != nil {
			logger.Warn("Failed to delete uploaded pack", zap.String("filename", removed.Filename), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Upload stores a custom pack (multipart field "file") and selects it.
func (h *ResourcePackHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	logger := h.container.logger()

	file, header, err := r.FormFile("file")
	if err != nil {
		errors.HandleHTTPError(w, logger, errors.NewValidationError("upload_resourcepack", err).WithMessage("No file provided"))
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".zip") {
		errors.HandleHTTPError(w, logger, errors.NewValidationError("upload_resourcepack", fmt.Errorf("bad extension %q", name)).
			WithMessage("Invalid file type. Only .zip files are allowed"))
		return
	}
	if err := validation.ValidateFilename(name); err != nil {
		errors.HandleHTTPError(w, logger, errors.NewValidationError("upload_resourcepack", err).WithMessage(validationMessage(err)))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadSize+1))
	if err != nil {
		errors.HandleHTTPError(w, logger, errors.NewValidationError("upload_resourcepack", err).WithMessage("Failed to read upload"))
		return
	}
	if len(data) > MaxUploadSize {
		errors.HandleHTTPError(w, logger, errors.NewValidationError("upload_resourcepack", fmt.Errorf("%d bytes", len(data))).
			WithMessage("File too large"))
		return
	}

	pack, err := h.container.Selection.AddCustom(r.Context(), h.container.CustomPacks.Dir(), name, data)
	if err != nil {
		errors.HandleHTTPError(w, logger, selectionError("upload_resourcepack", err))
		return
	}
	logger.Info("Custom resource pack uploaded", zap.String("filename", name), zap.Int("size", len(data)))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "pack": pack})
}

// GenerateStream builds the server pack and reports progress as
// server-sent events.
func (h *ResourcePackHandlers) GenerateStream(w http.ResponseWriter, r *http.Request) {
	pumpEvents(newSSEWriter(w), h.container.Generator.Stream(r.Context()), h.container.logger())
}

// Generate builds the server pack and answers with the outcome once done.
func (h *ResourcePackHandlers) Generate(w http.ResponseWriter, r *http.Request) {
	// The run downloads and merges every pack before the first byte is written.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	var last pipeline.Event
	for ev := range h.container.Generator.Stream(r.Context()) {
		last = ev
	}

	switch ev := last.(type) {
	case pipeline.GenerateCompleteEvent:
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": ev.Message,
			"pack":    ev.Pack,
		})
	case pipeline.ErrorEvent:
		if ev.Message == pipeline.ErrGenerationInProgress.Error() {
			errors.HandleHTTPError(w, h.container.logger(), errors.NewConflictError("generate_resourcepack", "Generation already in progress"))
			return
		}
		errors.HandleHTTPError(w, h.container.logger(),
			errors.NewConfigIOError("generate_resourcepack", stderrors.New(ev.Message)).WithMessage(ev.Message))
	default:
		// Client went away before the run finished.
		h.container.logger().Debug("Generation ended without result")
	}
}

// ServeGenerated sends the generated pack to game clients. The name stays
// the same across generations, so clients revalidate with the ETag.
func (h *ResourcePackHandlers) ServeGenerated(w http.ResponseWriter, r *http.Request) {
	serveLibraryFile(w, r, h.container.logger(), h.container.Generated, "no-cache")
}

// ServeCustom sends an uploaded pack; the generator fetches these too.
func (h *ResourcePackHandlers) ServeCustom(w http.ResponseWriter, r *http.Request) {
	serveLibraryFile(w, r, h.container.logger(), h.container.CustomPacks, "public, max-age=3600")
}
