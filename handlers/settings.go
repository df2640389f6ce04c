package handlers

import (
	"bytes"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"image/png"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"

	"mcpanel/internal/errors"
	"mcpanel/internal/validation"
	"mcpanel/properties"

	"go.uber.org/zap"
)

const (
	iconSize    = 64
	maxIconSize = 1 << 20
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// SettingsHandlers edits server.properties and the server icon.
type SettingsHandlers struct {
	container *Container
}

// NewSettingsHandlers creates a new SettingsHandlers instance
func NewSettingsHandlers(container *Container) *SettingsHandlers {
	return &SettingsHandlers{container: container}
}

// Get lists every property with its known type and category.
func (h *SettingsHandlers) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := properties.Load(h.container.Config.PropertiesPath())
	if err != nil {
		errors.HandleHTTPError(w, h.container.logger(),
			errors.NewConfigIOError("read_properties", err).WithMessage("Failed to read server properties"))
		return
	}

	settings := properties.Describe(doc)
	if settings == nil {
		settings = []properties.Setting{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": settings})
}

// propertyValue renders a JSON scalar the way server.properties spells it.
func propertyValue(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported value %v", v)
	}
}

// Put writes the submitted properties. Lines not named in the request are
// kept as they are.
func (h *SettingsHandlers) Put(w http.ResponseWriter, r *http.Request) {
	logger := h.container.logger()

	var req struct {
		Properties map[string]any `json:"properties"`
	}
	if err := decodeBody(r, validation.SchemaSettings, &req); err != nil {
		errors.HandleHTTPError(w, logger, err)
		return
	}

	updates := make(map[string]string, len(req.Properties))
	for key, raw := range req.Properties {
		value, err := propertyValue(raw)
		if err == nil {
			err = validation.ValidatePropertyKey(key)
		}
		if err == nil {
			err = validation.ValidatePropertyValue(key, value)
		}
		if err != nil {
			errors.HandleHTTPError(w, logger, errors.NewValidationError("update_properties", err).WithMessage(validationMessage(err)))
			return
		}
		updates[key] = value
	}

	if err := properties.Update(h.container.Config.PropertiesPath(), updates); err != nil {
		errors.HandleHTTPError(w, logger,
			errors.NewConfigIOError("update_properties", err).WithMessage("Failed to update server properties"))
		return
	}

	logger.Info("Server properties updated", zap.Int("count", len(updates)))
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"message":         "Settings saved. Restart the server for changes to take effect.",
		"requiresRestart": true,
	})
}

func iconDataURI(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

// GetIcon returns the server icon as a data URI.
func (h *SettingsHandlers) GetIcon(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(h.container.Config.IconPath())
	if stderrors.Is(err, fs.ErrNotExist) {
		writeJSON(w, http.StatusOK, map[string]any{"exists": false, "icon": nil})
		return
	}
	if err != nil {
		errors.HandleHTTPError(w, h.container.logger(),
			errors.NewFileSystemError("read_icon", err).WithMessage("Failed to read server icon"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exists": true, "icon": iconDataURI(data)})
}

// checkIcon accepts only 64x64 PNG images.
func checkIcon(data []byte) error {
	if !bytes.HasPrefix(data, pngSignature) {
		return validation.NewValidationError("icon", "File must be a PNG image")
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return validation.NewValidationError("icon", "File must be a PNG image")
	}
	if cfg.Width != iconSize || cfg.Height != iconSize {
		return validation.NewValidationError("icon",
			fmt.Sprintf("Image must be %dx%d pixels. Current: %dx%d", iconSize, iconSize, cfg.Width, cfg.Height))
	}
	return nil
}

// UploadIcon replaces the server icon with the multipart field "icon".
func (h *SettingsHandlers) UploadIcon(w http.ResponseWriter, r *http.Request) {
	logger := h.container.logger()

	file, _, err := r.FormFile("icon")
	if err != nil {
		errors.HandleHTTPError(w, logger, errors.NewValidationError("upload_icon", err).WithMessage("No file provided"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxIconSize+1))
	if err != nil {
		errors.HandleHTTPError(w, logger, errors.NewValidationError("upload_icon", err).WithMessage("Failed to read upload"))
		return
	}
	if len(data) > maxIconSize {
		errors.HandleHTTPError(w, logger, errors.NewValidationError("upload_icon", stderrors.New("icon too large")).WithMessage("File too large"))
		return
	}
	if err := checkIcon(data); err != nil {
		errors.HandleHTTPError(w, logger, errors.NewValidationError("upload_icon", err).WithMessage(validationMessage(err)))
		return
	}

	if err := properties.WriteFile(h.container.Config.IconPath(), data); err != nil {
		errors.HandleHTTPError(w, logger,
			errors.NewFileSystemError("upload_icon", err).WithMessage("Failed to upload server icon"))
		return
	}

	logger.Info("Server icon replaced")
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Icon uploaded successfully. Restart the server to apply.",
		"icon":    iconDataURI(data),
	})
}

// DeleteIcon removes the server icon. A missing icon is not an error.
func (h *SettingsHandlers) DeleteIcon(w http.ResponseWriter, r *http.Request) {
	err := os.Remove(h.container.Config.IconPath())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Icon removed successfully"})
	case stderrors.Is(err, fs.ErrNotExist):
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "No icon to remove"})
	default:
		errors.HandleHTTPError(w, h.container.logger(),
			errors.NewFileSystemError("delete_icon", err).WithMessage("Failed to remove server icon"))
	}
}
