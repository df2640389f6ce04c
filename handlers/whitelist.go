package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"net/http"
	"os"

	"mcpanel/internal/errors"
	"mcpanel/internal/validation"
	"mcpanel/rcon"

	"go.uber.org/zap"
)

// WhitelistHandlers manages the server whitelist.
type WhitelistHandlers struct {
	container *Container
}

// NewWhitelistHandlers creates a new WhitelistHandlers instance
func NewWhitelistHandlers(container *Container) *WhitelistHandlers {
	return &WhitelistHandlers{container: container}
}

// WhitelistEntry mirrors an entry of whitelist.json.
type WhitelistEntry struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// List reads whitelist.json, falling back to RCON when the file is not
// reachable from the panel.
func (h *WhitelistHandlers) List(w http.ResponseWriter, r *http.Request) {
	logger := h.container.logger()

	data, err := os.ReadFile(h.container.Config.WhitelistPath())
	if err == nil {
		players := []WhitelistEntry{}
		if err := json.Unmarshal(data, &players); err != nil {
			errors.HandleHTTPError(w, logger, errors.NewFileSystemError("read_whitelist", err).WithMessage("Failed to get whitelist"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"players": players})
		return
	}
	if !stderrors.Is(err, fs.ErrNotExist) {
		logger.Warn("Failed to read whitelist file", zap.Error(err))
	}

	names, err := rcon.WhitelistList(r.Context(), h.container.RCON)
	if err != nil {
		errors.HandleHTTPError(w, logger, errors.NewRCONError("list_whitelist", err).WithMessage("Failed to get whitelist"))
		return
	}
	players := make([]WhitelistEntry, 0, len(names))
	for _, name := range names {
		players = append(players, WhitelistEntry{Name: name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"players": players})
}

type playerRequest struct {
	Player string `json:"player"`
}

// Add whitelists a player and reloads the list.
func (h *WhitelistHandlers) Add(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, "add_whitelist", "Failed to add player to whitelist", rcon.WhitelistAdd)
}

// Remove drops a player from the whitelist and reloads the list.
func (h *WhitelistHandlers) Remove(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, "remove_whitelist", "Failed to remove player from whitelist", rcon.WhitelistRemove)
}

type whitelistFunc func(ctx context.Context, e rcon.Execer, player string) (string, error)

func (h *WhitelistHandlers) change(w http.ResponseWriter, r *http.Request, op, failure string, fn whitelistFunc) {
	logger := h.container.logger()

	var req playerRequest
	if err := decodeBody(r, validation.SchemaPlayer, &req); err != nil {
		errors.HandleHTTPError(w, logger, errors.NewValidationError(op, err).WithMessage("Invalid player name"))
		return
	}

	response, err := fn(r.Context(), h.container.RCON, req.Player)
	if err == nil {
		_, err = rcon.WhitelistReload(r.Context(), h.container.RCON)
	}
	if err != nil {
		errors.HandleHTTPError(w, logger, errors.NewRCONError(op, err).WithMessage(failure).WithContext("player", req.Player))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": response,
	})
}
