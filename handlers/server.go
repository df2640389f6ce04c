package handlers

import (
	stderrors "errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"mcpanel/auth"
	"mcpanel/container"
	"mcpanel/history"
	"mcpanel/internal/errors"
	"mcpanel/internal/validation"
	"mcpanel/rcon"

	"go.uber.org/zap"
)

// ServerHandlers handles status, control and console commands.
type ServerHandlers struct {
	container *Container
	now       func() time.Time
}

// NewServerHandlers creates a new ServerHandlers instance
func NewServerHandlers(container *Container) *ServerHandlers {
	return &ServerHandlers{container: container, now: time.Now}
}

// PlayersStatus is the player part of a status answer.
type PlayersStatus struct {
	Online int      `json:"online"`
	Max    int      `json:"max"`
	List   []string `json:"list"`
}

// MemoryStatus is the memory part of a status answer.
type MemoryStatus struct {
	Used           uint64  `json:"used"`
	Total          uint64  `json:"total"`
	Percent        float64 `json:"percent"`
	UsedFormatted  string  `json:"usedFormatted"`
	TotalFormatted string  `json:"totalFormatted"`
}

// CPUStatus is the CPU part of a status answer.
type CPUStatus struct {
	Percent float64 `json:"percent"`
}

// ServerStatus aggregates container state, resource usage and players.
type ServerStatus struct {
	Online  bool          `json:"online"`
	Status  string        `json:"status"`
	Health  string        `json:"health,omitempty"`
	Uptime  string        `json:"uptime"`
	Players PlayersStatus `json:"players"`
	Memory  MemoryStatus  `json:"memory"`
	CPU     CPUStatus     `json:"cpu"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Status reports the server state. Stats and players are only queried for
// a running container; failures there leave zero values.
func (h *ServerHandlers) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.container.logger()

	state, err := h.container.Runtime.Inspect(ctx)
	if err != nil {
		logger.Warn("Failed to inspect container", zap.Error(err))
		state = container.NotFoundState()
	}

	players := rcon.PlayerList{Max: 20, Players: []string{}}
	stats := &container.Stats{}
	if state.Running {
		if s, err := h.container.Runtime.Stats(ctx); err != nil {
			logger.Warn("Failed to get container stats", zap.Error(err))
		} else {
			stats = s
		}
		if p, err := rcon.ListPlayers(ctx, h.container.RCON); err != nil {
			logger.Warn("Failed to get players via RCON", zap.Error(err))
		} else {
			players = p
		}
	}

	writeJSON(w, http.StatusOK, ServerStatus{
		Online: state.Running,
		Status: state.Status,
		Health: state.Health,
		Uptime: container.FormatUptime(state.StartedAt, h.now()),
		Players: PlayersStatus{
			Online: players.Online,
			Max:    players.Max,
			List:   players.Players,
		},
		Memory: MemoryStatus{
			Used:           stats.MemoryUsage,
			Total:          stats.MemoryLimit,
			Percent:        round2(stats.MemoryPercent),
			UsedFormatted:  container.FormatBytes(stats.MemoryUsage),
			TotalFormatted: container.FormatBytes(stats.MemoryLimit),
		},
		CPU: CPUStatus{Percent: round2(stats.CPUPercent)},
	})
}

var controlMessages = map[string]string{
	"start":   "Server starting...",
	"stop":    "Server stopping...",
	"restart": "Server restarting...",
}

// Control starts, stops or restarts the container.
func (h *ServerHandlers) Control(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if err := decodeBody(r, validation.SchemaControl, &req); err != nil {
		errors.HandleHTTPError(w, h.container.logger(), err)
		return
	}

	if err := h.container.Runtime.Action(r.Context(), req.Action); err != nil {
		if stderrors.Is(err, container.ErrNotFound) {
			errors.HandleHTTPError(w, h.container.logger(), errors.NewNotFoundError("server_control", "Server container not found"))
			return
		}
		errors.HandleHTTPError(w, h.container.logger(),
			errors.NewContainerError("server_control", err).WithMessage("Failed to control server").WithContext("action", req.Action))
		return
	}

	h.container.logger().Info("Server control", zap.String("action", req.Action), zap.String("user", auth.Username(r.Context())))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": controlMessages[req.Action],
	})
}

// Command relays a console command over RCON and records it.
func (h *ServerHandlers) Command(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.container.logger()

	var req struct {
		Command string `json:"command"`
	}
	if err := decodeBody(r, validation.SchemaCommand, &req); err != nil {
		errors.HandleHTTPError(w, logger, err)
		return
	}
	command := strings.TrimSpace(req.Command)
	if err := validation.ValidateCommand(command); err != nil {
		errors.HandleHTTPError(w, logger, errors.NewValidationError("server_command", err).WithMessage(validationMessage(err)))
		return
	}
	if rcon.BlockedCommand(command) {
		base := strings.ToLower(strings.TrimPrefix(strings.Fields(command)[0], "/"))
		errors.HandleHTTPError(w, logger,
			errors.NewForbiddenError("server_command", fmt.Sprintf("Command '%s' is not allowed via the web interface", base)))
		return
	}

	response, err := h.container.RCON.Exec(ctx, command)
	h.record(r, command, response, err)
	if err != nil {
		errors.HandleHTTPError(w, logger,
			errors.NewRCONError("server_command", err).WithMessage("Failed to execute command. Is the server running?"))
		return
	}

	if response == "" {
		response = "Command executed (no response)"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"response": response,
	})
}

func (h *ServerHandlers) record(r *http.Request, command, response string, cmdErr error) {
	if h.container.History == nil {
		return
	}
	if _, err := h.container.History.Add(r.Context(), auth.Username(r.Context()), command, response, cmdErr); err != nil {
		h.container.logger().Warn("Failed to record command", zap.Error(err))
	}
}

// History lists recent commands, newest first.
func (h *ServerHandlers) History(w http.ResponseWriter, r *http.Request) {
	records, err := h.container.History.Recent(r.Context(), queryInt(r, "limit", history.DefaultLimit))
	if err != nil {
		errors.HandleHTTPError(w, h.container.logger(), errors.NewDatabaseError("command_history", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": records})
}

// Players lists who is online.
func (h *ServerHandlers) Players(w http.ResponseWriter, r *http.Request) {
	players, err := rcon.ListPlayers(r.Context(), h.container.RCON)
	if err != nil {
		errors.HandleHTTPError(w, h.container.logger(),
			errors.NewRCONError("list_players", err).WithMessage("Failed to get players. Is the server running?"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"online":  players.Online,
		"max":     players.Max,
		"players": players.Players,
	})
}
