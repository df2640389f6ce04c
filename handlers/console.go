package handlers

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"mcpanel/container"
	"mcpanel/dockerlog"
	"mcpanel/internal/errors"

	"go.uber.org/zap"
)

const (
	defaultLogTail = 100
	maxLogTail     = 500
	streamLogTail  = 50
)

// ConsoleHandlers exposes the container log.
type ConsoleHandlers struct {
	container *Container
}

// NewConsoleHandlers creates a new ConsoleHandlers instance
func NewConsoleHandlers(container *Container) *ConsoleHandlers {
	return &ConsoleHandlers{container: container}
}

func containerError(op string, err error, message string) error {
	if stderrors.Is(err, container.ErrNotFound) {
		return errors.NewNotFoundError(op, "Server container not found")
	}
	return errors.NewContainerError(op, err).WithMessage(message)
}

// Logs returns the last lines of the log, ?tail=N (at most 500).
func (h *ConsoleHandlers) Logs(w http.ResponseWriter, r *http.Request) {
	tail := min(queryInt(r, "tail", defaultLogTail), maxLogTail)
	if tail == 0 {
		tail = defaultLogTail
	}

	lines, err := h.container.Runtime.Tail(r.Context(), tail, false)
	if err != nil {
		errors.HandleHTTPError(w, h.container.logger(), containerError("console_logs", err, "Failed to get logs"))
		return
	}

	logs := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			logs = append(logs, line)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// Stream follows the log as server-sent events of the form {"log": line}.
// The stream ends when the client disconnects or the container stops.
func (h *ConsoleHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.container.logger()

	if _, err := h.container.Runtime.Inspect(ctx); err != nil {
		errors.HandleHTTPError(w, logger, containerError("console_stream", err, "Failed to stream logs"))
		return
	}

	sse := newSSEWriter(w)
	opts := container.LogOptions{Follow: true, Tail: streamLogTail, Timestamps: true}
	err := h.container.Runtime.StreamLines(ctx, opts, func(line dockerlog.Line) error {
		if strings.TrimSpace(line.Text) == "" {
			return nil
		}
		return sse.writeJSON(map[string]string{"log": line.Text})
	})

	switch {
	case err == nil, ctx.Err() != nil, stderrors.Is(err, context.Canceled):
		return
	default:
		logger.Warn("Log stream ended", zap.Error(err))
		_ = sse.writeJSON(map[string]string{"error": "Log stream ended"})
	}
}
