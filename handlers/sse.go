package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mcpanel/pipeline"

	"go.uber.org/zap"
)

// sseWriter writes server-sent events. Each event is one "data:" line
// carrying a JSON object.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// newSSEWriter sends the stream headers and lifts the server write deadline
// so long runs are not cut off.
func newSSEWriter(w http.ResponseWriter) *sseWriter {
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()
	return &sseWriter{w: w, rc: rc}
}

func (s *sseWriter) writeRaw(payload []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseWriter) writeJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.writeRaw(payload)
}

// pumpEvents relays pipeline events until the channel closes or the
// client goes away.
func pumpEvents(s *sseWriter, events <-chan pipeline.Event, logger *zap.Logger) {
	for ev := range events {
		payload, err := pipeline.Encode(ev)
		if err != nil {
			logger.Error("Failed to encode event", zap.Error(err))
			continue
		}
		if err := s.writeRaw(payload); err != nil {
			logger.Debug("Event stream client gone", zap.Error(err))
			// Drain so the pipeline never blocks on a full channel.
			for range events {
			}
			return
		}
	}
}
