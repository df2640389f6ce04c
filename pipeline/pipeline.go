// Package pipeline runs the long-lived install and generation jobs and
// reports their progress as a stream of events.
package pipeline

import (
	"context"
	"errors"
	"net/url"

	"mcpanel/download"
	"mcpanel/metrics"

	"go.uber.org/zap"
)

// unknownTotalStep is the byte interval between progress events when the
// download size is unknown.
const unknownTotalStep = 512 * 1024

// eventBuffer lets a pipeline run slightly ahead of a slow consumer.
const eventBuffer = 16

// Fetcher retrieves one file. *download.Downloader implements it.
type Fetcher interface {
	Fetch(ctx context.Context, task download.Task, progress download.ProgressFunc) (int64, error)
}

// Publisher mirrors encoded events to an external bus.
type Publisher interface {
	Publish(ctx context.Context, pipeline string, payload []byte) error
}

// Options carries the collaborators shared by both pipelines. Every field
// may be left nil.
type Options struct {
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Publisher Publisher
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// emitter delivers events to the stream consumer and the publisher.
type emitter struct {
	ctx       context.Context
	ch        chan<- Event
	name      string
	publisher Publisher
	logger    *zap.Logger
}

// send blocks until the consumer takes e or ctx is done. It reports false
// when the event could not be delivered.
func (e *emitter) send(ev Event) bool {
	if e.publisher != nil {
		if payload, err := Encode(ev); err == nil {
			if err := e.publisher.Publish(e.ctx, e.name, payload); err != nil {
				e.logger.Debug("Event publish failed", zap.String("type", ev.EventType()), zap.Error(err))
			}
		}
	}

	select {
	case e.ch <- ev:
		return true
	case <-e.ctx.Done():
		return false
	}
}

// throttle decides which progress callbacks become events: every change of
// the rounded percentage, or every unknownTotalStep bytes when the total is
// unknown.
type throttle struct {
	lastPercent int
	lastBytes   int64
}

func newThrottle() *throttle {
	return &throttle{}
}

func (t *throttle) next(downloaded, total int64) (int, bool) {
	if total > 0 {
		p := download.Percent(downloaded, total)
		if p == t.lastPercent {
			return p, false
		}
		t.lastPercent = p
		return p, true
	}
	if downloaded-t.lastBytes < unknownTotalStep {
		return 0, false
	}
	t.lastBytes = downloaded
	return 0, true
}

// failureMessage renders a per-item failure for the event stream without
// leaking local paths.
func failureMessage(err error) string {
	var statusErr *download.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Error()
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "download timed out"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "download failed: " + urlErr.Err.Error()
	}
	return "download failed"
}
