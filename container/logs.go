package container

import (
	"context"

	"mcpanel/dockerlog"

	"go.uber.org/zap"
)

// StreamLines decodes the container log stream and calls fn for each line
// until the stream ends, fn fails or ctx is done. TTY containers are read as
// plain text.
func (c *Client) StreamLines(ctx context.Context, opts LogOptions, fn func(dockerlog.Line) error) error {
	st, err := c.Inspect(ctx)
	if err != nil {
		return err
	}

	rc, err := c.Logs(ctx, opts)
	if err != nil {
		return err
	}
	defer rc.Close()

	if st.TTY {
		return dockerlog.ScanRaw(ctx, rc, fn)
	}
	err = dockerlog.Decode(ctx, rc, fn)
	if dockerlog.IsFrameError(err) {
		c.logger.Warn("Log stream desynchronised", zap.Error(err))
	}
	return err
}

// Tail returns the last n log lines, oldest first.
func (c *Client) Tail(ctx context.Context, n int, timestamps bool) ([]string, error) {
	lines := make([]string, 0, n)
	err := c.StreamLines(ctx, LogOptions{Tail: n, Timestamps: timestamps}, func(l dockerlog.Line) error {
		lines = append(lines, l.Text)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}
