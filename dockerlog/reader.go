package dockerlog

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"unicode"
)

const readChunkSize = 32 * 1024

// Decode reads multiplexed frames from r until EOF and calls fn for every
// line. A truncated final frame is dropped silently. Decode returns the first
// error from fn, a *FrameError, a read error, or ctx.Err() once ctx is done.
// A blocked Read is only interrupted if r itself honours the context (for
// example an HTTP response body).
func Decode(ctx context.Context, r io.Reader, fn func(Line) error) error {
	dec := NewFrameDecoder()
	defer dec.Close()

	buf := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			for _, line := range dec.Feed(buf[:n]) {
				if err := fn(line); err != nil {
					return err
				}
			}
			if err := dec.Err(); err != nil {
				return err
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return readErr
		}
	}
}

// ScanRaw reads a non-multiplexed stream (containers started with a TTY)
// and calls fn for every non-empty line with trailing whitespace removed.
func ScanRaw(ctx context.Context, r io.Reader, fn func(Line) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, readChunkSize), MaxFrameSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		text := strings.TrimRightFunc(strings.ToValidUTF8(scanner.Text(), "�"), unicode.IsSpace)
		if text == "" {
			continue
		}
		if err := fn(Line{Stream: Stdout, Text: text}); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}
