// Package download fetches files over HTTP (or copies local files) into a
// destination path, reporting progress after every chunk. The destination is
// only ever replaced by a complete file.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ChunkSize is the read buffer size used for every transfer.
const ChunkSize = 32 * 1024

// DefaultTimeout bounds one transfer when the client has no timeout of its own.
const DefaultTimeout = 10 * time.Minute

// ErrDownloadFailed is wrapped by every transfer failure.
var ErrDownloadFailed = errors.New("download failed")

// ProgressFunc is called after each chunk with the bytes written so far and
// the expected total (0 when unknown). It runs on the downloading goroutine.
type ProgressFunc func(downloaded, total int64)

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download failed: unexpected status %d", e.Code)
}

func (e *StatusError) Unwrap() error {
	return ErrDownloadFailed
}

// Task describes one file to fetch. LocalPath, when set, is copied instead
// of fetching URL.
type Task struct {
	ItemID    string
	Name      string
	URL       string
	LocalPath string
	Dest      string
	Size      int64
}

// Downloader performs transfers. It holds no per-transfer state and is safe
// for concurrent use.
type Downloader struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewDownloader creates a downloader. A nil client gets DefaultTimeout.
func NewDownloader(client *http.Client, userAgent string, logger *zap.Logger) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{client: client, userAgent: userAgent, logger: logger}
}

// Fetch runs a Task. When the source does not announce its size the task's
// Size is reported as the total instead.
func (d *Downloader) Fetch(ctx context.Context, task Task, progress ProgressFunc) (int64, error) {
	report := progress
	if progress != nil && task.Size > 0 {
		report = func(downloaded, total int64) {
			if total <= 0 {
				total = task.Size
			}
			progress(downloaded, total)
		}
	}

	if task.LocalPath != "" {
		return d.CopyFile(ctx, task.LocalPath, task.Dest, report)
	}
	return d.Download(ctx, task.URL, task.Dest, report)
}

// Download fetches url into dest and returns the number of bytes written.
func (d *Downloader) Download(ctx context.Context, url, dest string, progress ProgressFunc) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, &StatusError{Code: resp.StatusCode, URL: url}
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}

	start := time.Now()
	n, err := writeAtomic(dest, func(w io.Writer) (int64, error) {
		return copyWithProgress(ctx, w, resp.Body, total, progress)
	})
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}

	d.logger.Debug("Download complete",
		zap.String("url", url),
		zap.String("dest", dest),
		zap.Int64("bytes", n),
		zap.Duration("duration", time.Since(start)),
	)
	return n, nil
}

// CopyFile copies a local file into dest with the same progress reporting
// and replace-on-success behaviour as Download.
func (d *Downloader) CopyFile(ctx context.Context, src, dest string, progress ProgressFunc) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}

	n, err := writeAtomic(dest, func(w io.Writer) (int64, error) {
		return copyWithProgress(ctx, w, in, info.Size(), progress)
	})
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	return n, nil
}

// Percent returns downloaded as a rounded percentage of total, or 0 when the
// total is unknown.
func Percent(downloaded, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int((downloaded*100 + total/2) / total)
	if p > 100 {
		return 100
	}
	return p
}

func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress ProgressFunc) (int64, error) {
	buf := make([]byte, ChunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
			if progress != nil {
				progress(written, total)
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return written, ctxErr
			}
			return written, readErr
		}
	}
}

// writeAtomic writes into "<dest>.part-<random>" next to dest, syncs it and
// renames it over dest. The part file is removed on any failure.
func writeAtomic(dest string, fill func(io.Writer) (int64, error)) (n int64, err error) {
	dir, base := filepath.Split(dest)
	if dir == "" {
		dir = "."
	}

	part, err := os.CreateTemp(dir, base+".part-*")
	if err != nil {
		return 0, err
	}
	partName := part.Name()
	defer func() {
		if err != nil {
			part.Close()
			os.Remove(partName)
		}
	}()

	if n, err = fill(part); err != nil {
		return n, err
	}
	if err = part.Sync(); err != nil {
		return n, err
	}
	if err = part.Close(); err != nil {
		return n, err
	}
	if err = os.Chmod(partName, 0o644); err != nil {
		return n, err
	}
	if err = os.Rename(partName, dest); err != nil {
		return n, err
	}
	return n, nil
}
