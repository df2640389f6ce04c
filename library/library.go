// Package library manages a directory of user-visible files: installed
// mods, shader packs and uploaded resource packs.
package library

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"mcpanel/internal/validation"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrExists      = errors.New("file already exists")
	ErrInvalidType = errors.New("invalid file type")
	ErrTooLarge    = errors.New("file too large")
)

// Config describes one library.
type Config struct {
	Dir         string
	Ext         string // required extension, e.g. ".jar"
	Key         string // manifest list key, e.g. "mods"
	ServePrefix string // public URL prefix, e.g. "/api/mods/serve/"
	ContentType string
}

// File is one entry of a library.
type File struct {
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"-"`
}

type etagEntry struct {
	size    int64
	modTime time.Time
	tag     string
}

// Library is a directory of files with one extension.
type Library struct {
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	etags map[string]etagEntry
}

// New creates a library over cfg.Dir. The directory is created on first
// write.
func New(cfg Config, logger *zap.Logger) *Library {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "application/octet-stream"
	}
	return &Library{
		cfg:    cfg,
		logger: logger.With(zap.String("library", cfg.Key)),
		etags:  make(map[string]etagEntry),
	}
}

func (l *Library) Dir() string         { return l.cfg.Dir }
func (l *Library) Ext() string         { return l.cfg.Ext }
func (l *Library) ContentType() string { return l.cfg.ContentType }

// path validates filename and resolves it inside the library.
func (l *Library) path(filename string) (string, error) {
	if err := validation.ValidateFilename(filename); err != nil {
		return "", err
	}
	if !strings.EqualFold(filepath.Ext(filename), l.cfg.Ext) {
		return "", ErrInvalidType
	}
	return validation.ValidateFilePath(l.cfg.Dir, filename)
}

// List returns the library's files sorted by name. A missing directory is
// an empty library.
func (l *Library) List(ctx context.Context) ([]File, error) {
	entries, err := os.ReadDir(l.cfg.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []File{}, nil
		}
		return nil, fmt.Errorf("list %s: %w", l.cfg.Dir, err)
	}

	files := make([]File, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), l.cfg.Ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, File{Filename: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		return strings.ToLower(files[i].Filename) < strings.ToLower(files[j].Filename)
	})
	return files, nil
}

// Delete removes filename.
func (l *Library) Delete(filename string) error {
	p, err := l.path(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	l.forget(filename)
	l.logger.Info("File removed", zap.String("filename", filename))
	return nil
}

// Save stores r as filename. An existing file is never replaced. maxSize
// of zero means unlimited.
func (l *Library) Save(filename string, r io.Reader, maxSize int64) (File, error) {
	p, err := l.path(filename)
	if err != nil {
		return File{}, err
	}
	if err := os.MkdirAll(l.cfg.Dir, 0o755); err != nil {
		return File{}, err
	}
	if _, err := os.Stat(p); err == nil {
		return File{}, ErrExists
	}

	tmp, err := os.CreateTemp(l.cfg.Dir, "."+filename+".upload-*")
	if err != nil {
		return File{}, err
	}
	defer os.Remove(tmp.Name())

	src := r
	if maxSize > 0 {
		src = io.LimitReader(r, maxSize+1)
	}
	n, err := io.Copy(tmp, src)
	if err == nil && maxSize > 0 && n > maxSize {
		err = ErrTooLarge
	}
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return File{}, err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return File{}, err
	}

	// Link fails when the name was taken since the Stat above.
	if err := os.Link(tmp.Name(), p); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return File{}, ErrExists
		}
		return File{}, err
	}

	info, err := os.Stat(p)
	if err != nil {
		return File{}, err
	}
	l.logger.Info("File uploaded", zap.String("filename", filename), zap.Int64("size", n))
	return File{Filename: filename, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Open opens filename for serving.
func (l *Library) Open(filename string) (*os.File, fs.FileInfo, error) {
	p, err := l.path(filename)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, ErrNotFound
	}
	return f, info, nil
}

// ETag returns a strong entity tag for filename derived from a BLAKE3
// digest of its content. Digests are reused while size and mtime are
// unchanged.
func (l *Library) ETag(filename string) (string, error) {
	f, info, err := l.Open(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return l.etag(filename, f, info)
}

func (l *Library) etag(name string, r io.Reader, info fs.FileInfo) (string, error) {
	l.mu.Lock()
	cached, ok := l.etags[name]
	l.mu.Unlock()
	if ok && cached.size == info.Size() && cached.modTime.Equal(info.ModTime()) {
		return cached.tag, nil
	}

	tag, err := ContentETag(r)
	if err != nil {
		return "", err
	}
	l.mu.Lock()
	l.etags[name] = etagEntry{size: info.Size(), modTime: info.ModTime(), tag: tag}
	l.mu.Unlock()
	return tag, nil
}

func (l *Library) forget(name string) {
	l.mu.Lock()
	delete(l.etags, name)
	l.mu.Unlock()
}

// ContentETag hashes r with BLAKE3 and formats the first 128 bits as a
// quoted entity tag.
func ContentETag(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return `"` + hex.EncodeToString(h.Sum(nil)[:16]) + `"`, nil
}

// ManifestEntry describes one file for launchers.
type ManifestEntry struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	SHA256   string `json:"sha256"`
	URL      string `json:"url"`
}

// ManifestVersion is the manifest format version.
const ManifestVersion = "1.0.0"

// Manifest is the public file list consumed by launchers.
type Manifest struct {
	Version          string
	MinecraftVersion string
	LastUpdated      time.Time
	Key              string
	Entries          []ManifestEntry
}

func (m Manifest) MarshalJSON() ([]byte, error) {
	entries := m.Entries
	if entries == nil {
		entries = []ManifestEntry{}
	}
	return json.Marshal(map[string]any{
		"version":           m.Version,
		"minecraft_version": m.MinecraftVersion,
		"last_updated":      m.LastUpdated.UTC().Format(time.RFC3339Nano),
		m.Key:               entries,
	})
}

// Manifest lists every file with its SHA-256. LastUpdated is the newest
// modification time, or now for an empty library.
func (l *Library) Manifest(ctx context.Context, minecraftVersion string) (*Manifest, error) {
	files, err := l.List(ctx)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Version:          ManifestVersion,
		MinecraftVersion: minecraftVersion,
		Key:              l.cfg.Key,
		Entries:          make([]ManifestEntry, 0, len(files)),
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sum, err := sha256File(filepath.Join(l.cfg.Dir, f.Filename))
		if err != nil {
			l.logger.Warn("Skipping unreadable file", zap.String("filename", f.Filename), zap.Error(err))
			continue
		}
		m.Entries = append(m.Entries, ManifestEntry{
			Filename: f.Filename,
			Size:     f.Size,
			SHA256:   sum,
			URL:      l.cfg.ServePrefix + url.PathEscape(f.Filename),
		})
		if f.ModTime.After(m.LastUpdated) {
			m.LastUpdated = f.ModTime
		}
	}
	if len(m.Entries) == 0 {
		m.LastUpdated = time.Now()
	}
	return m, nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
