// Package resourcepack merges Minecraft resource pack archives and keeps the
// panel's pack selection.
package resourcepack

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// MaxEntrySize bounds the uncompressed size of a single archive entry.
const MaxEntrySize = 256 << 20

// ArchiveError reports an archive that could not be merged. The merger state
// is unchanged when it is returned.
type ArchiveError struct {
	Name string
	Err  error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive %s: %v", e.Name, e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// IsArchiveError reports whether err is an *ArchiveError.
func IsArchiveError(err error) bool {
	var archiveErr *ArchiveError
	return errors.As(err, &archiveErr)
}

// ProgressFunc receives the number of entries processed so far out of the
// archive's total (directories excluded).
type ProgressFunc func(processed, total int)

type entry struct {
	data     []byte
	modified time.Time
}

// Merger combines archives in call order. For every entry the last archive
// wins, except pack.mcmeta where the first archive that had one wins.
// A Merger is not safe for concurrent use.
type Merger struct {
	entries  map[string]entry
	order    []string
	metadata Metadata
	sources  []string
}

// NewMerger creates an empty merger.
func NewMerger() *Merger {
	return &Merger{entries: make(map[string]entry)}
}

// AddFile merges the archive stored at filePath under the display name name.
func (m *Merger) AddFile(name, filePath string, progress ProgressFunc) error {
	f, err := os.Open(filePath)
	if err != nil {
		return &ArchiveError{Name: name, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &ArchiveError{Name: name, Err: err}
	}
	return m.AddArchive(name, f, info.Size(), progress)
}

// AddArchive reads every entry of the zip archive r. All entries are staged
// first and committed only when the whole archive was read successfully.
func (m *Merger) AddArchive(name string, r io.ReaderAt, size int64, progress ProgressFunc) error {
	// A non-nil reader alongside an error only flags insecure entry names,
	// which safeEntryName filters below.
	zr, err := zip.NewReader(r, size)
	if zr == nil {
		return &ArchiveError{Name: name, Err: err}
	}

	var files []*zip.File
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			files = append(files, f)
		}
	}

	staged := make(map[string]entry, len(files))
	var stagedOrder []string
	var stagedMeta Metadata

	for i, f := range files {
		if entryName, ok := safeEntryName(f.Name); ok {
			if entryName == MetadataFile {
				if m.metadata == nil && stagedMeta == nil {
					data, err := readEntry(f)
					if err != nil {
						return &ArchiveError{Name: name, Err: err}
					}
					if stagedMeta, err = ParseMetadata(data); err != nil {
						return &ArchiveError{Name: name, Err: err}
					}
				}
			} else {
				data, err := readEntry(f)
				if err != nil {
					return &ArchiveError{Name: name, Err: err}
				}
				if _, seen := staged[entryName]; !seen {
					stagedOrder = append(stagedOrder, entryName)
				}
				staged[entryName] = entry{data: data, modified: f.Modified}
			}
		}

		if progress != nil {
			progress(i+1, len(files))
		}
	}

	for _, entryName := range stagedOrder {
		if _, exists := m.entries[entryName]; !exists {
			m.order = append(m.order, entryName)
		}
		m.entries[entryName] = staged[entryName]
	}
	if stagedMeta != nil {
		m.metadata = stagedMeta
	}
	m.sources = append(m.sources, name)
	return nil
}

func readEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > MaxEntrySize {
		return nil, fmt.Errorf("entry %s: %d bytes exceeds limit", f.Name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", f.Name, err)
	}
	if len(data) > MaxEntrySize {
		return nil, fmt.Errorf("entry %s: exceeds limit", f.Name)
	}
	return data, nil
}

// safeEntryName normalises an entry name and rejects names that would escape
// the pack root once extracted by the game client.
func safeEntryName(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	if name == "" || strings.HasPrefix(name, "/") {
		return "", false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", false
		}
	}
	cleaned := path.Clean(name)
	if cleaned == "." {
		return "", false
	}
	return cleaned, true
}

// Sources returns the names of the archives merged so far, in order.
func (m *Merger) Sources() []string {
	return append([]string(nil), m.sources...)
}

// Len returns the number of distinct entries, pack.mcmeta excluded.
func (m *Merger) Len() int {
	return len(m.order)
}

// Metadata returns the captured pack.mcmeta, or nil.
func (m *Merger) Metadata() Metadata {
	return m.metadata
}

// Description is the pack description written by Write.
func (m *Merger) Description() string {
	return "Merged: " + strings.Join(m.sources, ", ")
}

// Write encodes the merged archive to w with maximum deflate compression and
// returns the number of bytes written. pack.mcmeta comes first, then every
// other entry in first-seen order.
func (m *Merger) Write(w io.Writer) (int64, error) {
	meta := m.metadata
	if meta == nil {
		meta = DefaultMetadata()
	}
	metaBytes, err := meta.WithDescription(m.Description()).Marshal()
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", MetadataFile, err)
	}

	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	if err := writeEntry(zw, MetadataFile, metaBytes, time.Now()); err != nil {
		return cw.n, err
	}
	for _, name := range m.order {
		e := m.entries[name]
		if err := writeEntry(zw, name, e.data, e.modified); err != nil {
			return cw.n, err
		}
	}

	if err := zw.Close(); err != nil {
		return cw.n, fmt.Errorf("finalize archive: %w", err)
	}
	return cw.n, nil
}

func writeEntry(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}
	if _, err := io.Copy(fw, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
