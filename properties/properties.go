// Package properties reads and rewrites server.properties files while
// keeping every line it does not manage byte-for-byte intact.
package properties

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Managed keys written after a resource pack is generated.
const (
	KeyResourcePack        = "resource-pack"
	KeyResourcePackSHA1    = "resource-pack-sha1"
	KeyRequireResourcePack = "require-resource-pack"
)

// Property is one key=value pair in file order.
type Property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Document is a parsed properties file. Lines are kept verbatim; only lines
// touched by Set are rewritten.
type Document struct {
	lines           []string
	newline         string
	trailingNewline bool
}

// Parse splits data into lines. CRLF files stay CRLF.
func Parse(data []byte) *Document {
	doc := &Document{newline: "\n"}
	if len(data) == 0 {
		return doc
	}
	text := string(data)
	if strings.Contains(text, "\r\n") {
		doc.newline = "\r\n"
	}
	doc.trailingNewline = strings.HasSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\n")
	if doc.newline == "\r\n" {
		text = strings.TrimSuffix(text, "\r")
	}
	doc.lines = strings.Split(text, doc.newline)
	return doc
}

// Load reads path. A missing file yields an empty document.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Parse(nil), nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data), nil
}

// splitLine returns the key and value of an assignment line. Comments
// (# or !) and blank lines report ok=false.
func splitLine(line string) (key, value string, ok bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" || trimmed[0] == '#' || trimmed[0] == '!' {
		return "", "", false
	}
	idx := strings.IndexByte(trimmed, '=')
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimRight(trimmed[:idx], " \t")
	if key == "" {
		return "", "", false
	}
	return key, trimmed[idx+1:], true
}

// Get returns the value of the first line assigning key.
func (d *Document) Get(key string) (string, bool) {
	for _, line := range d.lines {
		if k, v, ok := splitLine(line); ok && k == key {
			return v, true
		}
	}
	return "", false
}

// Set assigns key. The first line assigning key is replaced in place and any
// later duplicates are dropped; when the key is absent a line is appended.
func (d *Document) Set(key, value string) {
	d.set(key, value, func(k string) bool { return k == key })
}

// SetFold is Set with a case-insensitive key match. The replacement line is
// written with key as given.
func (d *Document) SetFold(key, value string) {
	d.set(key, value, func(k string) bool { return strings.EqualFold(k, key) })
}

func (d *Document) set(key, value string, match func(string) bool) {
	assignment := key + "=" + value
	found := false
	out := d.lines[:0:0]
	for _, line := range d.lines {
		if k, _, ok := splitLine(line); ok && match(k) {
			if found {
				continue
			}
			found = true
			out = append(out, assignment)
			continue
		}
		out = append(out, line)
	}
	if !found {
		if len(out) == 0 {
			d.trailingNewline = true
		}
		out = append(out, assignment)
	}
	d.lines = out
}

// Values returns every assignment in file order. Later duplicates of a key
// are reported as they appear.
func (d *Document) Values() []Property {
	var props []Property
	for _, line := range d.lines {
		if k, v, ok := splitLine(line); ok {
			props = append(props, Property{Key: k, Value: v})
		}
	}
	return props
}

// Map returns the assignments keyed by name; the first occurrence wins.
func (d *Document) Map() map[string]string {
	m := make(map[string]string)
	for _, p := range d.Values() {
		if _, exists := m[p.Key]; !exists {
			m[p.Key] = p.Value
		}
	}
	return m
}

// Bytes renders the document.
func (d *Document) Bytes() []byte {
	var buf bytes.Buffer
	for i, line := range d.lines {
		if i > 0 {
			buf.WriteString(d.newline)
		}
		buf.WriteString(line)
	}
	if d.trailingNewline && len(d.lines) > 0 {
		buf.WriteString(d.newline)
	}
	return buf.Bytes()
}

// ApplyResourcePack points the server at a generated pack. Clients are not
// forced to accept it.
func ApplyResourcePack(doc *Document, url, sha1 string) {
	doc.Set(KeyResourcePack, url)
	doc.Set(KeyResourcePackSHA1, sha1)
	doc.SetFold(KeyRequireResourcePack, "false")
}

// Update loads path, applies updates in sorted key order and writes the
// result back atomically.
func Update(path string, updates map[string]string) error {
	doc, err := Load(path)
	if err != nil {
		return err
	}
	for _, key := range sortedKeys(updates) {
		doc.Set(key, updates[key])
	}
	return WriteFile(path, doc.Bytes())
}

// WriteFile replaces path with data through a temporary file in the same
// directory, keeping the existing file mode.
func WriteFile(path string, data []byte) (err error) {
	mode := fs.FileMode(0o644)
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
