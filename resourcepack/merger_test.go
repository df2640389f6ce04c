package resourcepack

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type zipEntry struct {
	name string
	body string
}

func buildZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = io.WriteString(w, e.body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func addBytes(t *testing.T, m *Merger, name string, data []byte) error {
	t.Helper()
	return m.AddArchive(name, bytes.NewReader(data), int64(len(data)), nil)
}

func readMerged(t *testing.T, m *Merger) (map[string]string, []string) {
	t.Helper()
	var out bytes.Buffer
	n, err := m.Write(&out)
	require.NoError(t, err)
	require.Equal(t, int64(out.Len()), n)

	zr, err := zip.NewReader(bytes.NewReader(out.Bytes()), int64(out.Len()))
	require.NoError(t, err)

	contents := map[string]string{}
	var order []string
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		contents[f.Name] = string(data)
		order = append(order, f.Name)
		assert.Equal(t, zip.Deflate, f.Method)
	}
	return contents, order
}

func TestMerger_LaterArchiveWins(t *testing.T) {
	a := buildZip(t, zipEntry{"x", "1"}, zipEntry{"y", "1"})
	b := buildZip(t, zipEntry{"y", "2"}, zipEntry{"z", "2"})

	m := NewMerger()
	require.NoError(t, addBytes(t, m, "A", a))
	require.NoError(t, addBytes(t, m, "B", b))

	contents, order := readMerged(t, m)
	assert.Equal(t, "1", contents["x"])
	assert.Equal(t, "2", contents["y"])
	assert.Equal(t, "2", contents["z"])
	assert.Equal(t, []string{MetadataFile, "x", "y", "z"}, order)
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []string{"A", "B"}, m.Sources())
}

func TestMerger_MetadataFirstWins(t *testing.T) {
	a := buildZip(t, zipEntry{MetadataFile, `{"pack":{"pack_format":7,"description":"A"}}`})
	b := buildZip(t, zipEntry{MetadataFile, `{"pack":{"pack_format":9,"description":"B"}}`})

	m := NewMerger()
	require.NoError(t, addBytes(t, m, "A", a))
	require.NoError(t, addBytes(t, m, "B", b))

	contents, _ := readMerged(t, m)
	meta, err := ParseMetadata([]byte(contents[MetadataFile]))
	require.NoError(t, err)
	assert.Equal(t, 7, meta.PackFormat())
	pack := meta["pack"].(map[string]any)
	assert.Equal(t, "Merged: A, B", pack["description"])
}

func TestMerger_MetadataFromLaterArchiveWhenFirstHasNone(t *testing.T) {
	a := buildZip(t, zipEntry{"assets/a.png", "a"})
	b := buildZip(t, zipEntry{MetadataFile, `{"pack":{"pack_format":18,"description":"B"},"language":{"xx":{}}}`})

	m := NewMerger()
	require.NoError(t, addBytes(t, m, "A", a))
	require.NoError(t, addBytes(t, m, "B", b))

	contents, _ := readMerged(t, m)
	meta, err := ParseMetadata([]byte(contents[MetadataFile]))
	require.NoError(t, err)
	assert.Equal(t, 18, meta.PackFormat())
	assert.Contains(t, meta, "language", "unknown fields are preserved")
}

func TestMerger_DefaultMetadata(t *testing.T) {
	m := NewMerger()
	require.NoError(t, addBytes(t, m, "Only", buildZip(t, zipEntry{"assets/x.json", "{}"})))

	contents, _ := readMerged(t, m)
	assert.Equal(t, "{\n  \"pack\": {\n    \"description\": \"Merged: Only\",\n    \"pack_format\": 15\n  }\n}", contents[MetadataFile])
}

func TestMerger_CorruptArchiveLeavesStateUnchanged(t *testing.T) {
	m := NewMerger()
	require.NoError(t, addBytes(t, m, "A", buildZip(t, zipEntry{"x", "1"})))

	err := addBytes(t, m, "Broken", []byte("definitely not a zip"))
	require.Error(t, err)
	assert.True(t, IsArchiveError(err))

	// valid zip, invalid metadata: nothing from it may leak into the output
	err = addBytes(t, m, "BadMeta", buildZip(t, zipEntry{"x", "leaked"}, zipEntry{MetadataFile, "{not json"}))
	require.Error(t, err)
	var archiveErr *ArchiveError
	require.ErrorAs(t, err, &archiveErr)
	assert.Equal(t, "BadMeta", archiveErr.Name)

	contents, _ := readMerged(t, m)
	assert.Equal(t, "1", contents["x"])
	assert.Equal(t, []string{"A"}, m.Sources())
	assert.Contains(t, contents[MetadataFile], "Merged: A\"")
}

func TestMerger_SkipsDirectoriesAndUnsafeNames(t *testing.T) {
	data := buildZip(t,
		zipEntry{"assets/", ""},
		zipEntry{"assets/minecraft/a.png", "ok"},
		zipEntry{"../evil.txt", "no"},
		zipEntry{"/abs.txt", "no"},
		zipEntry{"assets/../../up.txt", "no"},
	)

	var calls [][2]int
	m := NewMerger()
	require.NoError(t, m.AddArchive("P", bytes.NewReader(data), int64(len(data)), func(processed, total int) {
		calls = append(calls, [2]int{processed, total})
	}))

	contents, _ := readMerged(t, m)
	assert.Len(t, contents, 2)
	assert.Equal(t, "ok", contents["assets/minecraft/a.png"])
	require.Len(t, calls, 4)
	assert.Equal(t, [2]int{4, 4}, calls[3])
}

func TestMerger_AddFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pack.zip")
	require.NoError(t, os.WriteFile(path, buildZip(t, zipEntry{"a", "b"}), 0o644))

	m := NewMerger()
	require.NoError(t, m.AddFile("Pack", path, nil))
	assert.Equal(t, 1, m.Len())

	err := m.AddFile("Missing", filepath.Join(t.TempDir(), "missing.zip"), nil)
	assert.True(t, IsArchiveError(err))
}

func TestParseMetadata_Lenient(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{
		// made with a pack editor
		"pack": {
			"pack_format": 15,
			"description": "Faithful",
		},
	}`)...)

	meta, err := ParseMetadata(input)
	require.NoError(t, err)
	assert.Equal(t, 15, meta.PackFormat())

	_, err = ParseMetadata([]byte(`null`))
	assert.Error(t, err)
	_, err = ParseMetadata([]byte(`[`))
	assert.Error(t, err)
}

func TestMetadata_WithDescriptionDoesNotMutate(t *testing.T) {
	meta, err := ParseMetadata([]byte(`{"pack":{"pack_format":12,"description":"orig"}}`))
	require.NoError(t, err)

	updated := meta.WithDescription("new")
	assert.Equal(t, "orig", meta["pack"].(map[string]any)["description"])
	assert.Equal(t, "new", updated["pack"].(map[string]any)["description"])
	assert.Equal(t, 12, updated.PackFormat())

	broken := Metadata{"pack": "string"}.WithDescription("d")
	assert.Equal(t, DefaultPackFormat, broken.PackFormat())
}

func TestMerger_PreservesModifiedTime(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	when := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "a.txt", Method: zip.Deflate, Modified: when})
	require.NoError(t, err)
	_, _ = w.Write([]byte("x"))
	require.NoError(t, zw.Close())

	m := NewMerger()
	require.NoError(t, addBytes(t, m, "P", buf.Bytes()))

	var out bytes.Buffer
	_, err = m.Write(&out)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(out.Bytes()), int64(out.Len()))
	require.NoError(t, err)
	assert.True(t, zr.File[1].Modified.Equal(when), "got %v", zr.File[1].Modified)
}
