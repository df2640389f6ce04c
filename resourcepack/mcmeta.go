package resourcepack

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"
)

// MetadataFile is the root entry holding a pack's metadata.
const MetadataFile = "pack.mcmeta"

// DefaultPackFormat is used when no merged archive carried metadata
// (pack_format 15 covers game versions 1.20 and 1.20.1).
const DefaultPackFormat = 15

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Metadata is a decoded pack.mcmeta. Fields the panel does not know about
// (filters, overlays, language) are kept untouched.
type Metadata map[string]any

// ParseMetadata decodes pack.mcmeta content. Packs in the wild ship comments,
// trailing commas and byte order marks, all of which are accepted.
func ParseMetadata(data []byte) (Metadata, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()

	var meta Metadata
	if err := dec.Decode(&meta); err != nil {
		return nil, fmt.Errorf("parse %s: %w", MetadataFile, err)
	}
	if meta == nil {
		return nil, fmt.Errorf("parse %s: not a JSON object", MetadataFile)
	}
	return meta, nil
}

// DefaultMetadata returns the metadata written when no archive supplied one.
func DefaultMetadata() Metadata {
	return Metadata{"pack": map[string]any{"pack_format": DefaultPackFormat}}
}

// WithDescription returns a copy of m whose pack.description is description.
// A missing or malformed "pack" object is replaced by one with the default
// pack_format.
func (m Metadata) WithDescription(description string) Metadata {
	out := make(Metadata, len(m)+1)
	for k, v := range m {
		out[k] = v
	}

	pack := map[string]any{}
	if existing, ok := m["pack"].(map[string]any); ok {
		for k, v := range existing {
			pack[k] = v
		}
	}
	if _, ok := pack["pack_format"]; !ok {
		pack["pack_format"] = DefaultPackFormat
	}
	pack["description"] = description
	out["pack"] = pack
	return out
}

// PackFormat returns pack.pack_format, or 0 when absent.
func (m Metadata) PackFormat() int {
	pack, ok := m["pack"].(map[string]any)
	if !ok {
		return 0
	}
	switch v := pack["pack_format"].(type) {
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// Marshal encodes the metadata indented by two spaces.
func (m Metadata) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
