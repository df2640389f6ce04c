package resourcepack

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mcpanel/db"

	"github.com/google/uuid"
)

// GeneratedFilename is the name of the artifact served to game clients.
const GeneratedFilename = "server-resourcepack.zip"

var selectionKey = []byte("selection")

var (
	ErrPackExists   = errors.New("resource pack already in list")
	ErrPackNotFound = errors.New("resource pack not found")
	ErrCustomExists = errors.New("this resource pack already exists")
)

// Pack is one selected resource pack. Order in the selection is merge
// priority: later packs override earlier ones.
type Pack struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Icon        string    `json:"icon,omitempty"`
	Version     string    `json:"version"`
	DownloadURL string    `json:"downloadUrl"`
	Filename    string    `json:"filename"`
	SHA1        string    `json:"sha1"`
	Size        int64     `json:"size"`
	AddedAt     time.Time `json:"addedAt"`
	Custom      bool      `json:"isCustom,omitempty"`
}

// Artifact describes the generated pack currently advertised to clients.
type Artifact struct {
	Filename    string    `json:"filename"`
	SHA1        string    `json:"sha1"`
	GeneratedAt time.Time `json:"generatedAt"`
	URL         string    `json:"url"`
	Size        int64     `json:"size,omitempty"`
}

// Selection is persisted as a single value so packs and artifact change
// together.
type Selection struct {
	Packs     []Pack    `json:"selectedPacks"`
	Generated *Artifact `json:"generatedPack"`
}

// Store keeps the selection in bbolt. Every mutation is a read-modify-write
// inside one transaction.
type Store struct {
	db     db.Database
	bucket string
}

// NewStore creates a store over bucket.
func NewStore(database db.Database, bucket string) *Store {
	return &Store{db: database, bucket: bucket}
}

// Get returns the current selection; an empty one when nothing is stored.
func (s *Store) Get(ctx context.Context) (*Selection, error) {
	data, err := s.db.GetKV(ctx, s.bucket, selectionKey)
	if err != nil {
		return nil, err
	}
	return decodeSelection(data)
}

// List returns the selected packs in merge order.
func (s *Store) List(ctx context.Context) ([]Pack, error) {
	sel, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	return sel.Packs, nil
}

// Generated returns the current artifact or nil.
func (s *Store) Generated(ctx context.Context) (*Artifact, error) {
	sel, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	return sel.Generated, nil
}

// Add appends pack to the selection. ErrPackExists when the id is taken.
func (s *Store) Add(ctx context.Context, pack Pack) (Pack, error) {
	if pack.AddedAt.IsZero() {
		pack.AddedAt = time.Now().UTC()
	}
	err := s.update(ctx, func(sel *Selection) error {
		for _, p := range sel.Packs {
			if p.ID == pack.ID {
				return ErrPackExists
			}
		}
		sel.Packs = append(sel.Packs, pack)
		return nil
	})
	return pack, err
}

// Remove drops the pack with id. ErrPackNotFound when absent.
func (s *Store) Remove(ctx context.Context, id string) error {
	return s.update(ctx, func(sel *Selection) error {
		for i, p := range sel.Packs {
			if p.ID == id {
				sel.Packs = append(sel.Packs[:i], sel.Packs[i+1:]...)
				return nil
			}
		}
		return ErrPackNotFound
	})
}

// AddCustom stores an uploaded archive in dir and selects it. An upload that
// matches an already selected pack by filename or SHA-1 is rejected with
// ErrCustomExists.
func (s *Store) AddCustom(ctx context.Context, dir, filename string, data []byte) (Pack, error) {
	sum := sha1.Sum(data)
	pack := Pack{
		ID:          "custom-" + uuid.New().String(),
		Name:        strings.TrimSuffix(filename, filepath.Ext(filename)),
		Version:     "custom",
		DownloadURL: "/api/resourcepacks/custom/" + url.PathEscape(filename),
		Filename:    filename,
		SHA1:        hex.EncodeToString(sum[:]),
		Size:        int64(len(data)),
		AddedAt:     time.Now().UTC(),
		Custom:      true,
	}

	err := s.update(ctx, func(sel *Selection) error {
		for _, p := range sel.Packs {
			if p.Filename == pack.Filename || (p.SHA1 != "" && p.SHA1 == pack.SHA1) {
				return ErrCustomExists
			}
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if err := writeFileAtomic(filepath.Join(dir, filename), data, 0o644); err != nil {
			return err
		}
		sel.Packs = append(sel.Packs, pack)
		return nil
	})
	return pack, err
}

// CommitFunc runs inside the selection transaction. It performs the
// filesystem side of a generation and returns the artifact to record.
type CommitFunc func(previous *Artifact) (*Artifact, error)

// Commit records a new artifact. When fn fails nothing is recorded.
func (s *Store) Commit(ctx context.Context, fn CommitFunc) (*Artifact, error) {
	var recorded *Artifact
	err := s.update(ctx, func(sel *Selection) error {
		artifact, err := fn(sel.Generated)
		if err != nil {
			return err
		}
		sel.Generated = artifact
		recorded = artifact
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}

// SetGenerated records artifact without any filesystem work.
func (s *Store) SetGenerated(ctx context.Context, artifact *Artifact) error {
	_, err := s.Commit(ctx, func(*Artifact) (*Artifact, error) { return artifact, nil })
	return err
}

func (s *Store) update(ctx context.Context, fn func(*Selection) error) error {
	return s.db.UpdateKV(ctx, s.bucket, selectionKey, func(current []byte) ([]byte, error) {
		sel, err := decodeSelection(current)
		if err != nil {
			return nil, err
		}
		if err := fn(sel); err != nil {
			return nil, err
		}
		return json.Marshal(sel)
	})
}

func decodeSelection(data []byte) (*Selection, error) {
	sel := &Selection{Packs: []Pack{}}
	if len(data) == 0 {
		return sel, nil
	}
	if err := json.Unmarshal(data, sel); err != nil {
		return nil, fmt.Errorf("decode selection: %w", err)
	}
	if sel.Packs == nil {
		sel.Packs = []Pack{}
	}
	return sel, nil
}

func writeFileAtomic(dest string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
