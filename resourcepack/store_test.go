package resourcepack

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mcpanel/config"
	"mcpanel/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg, err := config.NewConfigBuilder().
		WithDBPath(t.TempDir()).
		WithDBFile("test.db").
		WithBucket("test").
		Build()
	require.NoError(t, err)

	database, err := db.NewBoltDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewStore(database, database.Bucket(db.ResourcePacksBucket))
}

func TestStore_EmptySelection(t *testing.T) {
	store := newTestStore(t)
	sel, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sel.Packs)
	assert.NotNil(t, sel.Packs)
	assert.Nil(t, sel.Generated)
}

func TestStore_AddRemove(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	added, err := store.Add(ctx, Pack{ID: "p1", Name: "Faithful", DownloadURL: "https://cdn/f.zip", Filename: "f.zip"})
	require.NoError(t, err)
	assert.False(t, added.AddedAt.IsZero())

	_, err = store.Add(ctx, Pack{ID: "p2", Name: "Fresh"})
	require.NoError(t, err)

	_, err = store.Add(ctx, Pack{ID: "p1", Name: "Again"})
	assert.ErrorIs(t, err, ErrPackExists)

	packs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, packs, 2)
	assert.Equal(t, "p1", packs[0].ID)
	assert.Equal(t, "p2", packs[1].ID)

	require.NoError(t, store.Remove(ctx, "p1"))
	assert.ErrorIs(t, store.Remove(ctx, "p1"), ErrPackNotFound)

	packs, err = store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, packs, 1)
}

func TestStore_ConcurrentAddsAreNotLost(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Add(ctx, Pack{ID: string(rune('a' + i)), Name: "pack"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	packs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, packs, 20)
}

func TestStore_AddCustom(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "resourcepacks-custom")

	pack, err := store.AddCustom(ctx, dir, "My Pack.zip", []byte("zipdata"))
	require.NoError(t, err)
	assert.True(t, pack.Custom)
	assert.Equal(t, "My Pack", pack.Name)
	assert.Equal(t, "custom", pack.Version)
	assert.Equal(t, "/api/resourcepacks/custom/My%20Pack.zip", pack.DownloadURL)
	assert.Regexp(t, `^custom-[0-9a-f-]{36}$`, pack.ID)
	assert.Equal(t, "76b7eae4de27e531065cf516d380be72a7342358", pack.SHA1)

	written, err := os.ReadFile(filepath.Join(dir, "My Pack.zip"))
	require.NoError(t, err)
	assert.Equal(t, "zipdata", string(written))

	_, err = store.AddCustom(ctx, dir, "My Pack.zip", []byte("other"))
	assert.ErrorIs(t, err, ErrCustomExists, "same filename")

	_, err = store.AddCustom(ctx, dir, "renamed.zip", []byte("zipdata"))
	assert.ErrorIs(t, err, ErrCustomExists, "same content")
	assert.NoFileExists(t, filepath.Join(dir, "renamed.zip"))
}

func TestStore_Commit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.Add(ctx, Pack{ID: "p1", Name: "A"})
	require.NoError(t, err)

	first := &Artifact{Filename: GeneratedFilename, SHA1: "aaa", GeneratedAt: time.Now().UTC(), URL: "/x"}
	require.NoError(t, store.SetGenerated(ctx, first))

	t.Run("failure records nothing", func(t *testing.T) {
		_, err := store.Commit(ctx, func(previous *Artifact) (*Artifact, error) {
			assert.Equal(t, "aaa", previous.SHA1)
			return nil, errors.New("rename failed")
		})
		require.Error(t, err)

		current, err := store.Generated(ctx)
		require.NoError(t, err)
		assert.Equal(t, "aaa", current.SHA1)
	})

	t.Run("success replaces artifact and keeps packs", func(t *testing.T) {
		recorded, err := store.Commit(ctx, func(*Artifact) (*Artifact, error) {
			return &Artifact{Filename: GeneratedFilename, SHA1: "bbb", URL: "/x"}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "bbb", recorded.SHA1)

		sel, err := store.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, "bbb", sel.Generated.SHA1)
		assert.Len(t, sel.Packs, 1)
	})
}
