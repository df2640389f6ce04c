package history

import (
	"context"
	"errors"
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

	s := NewStore(database, database.Bucket(db.HistoryBucket), nil)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestAddRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, "admin", "list", "There are 0 of a max of 20 players online:", nil)
	require.NoError(t, err)
	_, err = s.Add(ctx, "admin", "say hi", "", errors.New("rcon: connection refused"))
	require.NoError(t, err)
	_, err = s.Add(ctx, "admin", "save-all", "Saved the game", nil)
	require.NoError(t, err)

	recent, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "save-all", recent[0].Command)
	assert.Equal(t, "say hi", recent[1].Command)
	assert.Equal(t, "rcon: connection refused", recent[1].Error)
	assert.Equal(t, "list", recent[2].Command)

	two, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)
	s.keep = 3
	ctx := context.Background()

	for _, cmd := range []string{"a", "b", "c", "d", "e"} {
		_, err := s.Add(ctx, "", cmd, "", nil)
		require.NoError(t, err)
	}

	recent, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "e", recent[0].Command)
	assert.Equal(t, "c", recent[2].Command)

	require.NoError(t, s.Clear(ctx))
	recent, err = s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}
