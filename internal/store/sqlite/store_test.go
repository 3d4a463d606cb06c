package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperifyio/cmdbot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "commands.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_UpsertFindDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Upsert(ctx, store.Record{Name: "greet", Script: "return 'hi'", Description: "greets"}))
	require.NoError(t, s.Upsert(ctx, store.Record{Name: "rules", Template: "read the rules"}))

	rec, ok, err := s.FindByKey(ctx, "greet")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "return 'hi'", rec.Script)
	assert.Equal(t, "greets", rec.Description)
	assert.False(t, rec.UpdatedAt.IsZero())

	all, err := s.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "greet", all[0].Name)
	assert.Equal(t, "rules", all[1].Name)

	require.NoError(t, s.Delete(ctx, "greet"))
	_, ok, err = s.FindByKey(ctx, "greet")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_UpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Upsert(ctx, store.Record{Name: "greet", Script: "return 'hi'"}))
	require.NoError(t, s.Upsert(ctx, store.Record{Name: "greet", Template: "hello"}))

	rec, ok, err := s.FindByKey(ctx, "greet")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, rec.Script)
	assert.Equal(t, "hello", rec.Template)
}

func TestOpen_ReappliesMigrationsIdempotently(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "commands.db")

	s1, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s1.Upsert(ctx, store.Record{Name: "keep", Template: "still here"}))
	require.NoError(t, s1.Close())

	s2, err := Open(ctx, path)
	require.NoError(t, err)
	defer s2.Close()

	_, ok, err := s2.FindByKey(ctx, "keep")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), " ")
	assert.Error(t, err)
}

func TestExtractUp(t *testing.T) {
	got := extractUp("-- +migrate Up\nCREATE TABLE x (a INT);\n-- +migrate Down\nDROP TABLE x;\n")
	assert.Equal(t, "\nCREATE TABLE x (a INT);\n", got)
	assert.Equal(t, "SELECT 1;", extractUp("SELECT 1;"))
}

func TestStore_MemoryPath(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Upsert(ctx, store.Record{Name: "x", Template: "y"}))
	all, err := s.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
