package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"fairplay/internal/db"
	"fairplay/pkg/models"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	database, err := db.NewTestDatabase()
	require.NoError(t, err)
	return NewFileStore(database.DB)
}

func TestFileStore_WriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	programID := uint(1)

	content := []byte("package main\n\nfunc main() {}\n")
	require.NoError(t, s.Write(ctx, models.OwningProgram, &programID, "source", models.FileKindSourceCode, content, false))

	got, err := s.Read(ctx, models.OwningProgram, &programID, "source")
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestFileStore_GzipRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	matchID := uint(42)

	content := []byte(`{"events":[],"duration_millis":0}`)
	require.NoError(t, s.Write(ctx, models.OwningMatch, &matchID, "replay.json", models.FileKindMatchReplay, content, true))

	got, err := s.Read(ctx, models.OwningMatch, &matchID, "replay.json")
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestFileStore_WriteUpsertsOnConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	programID := uint(7)

	require.NoError(t, s.Write(ctx, models.OwningProgram, &programID, "source", models.FileKindSourceCode, []byte("v1"), false))
	require.NoError(t, s.Write(ctx, models.OwningProgram, &programID, "source", models.FileKindSourceCode, []byte("v2"), false))

	got, err := s.Read(ctx, models.OwningProgram, &programID, "source")
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), got)
}

func TestFileStore_ReadMissingReturnsError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	programID := uint(999)

	_, err := s.Read(ctx, models.OwningProgram, &programID, "source")
	require.Error(t, err)
}

func TestFileStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	programID := uint(3)

	require.NoError(t, s.Write(ctx, models.OwningProgram, &programID, "source", models.FileKindSourceCode, []byte("x"), false))
	require.NoError(t, s.Delete(ctx, models.OwningProgram, &programID, "source"))

	_, err := s.Read(ctx, models.OwningProgram, &programID, "source")
	require.Error(t, err)
}

func TestFileStore_NilOwningID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Write(ctx, models.OwningGame, nil, "rules.txt", models.FileKindStaticContent, []byte("global"), false))

	got, err := s.Read(ctx, models.OwningGame, nil, "rules.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("global"), got)
}
