package compiler

import (
	"context"
	"testing"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/stretchr/testify/require"

	"fairplay/internal/sandbox"
)

func TestContentKey_DeterministicAndLanguageScoped(t *testing.T) {
	source := []byte("print('hi')")
	k1 := contentKey(sandbox.LanguagePython, source)
	k2 := contentKey(sandbox.LanguagePython, source)
	require.Equal(t, k1, k2)

	k3 := contentKey(sandbox.LanguageGo, source)
	require.NotEqual(t, k1, k3)
}

func TestCache_EnsureCompiled_DiskCacheHitSkipsManager(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, nil, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	source := []byte("package main")
	key := contentKey(sandbox.LanguageGo, source)
	require.NoError(t, c.writeDiskCache(key, []byte("compiled-artifact")))

	result, err := c.EnsureCompiled(context.Background(), sandbox.LanguageGo, source)
	require.NoError(t, err)
	require.True(t, result.CacheHit)
	require.True(t, result.Succeeded)
	require.Equal(t, []byte("compiled-artifact"), result.Artifact)
}

func TestCache_EnsureCompiled_MemCacheHitSkipsDiskAndManager(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, nil, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	source := []byte("package main")
	key := contentKey(sandbox.LanguageGo, source)
	c.mem.Set(key, Result{Succeeded: true, Artifact: []byte("from-mem")}, ttlcache.NoTTL)

	result, err := c.EnsureCompiled(context.Background(), sandbox.LanguageGo, source)
	require.NoError(t, err)
	require.True(t, result.CacheHit)
	require.Equal(t, []byte("from-mem"), result.Artifact)
}
