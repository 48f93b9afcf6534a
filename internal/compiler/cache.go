// Package compiler memoizes compilation: the same source bytes for the
// same language always produce the same artifact, so a content-addressed
// cache lets a popular bot's source compile exactly once no matter how
// many programs reference it.
package compiler

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/crypto/blake2b"

	"fairplay/internal/metrics"
	"fairplay/internal/sandbox"
)

// Result is the outcome of ensuring a program is compiled, independent of
// whether it came from cache or a fresh build.
type Result struct {
	Succeeded bool
	Artifact  []byte
	BuildLog  string
	CacheHit  bool
}

// Cache wraps a sandbox.Manager with a two-tier cache: an in-process
// ttlcache for hot hashes, backed by a directory of artifacts on disk keyed
// by content hash so a restart doesn't force every bot to recompile.
type Cache struct {
	dir     string
	manager *sandbox.Manager
	mem     *ttlcache.Cache[string, Result]
}

// New creates a Cache rooted at dir, creating it if necessary. The
// in-memory layer holds entries for memTTL before they fall back to disk.
func New(dir string, manager *sandbox.Manager, memTTL time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create compile cache dir: %w", err)
	}
	mem := ttlcache.New[string, Result](ttlcache.WithTTL[string, Result](memTTL))
	go mem.Start()
	return &Cache{dir: dir, manager: manager, mem: mem}, nil
}

// Close stops the in-memory cache's janitor goroutine.
func (c *Cache) Close() {
	c.mem.Stop()
}

// contentKey returns the hex blake2b-256 digest of source, namespaced by
// language so the same bytes under a different language never collide.
func contentKey(lang sandbox.Language, source []byte) string {
	h := blake2b.Sum256(append([]byte(lang+":"), source...))
	return hex.EncodeToString(h[:])
}

// EnsureCompiled returns the compiled artifact for (lang, source), building
// it through the sandbox manager only on a full cache miss.
func (c *Cache) EnsureCompiled(ctx context.Context, lang sandbox.Language, source []byte) (Result, error) {
	key := contentKey(lang, source)

	if item := c.mem.Get(key); item != nil {
		r := item.Value()
		r.CacheHit = true
		metrics.Get().RecordCompile(true, 0)
		return r, nil
	}

	if artifact, ok := c.readDiskCache(key); ok {
		r := Result{Succeeded: true, Artifact: artifact, CacheHit: true}
		c.mem.Set(key, r, ttlcache.DefaultTTL)
		metrics.Get().RecordCompile(true, 0)
		return r, nil
	}

	start := time.Now()
	compiled, err := c.manager.Compile(ctx, lang, source)
	if err != nil {
		return Result{}, fmt.Errorf("compile: %w", err)
	}
	result := Result{Succeeded: compiled.Succeeded, Artifact: compiled.Artifact, BuildLog: compiled.BuildLog}
	metrics.Get().RecordCompile(false, time.Since(start))

	if result.Succeeded {
		if err := c.writeDiskCache(key, result.Artifact); err != nil {
			result.BuildLog += fmt.Sprintf("\n(cache write failed: %v)", err)
		}
		c.mem.Set(key, result, ttlcache.DefaultTTL)
	}
	return result, nil
}

func (c *Cache) diskPath(key string) string {
	return filepath.Join(c.dir, key[:2], key)
}

func (c *Cache) readDiskCache(key string) ([]byte, bool) {
	data, err := os.ReadFile(c.diskPath(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *Cache) writeDiskCache(key string, artifact []byte) error {
	path := c.diskPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, artifact, 0o644)
}
