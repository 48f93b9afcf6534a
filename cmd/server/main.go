// Command server is the platform's single binary: it serves /healthz and
// /metrics over HTTP while the scheduler's background loops compile
// submissions and run matches.
package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"fairplay/internal/blobarchive"
	"fairplay/internal/cache"
	"fairplay/internal/compiler"
	"fairplay/internal/config"
	"fairplay/internal/db"
	"fairplay/internal/httpapi"
	"fairplay/internal/logging"
	"fairplay/internal/sandbox"
	"fairplay/internal/scheduler"
	"fairplay/internal/store"
)

func main() {
	_ = godotenv.Load()
	logging.Init()
	defer logging.Sync()
	log := logging.L()
	log.Info("starting fairplay", zap.String("environment", string(config.Current())))

	database, err := db.NewDatabase(dbConfigFromEnv())
	if err != nil {
		log.Fatal("database init failed", zap.Error(err))
	}
	defer database.Close()

	manager, err := sandbox.NewManager(sandboxConfigFromEnv())
	if err != nil {
		log.Fatal("sandbox manager init failed", zap.Error(err))
	}
	defer manager.Close()

	compileCache, err := compiler.New(envOr("COMPILE_CACHE_DIR", "/var/lib/fairplay/compile-cache"), manager, 10*time.Minute)
	if err != nil {
		log.Fatal("compile cache init failed", zap.Error(err))
	}
	defer compileCache.Close()

	files := store.NewFileStore(database.DB)

	var redisCache *cache.RedisCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisClient, err := cache.NewGoRedisClient(redisURL)
		if err != nil {
			log.Warn("redis unavailable, falling back to in-memory cache only", zap.Error(err))
			redisCache = cache.NewRedisCache(cache.DefaultCacheConfig())
		} else {
			redisCache = cache.NewRedisCacheWithClient(redisClient, cache.DefaultCacheConfig())
		}
	} else {
		redisCache = cache.NewRedisCache(cache.DefaultCacheConfig())
	}

	ctx, cancelArchiver := context.WithTimeout(context.Background(), 10*time.Second)
	archiver, err := blobarchive.New(ctx, os.Getenv("REPLAY_S3_BUCKET"))
	cancelArchiver()
	if err != nil {
		log.Warn("s3 replay archiver disabled", zap.Error(err))
	}

	deps := &scheduler.Deps{
		Database: database,
		Manager:  manager,
		Compiler: compileCache,
		Files:    files,
		Cache:    redisCache,
		Archiver: archiver,
		Rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	handle := scheduler.Start(scheduler.DefaultConfig(), deps)

	router := httpapi.NewRouter(database)
	addr := ":" + envOr("PORT", "8080")
	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		log.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	handle.Cancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if err := handle.Join(60 * time.Second); err != nil {
		log.Warn("scheduler loops did not stop cleanly", zap.Error(err))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func dbConfigFromEnv() *db.Config {
	cfg := db.DefaultConfig()
	cfg.Host = envOr("DB_HOST", cfg.Host)
	cfg.User = envOr("DB_USER", cfg.User)
	cfg.Password = envOr("DB_PASSWORD", cfg.Password)
	cfg.DBName = envOr("DB_NAME", cfg.DBName)
	if portStr := os.Getenv("DB_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Port = port
		}
	}
	return cfg
}

func sandboxConfigFromEnv() sandbox.Config {
	cfg := sandbox.DefaultConfig()
	cfg.DockerHost = os.Getenv("DOCKER_HOST")
	cfg.SecurityRuntime = os.Getenv("SANDBOX_RUNTIME")
	if cfg.SecurityRuntime == "" && config.IsProduction() {
		cfg.SecurityRuntime = "runsc"
	}
	cfg.CacheDir = envOr("SANDBOX_CACHE_DIR", cfg.CacheDir)
	cfg.MatchRunDir = envOr("SANDBOX_MATCH_RUN_DIR", cfg.MatchRunDir)
	return cfg
}
