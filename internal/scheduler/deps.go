package scheduler

import (
	"math/rand"

	"fairplay/internal/blobarchive"
	"fairplay/internal/cache"
	"fairplay/internal/compiler"
	"fairplay/internal/db"
	"fairplay/internal/sandbox"
	"fairplay/internal/store"
)

// Deps bundles everything the scheduler's loops need to reach the rest of
// the system, so each loop function can be tested against a fixture
// *Deps rather than a live Docker daemon and postgres instance.
type Deps struct {
	Database *db.Database
	Manager  *sandbox.Manager
	Compiler *compiler.Cache
	Files    *store.FileStore
	Cache    *cache.RedisCache // eligible-bots cache; may be nil
	Archiver *blobarchive.Archiver // optional S3 replay mirror; may be nil
	Rng      *rand.Rand
}
