package scheduler

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"fairplay/internal/cache"
	"fairplay/internal/db"
	"fairplay/internal/store"
	"fairplay/pkg/models"
)

func newTestDeps(t *testing.T) *Deps {
	t.Helper()
	database, err := db.NewTestDatabase()
	require.NoError(t, err)
	return &Deps{
		Database: database,
		Files:    store.NewFileStore(database.DB),
		Rng:      rand.New(rand.NewSource(1)),
	}
}

func TestSchedulingRound_EnqueuesOneRunMatchPerActiveGame(t *testing.T) {
	ctx := context.Background()
	deps := newTestDeps(t)

	require.NoError(t, deps.Database.DB.Create(&models.Game{Name: "g1", Status: models.GameActive, MinPlayers: 2, MaxPlayers: 2}).Error)
	require.NoError(t, deps.Database.DB.Create(&models.Game{Name: "g2", Status: models.GameInactive, MinPlayers: 2, MaxPlayers: 2}).Error)

	require.NoError(t, schedulingRound(ctx, deps, DefaultConfig()))

	var items []models.WorkItem
	require.NoError(t, deps.Database.DB.Where("work_type = ?", models.WorkRunMatch).Find(&items).Error)
	require.Len(t, items, 1)

	// running it again must not duplicate the pending item.
	require.NoError(t, schedulingRound(ctx, deps, DefaultConfig()))
	require.NoError(t, deps.Database.DB.Where("work_type = ?", models.WorkRunMatch).Find(&items).Error)
	require.Len(t, items, 1)
}

func TestSchedulingRound_EnqueuesCompilationForNewPrograms(t *testing.T) {
	ctx := context.Background()
	deps := newTestDeps(t)

	require.NoError(t, deps.Database.DB.Create(&models.Program{Language: models.LanguageGo, Status: models.ProgramNew}).Error)

	require.NoError(t, schedulingRound(ctx, deps, DefaultConfig()))

	var items []models.WorkItem
	require.NoError(t, deps.Database.DB.Where("work_type = ?", models.WorkCompilation).Find(&items).Error)
	require.Len(t, items, 1)
	require.Equal(t, int64(10), items[0].Priority)
}

func TestClaimNextWorkItem_PrefersHigherPriorityThenOlder(t *testing.T) {
	ctx := context.Background()
	deps := newTestDeps(t)

	now := time.Now().UTC()
	low := models.WorkItem{CreationTime: now, WorkType: models.WorkRunMatch, Status: models.WorkScheduled, Priority: 0}
	high := models.WorkItem{CreationTime: now.Add(time.Second), WorkType: models.WorkCompilation, Status: models.WorkScheduled, Priority: 10}
	require.NoError(t, deps.Database.DB.Create(&low).Error)
	require.NoError(t, deps.Database.DB.Create(&high).Error)

	claimed, err := claimNextWorkItem(ctx, deps.Database.DB)
	require.NoError(t, err)
	require.Equal(t, high.ID, claimed.ID)
	require.Equal(t, models.WorkStarted, claimed.Status)
}

func TestClaimNextWorkItem_NoneScheduledReturnsRecordNotFound(t *testing.T) {
	ctx := context.Background()
	deps := newTestDeps(t)

	_, err := claimNextWorkItem(ctx, deps.Database.DB)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestLoadEligibleBots_NilCacheQueriesDatabase(t *testing.T) {
	ctx := context.Background()
	deps := newTestDeps(t)

	game := models.Game{Name: "g", Status: models.GameActive, MinPlayers: 2, MaxPlayers: 2}
	require.NoError(t, deps.Database.DB.Create(&game).Error)
	require.NoError(t, deps.Database.DB.Create(&models.Bot{Name: "b1", GameID: game.ID, OwnerSetStatus: models.OwnerSetActive, SystemStatus: models.SystemStatusOk}).Error)

	bots, err := loadEligibleBots(ctx, deps, game.ID)
	require.NoError(t, err)
	require.Len(t, bots, 1)
}

func TestLoadEligibleBots_UsesCacheOnSecondCall(t *testing.T) {
	ctx := context.Background()
	deps := newTestDeps(t)
	deps.Cache = cache.NewRedisCache(cache.DefaultCacheConfig())
	defer deps.Cache.Close()

	game := models.Game{Name: "g", Status: models.GameActive, MinPlayers: 2, MaxPlayers: 2}
	require.NoError(t, deps.Database.DB.Create(&game).Error)
	require.NoError(t, deps.Database.DB.Create(&models.Bot{Name: "b1", GameID: game.ID, OwnerSetStatus: models.OwnerSetActive, SystemStatus: models.SystemStatusOk}).Error)

	bots, err := loadEligibleBots(ctx, deps, game.ID)
	require.NoError(t, err)
	require.Len(t, bots, 1)

	// a bot added after the first (now cached) read is not visible until the
	// cache entry expires.
	require.NoError(t, deps.Database.DB.Create(&models.Bot{Name: "b2", GameID: game.ID, OwnerSetStatus: models.OwnerSetActive, SystemStatus: models.SystemStatusOk}).Error)
	bots, err = loadEligibleBots(ctx, deps, game.ID)
	require.NoError(t, err)
	require.Len(t, bots, 1)
}
