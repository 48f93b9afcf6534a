package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fairplay/pkg/models"
)

func TestCleanupMatchesForGame_KeepsNewestAndDeletesRest(t *testing.T) {
	ctx := context.Background()
	deps := newTestDeps(t)

	game := models.Game{Name: "g", Status: models.GameActive, MinPlayers: 2, MaxPlayers: 2}
	require.NoError(t, deps.Database.DB.Create(&game).Error)

	base := time.Now().UTC()
	var matchIDs []uint
	for i := 0; i < 5; i++ {
		end := base.Add(time.Duration(i) * time.Minute)
		m := models.Match{GameID: game.ID, CreationTime: base, StartTime: &base, EndTime: &end}
		require.NoError(t, deps.Database.DB.Create(&m).Error)
		matchIDs = append(matchIDs, m.ID)
		require.NoError(t, deps.Database.DB.Create(&models.MatchParticipation{MatchID: m.ID, BotID: 1, IngamePlayer: 1}).Error)
	}

	removed, err := cleanupMatchesForGame(ctx, deps, game.ID, 2, 100)
	require.NoError(t, err)
	require.Equal(t, 3, removed)

	var remaining []models.Match
	require.NoError(t, deps.Database.DB.Where("game_id = ?", game.ID).Find(&remaining).Error)
	require.Len(t, remaining, 2)
	// the two kept matches must be the two most recently ended.
	require.ElementsMatch(t, []uint{matchIDs[3], matchIDs[4]}, []uint{remaining[0].ID, remaining[1].ID})

	var participations int64
	require.NoError(t, deps.Database.DB.Model(&models.MatchParticipation{}).Where("match_id IN ?", matchIDs[:3]).Count(&participations).Error)
	require.Equal(t, int64(0), participations)
}

func TestCleanupMatchesForGame_RespectsPerPassLimit(t *testing.T) {
	ctx := context.Background()
	deps := newTestDeps(t)

	game := models.Game{Name: "g", Status: models.GameActive, MinPlayers: 2, MaxPlayers: 2}
	require.NoError(t, deps.Database.DB.Create(&game).Error)

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		end := base.Add(time.Duration(i) * time.Minute)
		m := models.Match{GameID: game.ID, CreationTime: base, StartTime: &base, EndTime: &end}
		require.NoError(t, deps.Database.DB.Create(&m).Error)
	}

	removed, err := cleanupMatchesForGame(ctx, deps, game.ID, 0, 2)
	require.NoError(t, err)
	require.Equal(t, 2, removed)
}
