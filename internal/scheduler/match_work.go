package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"fairplay/internal/cache"
	"fairplay/internal/fifo"
	"fairplay/internal/logging"
	"fairplay/internal/matchrunner"
	"fairplay/internal/metrics"
	"fairplay/internal/replay"
	"fairplay/internal/sandbox"
	"fairplay/pkg/models"
)

// eligibleBotsCacheTTL bounds how stale the matchmaker's view of a game's
// eligible bots can be; a bot flipping eligibility takes effect within one
// TTL window rather than immediately.
const eligibleBotsCacheTTL = 5 * time.Second

// runMatchWorkItem draws bots for item.GameID, runs their match end to end
// inside sandboxed containers, and persists the result.
func runMatchWorkItem(ctx context.Context, deps *Deps, item *models.WorkItem) error {
	if item.GameID == nil {
		return fmt.Errorf("run-match work item %d has no game", item.ID)
	}
	gameID := *item.GameID

	var game models.Game
	if err := deps.Database.DB.WithContext(ctx).First(&game, gameID).Error; err != nil {
		return fmt.Errorf("load game %d: %w", gameID, err)
	}

	eligible, err := loadEligibleBots(ctx, deps, gameID)
	if err != nil {
		return fmt.Errorf("list eligible bots: %w", err)
	}

	numPlayers, ok := PickNumPlayers(deps.Rng, game.MinPlayers, game.MaxPlayers, uint(len(eligible)))
	if !ok {
		return nil // not enough eligible bots right now; try again next round
	}

	var participations []models.MatchParticipation
	botIDs := make([]uint, len(eligible))
	for i, b := range eligible {
		botIDs[i] = b.ID
	}
	if err := deps.Database.DB.WithContext(ctx).
		Where("bot_id IN ?", botIDs).Find(&participations).Error; err != nil {
		return fmt.Errorf("load participation history: %w", err)
	}

	chosen := ChooseMatchForGame(deps.Rng, eligible, participations, numPlayers)

	match := models.Match{CreationTime: time.Now().UTC(), GameID: gameID}
	if err := deps.Database.DB.WithContext(ctx).Create(&match).Error; err != nil {
		return fmt.Errorf("create match: %w", err)
	}
	for i, bot := range chosen {
		// ingame_player is 1-based; seat 0 is reserved for the game server
		// itself in the wire protocol's agent numbering.
		if err := deps.Database.DB.WithContext(ctx).Create(&models.MatchParticipation{
			MatchID: match.ID, BotID: bot.ID, IngamePlayer: uint(i) + 1,
		}).Error; err != nil {
			return fmt.Errorf("create participation: %w", err)
		}
	}

	start := time.Now()
	result, replayLog, runErr := playMatch(ctx, deps, game, match, chosen)
	metrics.Get().RecordMatch(game.Name, time.Since(start))

	if replayLog == nil {
		// The match never reached the protocol phase (an agent failed to
		// start): nothing ran, so there is nothing to persist.
		return fmt.Errorf("play match %d: %w", match.ID, runErr)
	}

	if err := storeReplay(ctx, deps, match.ID, replayLog); err != nil {
		logging.L().Warn("failed to persist match replay", zap.Uint("match", match.ID), zap.Error(err))
	}

	if err := persistMatchResult(ctx, deps, match, chosen, result, runErr); err != nil {
		return fmt.Errorf("persist match %d result: %w", match.ID, err)
	}
	if runErr != nil {
		return fmt.Errorf("play match %d: %w", match.ID, runErr)
	}
	return nil
}

// loadEligibleBots reads a game's eligible bots through deps.Cache when one
// is configured, so a scheduling round running every few seconds doesn't
// re-scan the bots table on every tick; a nil Cache (e.g. in tests) just
// queries the database directly.
func loadEligibleBots(ctx context.Context, deps *Deps, gameID uint) ([]models.Bot, error) {
	query := func() ([]models.Bot, error) {
		var bots []models.Bot
		err := deps.Database.DB.WithContext(ctx).Preload("Program").
			Where("game_id = ? AND owner_set_status = ? AND system_status = ?", gameID, models.OwnerSetActive, models.SystemStatusOk).
			Find(&bots).Error
		return bots, err
	}

	if deps.Cache == nil {
		return query()
	}

	var bots []models.Bot
	err := deps.Cache.GetOrSetJSON(ctx, cache.EligibleBotsCacheKey(gameID), eligibleBotsCacheTTL, &bots, func() (interface{}, error) {
		return query()
	})
	return bots, err
}

func makeParam(template string, numPlayers int) string {
	return strings.ReplaceAll(template, "{num_players}", strconv.Itoa(numPlayers))
}

// playMatch starts the game server and every bot's container, wires them
// together through FIFOs, and drives the protocol to completion. It returns
// the gzip-compressed replay log alongside the result; the replay is
// produced (and should be persisted) even when the protocol ends in a fatal
// error, as long as the match runner actually started. A nil replay means
// the match never reached the protocol phase at all.
func playMatch(ctx context.Context, deps *Deps, game models.Game, match models.Match, chosen []models.Bot) (matchrunner.Result, []byte, error) {
	matchDir := filepath.Join(deps.Manager.MatchRunDir(), uuid.NewString())
	if err := os.MkdirAll(matchDir, 0o755); err != nil {
		return matchrunner.Result{}, nil, fmt.Errorf("create match dir: %w", err)
	}
	defer func() { _ = sandbox.DeleteDirIfSafe(matchDir) }()

	var serverProgram models.Program
	if err := deps.Database.DB.WithContext(ctx).First(&serverProgram, game.ProgramID).Error; err != nil {
		return matchrunner.Result{}, nil, fmt.Errorf("load server program: %w", err)
	}

	param := makeParam(game.Param, len(chosen))
	serverAgent, serverIO, err := startAgent(ctx, deps, matchDir, "server", sandbox.Language(serverProgram.Language), game.ProgramID, []string{param, "inlinevisualize"})
	if err != nil {
		return matchrunner.Result{}, nil, fmt.Errorf("start game server: %w", err)
	}
	defer deps.Manager.Stop(serverAgent)
	defer serverIO.raw.Close()

	players := make([]*matchrunner.Player, len(chosen))
	agents := make([]*sandbox.Agent, len(chosen))
	ios := make([]*agentIO, len(chosen))
	for i, bot := range chosen {
		agent, io, err := startAgent(ctx, deps, matchDir, fmt.Sprintf("player-%d", i), sandbox.Language(bot.Program.Language), bot.ProgramID, nil)
		if err != nil {
			for j := 0; j < i; j++ {
				deps.Manager.Stop(agents[j])
				ios[j].raw.Close()
			}
			return matchrunner.Result{}, nil, fmt.Errorf("start bot %d: %w", bot.ID, err)
		}
		agents[i] = agent
		ios[i] = io
		players[i] = &matchrunner.Player{ID: uint32(i) + 1, Sink: io.Sink, Source: io.Source}
	}
	defer func() {
		for i, a := range agents {
			deps.Manager.Stop(a)
			ios[i].raw.Close()
		}
	}()

	var logBuf bytes.Buffer
	logger := replay.NewLineLogger(nopWriteCloser{&logBuf})

	runner := matchrunner.New(matchrunner.DefaultConfig(), serverIO.Source, serverIO.Sink, players)
	runner.Logger = logger

	result, runErr := runner.Run(ctx)
	if err := logger.Close(); err != nil {
		logging.L().Warn("failed to close match replay log", zap.Uint("match", match.ID), zap.Error(err))
	}

	return result, logBuf.Bytes(), runErr
}

// nopWriteCloser adapts an in-memory buffer to io.WriteCloser so
// replay.NewLineLogger can write its gzip stream straight into it.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// agentIO bundles the line source/sink a match runner talks through, kept
// distinct from fifo.AgentIO so matchrunner never has to import fifo.
type agentIO struct {
	Source matchrunner.LineSource
	Sink   matchrunner.LineSink
	raw    *fifo.AgentIO
}

func startAgent(ctx context.Context, deps *Deps, matchDir, name string, lang sandbox.Language, programID uint, extraArgs []string) (*sandbox.Agent, *agentIO, error) {
	var program models.Program
	if err := deps.Database.DB.WithContext(ctx).First(&program, programID).Error; err != nil {
		return nil, nil, err
	}
	source, err := deps.Files.Read(ctx, models.OwningProgram, &programID, "source")
	if err != nil {
		return nil, nil, err
	}
	compiled, err := deps.Compiler.EnsureCompiled(ctx, lang, source)
	if err != nil {
		return nil, nil, err
	}
	if !compiled.Succeeded {
		return nil, nil, fmt.Errorf("program %d is not compiled", programID)
	}

	workspaceDir := filepath.Join(matchDir, name, "workspace")
	fifoDir := filepath.Join(matchDir, name, "fifo")
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(fifoDir, 0o755); err != nil {
		return nil, nil, err
	}

	artifactName, err := sandbox.ArtifactFilename(lang)
	if err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(filepath.Join(workspaceDir, artifactName), compiled.Artifact, 0o755); err != nil {
		return nil, nil, err
	}

	inPath := filepath.Join(fifoDir, "in")
	outPath := filepath.Join(fifoDir, "out")
	if err := fifo.Create(inPath); err != nil {
		return nil, nil, err
	}
	if err := fifo.Create(outPath); err != nil {
		return nil, nil, err
	}

	agent, err := deps.Manager.StartAgent(ctx, filepath.Base(matchDir), sandbox.AgentSpec{
		Name: name, Language: lang, WorkspaceDir: workspaceDir, FifoDir: fifoDir, ExtraArgs: extraArgs,
	})
	if err != nil {
		return nil, nil, err
	}

	raw, err := fifo.Open(ctx, inPath, outPath)
	if err != nil {
		deps.Manager.Stop(agent)
		return nil, nil, err
	}

	return agent, &agentIO{
		Source: fifo.NewLineSource(raw.TheirStdout, 64*1024),
		Sink:   fifo.NewLineSink(raw.TheirStdin),
		raw:    raw,
	}, nil
}

// storeReplay persists the match's gzip-compressed line log verbatim. The
// bytes are already a gzip stream (replay.LineLogger's own output), so the
// file store is asked not to compress them again; a reader gets the replay
// back exactly as the wire format describes it: a gzip-compressed byte
// stream, not a transparently-decompressed one.
func storeReplay(ctx context.Context, deps *Deps, matchID uint, gzippedLog []byte) error {
	if err := deps.Files.Write(ctx, models.OwningMatch, &matchID, "replay.log", models.FileKindMatchReplay, gzippedLog, false); err != nil {
		return err
	}
	deps.Archiver.MirrorAsync(fmt.Sprintf("replays/%d.log", matchID), gzippedLog)
	return nil
}

// persistMatchResult closes out the match row and, unless the protocol
// ended in a fatal error, attaches per-seat scores, player-error messages,
// and rolls stats forward. A fatal runErr still closes the match (so its
// replay remains associated with a terminal match) but leaves participation
// scores and stats snapshots untouched, matching the "no per-bot stats
// updated" contract for a protocol violation.
func persistMatchResult(ctx context.Context, deps *Deps, match models.Match, chosen []models.Bot, result matchrunner.Result, runErr error) error {
	return deps.Database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		match.StartTime = &match.CreationTime
		match.EndTime = &now
		if runErr != nil {
			match.SystemMessage = runErr.Error()
		} else {
			match.SystemMessage = result.Reason
		}
		if err := tx.Save(&match).Error; err != nil {
			return err
		}
		if runErr != nil {
			return nil
		}

		errorsByPlayer := make(map[uint32][]string)
		for _, e := range result.Errors {
			errorsByPlayer[e.PlayerID] = append(errorsByPlayer[e.PlayerID], e.Message)
		}

		for i, bot := range chosen {
			var score *float64
			if i < len(result.Scores) {
				score = result.Scores[i]
			}
			updates := map[string]interface{}{"score": score}
			if msgs, ok := errorsByPlayer[uint32(i)+1]; ok {
				joined := strings.Join(msgs, "; ")
				updates["system_message"] = &joined
			}
			if err := tx.Model(&models.MatchParticipation{}).
				Where("match_id = ? AND ingame_player = ?", match.ID, i+1).
				Updates(updates).Error; err != nil {
				return err
			}
			if err := updateStatsForBot(tx, bot.ID, match.ID, score); err != nil {
				return err
			}
		}
		return nil
	})
}

func updateStatsForBot(tx *gorm.DB, botID, matchID uint, score *float64) error {
	var prev models.StatsSnapshot
	err := tx.Where("bot_id = ? AND latest = ?", botID, true).First(&prev).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return err
	}

	next := models.StatsSnapshot{
		BotID:        botID,
		Latest:       true,
		UpdateTime:   time.Now().UTC(),
		MatchID:      &matchID,
		TotalScore:   prev.TotalScore,
		TotalMatches: prev.TotalMatches + 1,
	}
	if score != nil {
		next.TotalScore += *score
	}

	if prev.ID != 0 {
		if err := tx.Model(&prev).Update("latest", false).Error; err != nil {
			return err
		}
	}
	return tx.Create(&next).Error
}
