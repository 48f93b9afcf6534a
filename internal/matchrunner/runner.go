package matchrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fairplay/internal/logging"
	"fairplay/internal/replay"

	"go.uber.org/zap"
)

// Runner drives one match's protocol loop: a game server connected via
// LineSource/LineSink, and one LineSource/LineSink pair per player seat.
type Runner struct {
	cfg        Config
	gameSource LineSource
	gameSink   LineSink
	players    []*Player

	timers        *timerSet
	readyDeadline time.Time
	waitingReady  bool
	matchStart    time.Time

	// Logger, if set, receives every line crossing the wire for replay.
	Logger *replay.LineLogger
	// Events, if set, receives parsed "vis" payloads as timed replay events.
	Events *[]replay.TimedEvent
}

// New builds a Runner ready to drive the interactive phase of a match.
// Run sends the game server no startup lines such as "param ..." or
// "vis inline"; the scheduler passes the game's parameter string and
// "inlinevisualize" to the server as command-line arguments instead.
func New(cfg Config, gameSource LineSource, gameSink LineSink, players []*Player) *Runner {
	return &Runner{
		cfg:          cfg,
		gameSource:   gameSource,
		gameSink:     gameSink,
		players:      players,
		timers:       newTimerSet(),
		waitingReady: true,
	}
}

type msgKind int

const (
	msgGame msgKind = iota
	msgPlayer
)

type inbound struct {
	kind   msgKind
	player int
	line   string
	err    error
}

// Run drives the match to completion: either the game server declares it
// "over", the global deadline elapses, or the caller's context is canceled.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.GlobalDeadline)
	defer cancel()

	r.matchStart = time.Now()
	r.readyDeadline = r.matchStart.Add(r.cfg.PlayerReadyTimeout)

	inboundCh := make(chan inbound, 1)
	go pump(ctx, msgGame, 0, r.gameSource, inboundCh)
	for i, p := range r.players {
		go pump(ctx, msgPlayer, i, p.Source, inboundCh)
	}

	for {
		deadline := r.nextDeadline()
		timer := time.NewTimer(time.Until(deadline))

		select {
		case <-ctx.Done():
			timer.Stop()
			return r.finalResult("match exceeded its deadline"), nil

		case <-timer.C:
			if result, done := r.handleTimeout(ctx); done {
				return result, nil
			}

		case m := <-inboundCh:
			timer.Stop()
			if m.err != nil {
				if m.kind == msgGame {
					return r.finalResult(fmt.Sprintf("game server connection lost: %v", m.err)), nil
				}
				r.kickPlayer(ctx, m.player, fmt.Sprintf("connection lost: %v", m.err))
				continue
			}
			if m.kind == msgGame {
				result, done, err := r.handleGameMsg(ctx, m.line)
				if err != nil {
					return Result{}, err
				}
				if done {
					return result, nil
				}
			} else {
				r.handlePlayerMsg(ctx, m.player, m.line)
			}
		}
	}
}

func pump(ctx context.Context, kind msgKind, idx int, src LineSource, out chan<- inbound) {
	for {
		line, err := src.ReadLine(ctx)
		select {
		case out <- inbound{kind: kind, player: idx, line: line, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (r *Runner) nextDeadline() time.Time {
	if r.waitingReady {
		return r.readyDeadline
	}
	if !r.timers.Empty() {
		return r.timers.NextDeadline()
	}
	return time.Now().Add(r.cfg.GlobalDeadline)
}

func (r *Runner) handleTimeout(ctx context.Context) (Result, bool) {
	now := time.Now()
	if r.waitingReady && !now.Before(r.readyDeadline) {
		for i, p := range r.players {
			if !p.ready && !p.kicked {
				p.errors = append(p.errors, "timeout waiting for ready")
				r.kickPlayer(ctx, i, "did not send ready before the deadline")
			}
		}
		r.waitingReady = false
		r.sendStart(ctx)
		return Result{}, false
	}
	for _, id := range r.timers.PopDue(now) {
		r.sendToGame(ctx, fmt.Sprintf("timeout %d", id))
	}
	return Result{}, false
}

func (r *Runner) handleGameMsg(ctx context.Context, line string) (Result, bool, error) {
	r.logLine(replay.DirectionReceived, line)
	verb, rest := splitVerb(line)
	switch verb {
	case "timer":
		if err := r.handleTimer(rest); err != nil {
			return Result{}, true, err
		}
	case "over":
		result, err := r.handleOver(rest)
		if err != nil {
			return Result{}, true, err
		}
		return result, true, nil
	case "sendall":
		for i, p := range r.players {
			if !p.kicked && p.ready {
				r.sendToPlayer(ctx, i, rest)
			}
		}
	case "send":
		id, msg := splitVerb(rest)
		if idx, ok := r.playerIndex(id); ok {
			r.sendToPlayer(ctx, idx, msg)
		}
	case "playererror":
		r.handlePlayerError(ctx, rest)
	case "vis":
		r.handleVis(rest)
	default:
		return Result{}, true, fmt.Errorf("%w: unrecognized game command %q", ErrProtocolError, verb)
	}
	return Result{}, false, nil
}

func (r *Runner) handleTimer(rest string) error {
	idStr, durStr := splitVerb(rest)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return fmt.Errorf("%w: invalid timer id %q: %v", ErrProtocolError, idStr, err)
	}
	if id == 0 {
		return fmt.Errorf("%w: timer id should be > 0", ErrProtocolError)
	}
	durStr = strings.TrimSuffix(strings.TrimSpace(durStr), "ms")
	ms, err := strconv.ParseInt(durStr, 10, 64)
	if err != nil || ms < 0 {
		return fmt.Errorf("%w: invalid timer duration %q", ErrProtocolError, durStr)
	}
	r.timers.Arm(uint32(id), time.Duration(ms)*time.Millisecond)
	return nil
}

func (r *Runner) handleOver(rest string) (Result, error) {
	n := len(r.players)
	fields := strings.SplitN(rest, " ", n+1)
	if len(fields) < n {
		return Result{}, fmt.Errorf("%w: game server returned not enough scores", ErrProtocolError)
	}

	scores := make([]*float64, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return Result{}, fmt.Errorf("%w: failed to parse score %q: %v", ErrProtocolError, fields[i], err)
		}
		scores[i] = &v
	}
	reason := ""
	if len(fields) > n {
		reason = fields[n]
	}

	return Result{Scores: scores, Reason: reason, Errors: r.collectPlayerErrors()}, nil
}

// collectPlayerErrors flattens every seat's accumulated errors into a
// single attributed list, in seat order.
func (r *Runner) collectPlayerErrors() []PlayerError {
	var errs []PlayerError
	for _, p := range r.players {
		for _, e := range p.errors {
			errs = append(errs, PlayerError{PlayerID: p.ID, Message: e})
		}
	}
	return errs
}

func (r *Runner) handlePlayerError(ctx context.Context, rest string) {
	idStr, msg := splitVerb(rest)
	idx, ok := r.playerIndex(idStr)
	if !ok {
		return
	}
	p := r.players[idx]
	p.errors = append(p.errors, msg)
	if r.cfg.KickForErrors && len(p.errors) >= r.cfg.MaxPlayerErrors {
		r.kickPlayer(ctx, idx, "exceeded max player errors")
	}
}

func (r *Runner) handleVis(rest string) {
	var ev replay.Event
	if err := json.Unmarshal([]byte(rest), &ev); err != nil {
		logging.L().Warn("malformed vis event", zap.Error(err))
		return
	}
	if r.Events != nil {
		*r.Events = append(*r.Events, replay.TimedEvent{
			StartMillis: uint64(time.Since(r.matchStart).Milliseconds()),
			Event:       ev,
		})
	}
}

func (r *Runner) handlePlayerMsg(ctx context.Context, idx int, line string) {
	p := r.players[idx]
	r.logPlayerLine(idx, replay.DirectionReceived, line)

	if !p.ready {
		if strings.TrimSpace(line) != "ready" {
			return
		}
		p.ready = true
		if r.allReady() {
			r.waitingReady = false
			r.sendStart(ctx)
		}
		return
	}
	if p.kicked {
		return
	}
	r.sendToGame(ctx, fmt.Sprintf("recv %d %s", p.ID, line))
}

func (r *Runner) allReady() bool {
	for _, p := range r.players {
		if !p.ready && !p.kicked {
			return false
		}
	}
	return true
}

func (r *Runner) sendStart(ctx context.Context) {
	r.sendToGame(ctx, "start")
}

func (r *Runner) kickPlayer(ctx context.Context, idx int, reason string) {
	p := r.players[idx]
	if p.kicked {
		return
	}
	p.kicked = true
	r.sendToGame(ctx, fmt.Sprintf("dropped %d", p.ID))
	logging.L().Info("kicked player", zap.Uint32("player", p.ID), zap.String("reason", reason))
}

func (r *Runner) sendToGame(ctx context.Context, line string) {
	r.logLine(replay.DirectionSent, line)
	sendCtx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
	defer cancel()
	if err := r.gameSink.WriteLine(sendCtx, line); err != nil {
		logging.L().Warn("write to game server failed", zap.Error(err))
	}
}

func (r *Runner) sendToPlayer(ctx context.Context, idx int, line string) {
	p := r.players[idx]
	r.logPlayerLine(idx, replay.DirectionSent, line)
	sendCtx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
	defer cancel()
	if err := p.Sink.WriteLine(sendCtx, line); err != nil {
		logging.L().Warn("write to player failed", zap.Uint32("player", p.ID), zap.Error(err))
	}
}

func (r *Runner) playerIndex(idStr string) (int, bool) {
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, false
	}
	for i, p := range r.players {
		if p.ID == uint32(id) {
			return i, true
		}
	}
	return 0, false
}

func (r *Runner) logLine(dir replay.Direction, line string) {
	if r.Logger != nil {
		_ = r.Logger.Log(dir, line)
	}
}

func (r *Runner) logPlayerLine(idx int, dir replay.Direction, line string) {
	if r.Logger != nil {
		_ = r.Logger.Log(dir, fmt.Sprintf("[player %d] %s", r.players[idx].ID, line))
	}
}

func (r *Runner) finalResult(reason string) Result {
	n := len(r.players)
	return Result{Scores: make([]*float64, n), Reason: reason, Errors: r.collectPlayerErrors()}
}

// splitVerb splits "verb rest of line" on the first space. If there is no
// space, rest is empty.
func splitVerb(line string) (verb, rest string) {
	line = strings.TrimRight(line, "\r\n")
	idx := strings.IndexByte(line, ' ')
	if idx < 0 {
		return line, ""
	}
	return line[:idx], line[idx+1:]
}
