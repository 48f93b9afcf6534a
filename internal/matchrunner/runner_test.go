package matchrunner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLine is an in-memory LineSource/LineSink pair for tests, avoiding any
// real FIFO or container.
type fakeLine struct {
	in  chan string
	out chan string
}

func newFakeLine() *fakeLine {
	return &fakeLine{in: make(chan string, 32), out: make(chan string, 32)}
}

func (f *fakeLine) ReadLine(ctx context.Context) (string, error) {
	select {
	case l := <-f.in:
		return l, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeLine) WriteLine(ctx context.Context, line string) error {
	select {
	case f.out <- line:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PlayerReadyTimeout = 2 * time.Second
	cfg.SendTimeout = time.Second
	cfg.GlobalDeadline = 5 * time.Second
	return cfg
}

func TestRunner_HappyPath(t *testing.T) {
	game := newFakeLine()
	p0 := newFakeLine()
	p1 := newFakeLine()

	players := []*Player{
		{ID: 0, Sink: p0, Source: p0},
		{ID: 1, Sink: p1, Source: p1},
	}
	r := New(testConfig(), game, game, players)

	done := make(chan Result, 1)
	go func() {
		result, err := r.Run(context.Background())
		require.NoError(t, err)
		done <- result
	}()

	p0.in <- "ready"
	p1.in <- "ready"

	assert.Equal(t, "start", <-game.out)

	p0.in <- "move north"
	assert.Equal(t, "recv 0 move north", <-game.out)

	game.in <- "timer 7 100ms"
	game.in <- "send 1 your turn"
	assert.Equal(t, "your turn", <-p1.out)

	game.in <- "over 1 0 clean win"

	result := <-done
	require.Len(t, result.Scores, 2)
	require.NotNil(t, result.Scores[0])
	require.NotNil(t, result.Scores[1])
	assert.Equal(t, 1.0, *result.Scores[0])
	assert.Equal(t, 0.0, *result.Scores[1])
	assert.Equal(t, "clean win", result.Reason)
}

func TestRunner_KicksPlayerNotReadyInTime(t *testing.T) {
	game := newFakeLine()
	p0 := newFakeLine()
	p1 := newFakeLine()

	players := []*Player{
		{ID: 0, Sink: p0, Source: p0},
		{ID: 1, Sink: p1, Source: p1},
	}
	cfg := testConfig()
	cfg.PlayerReadyTimeout = 50 * time.Millisecond
	r := New(cfg, game, game, players)

	done := make(chan Result, 1)
	go func() {
		result, _ := r.Run(context.Background())
		done <- result
	}()

	p0.in <- "ready"
	assert.Equal(t, "dropped 1", <-game.out)
	assert.Equal(t, "start", <-game.out)

	game.in <- "over 1 0 player 1 never readied up"
	result := <-done
	assert.Equal(t, "player 1 never readied up", result.Reason)
}

func TestRunner_PlayerErrorsCauseKick(t *testing.T) {
	game := newFakeLine()
	p0 := newFakeLine()

	players := []*Player{{ID: 0, Sink: p0, Source: p0}}
	cfg := testConfig()
	cfg.MaxPlayerErrors = 2
	r := New(cfg, game, game, players)

	done := make(chan Result, 1)
	go func() {
		result, _ := r.Run(context.Background())
		done <- result
	}()

	p0.in <- "ready"
	assert.Equal(t, "start", <-game.out)

	game.in <- "playererror 0 bad move"
	game.in <- "playererror 0 bad move again"
	assert.Equal(t, "dropped 0", <-game.out)

	game.in <- "over 0 forfeit"
	result := <-done
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "forfeit", result.Reason)
}

func TestRunner_UnrecognizedCommandIsProtocolError(t *testing.T) {
	game := newFakeLine()
	p0 := newFakeLine()

	players := []*Player{{ID: 0, Sink: p0, Source: p0}}
	r := New(testConfig(), game, game, players)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background())
		done <- err
	}()

	p0.in <- "ready"
	assert.Equal(t, "start", <-game.out)

	game.in <- "badverb foo"

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocolError)
}

func TestRunner_TimerZeroIsProtocolError(t *testing.T) {
	game := newFakeLine()
	p0 := newFakeLine()

	players := []*Player{{ID: 0, Sink: p0, Source: p0}}
	r := New(testConfig(), game, game, players)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background())
		done <- err
	}()

	p0.in <- "ready"
	assert.Equal(t, "start", <-game.out)

	game.in <- "timer 0 100ms"

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocolError)
}

func TestRunner_OverWithTooFewScoresIsProtocolError(t *testing.T) {
	game := newFakeLine()
	p0 := newFakeLine()
	p1 := newFakeLine()

	players := []*Player{
		{ID: 0, Sink: p0, Source: p0},
		{ID: 1, Sink: p1, Source: p1},
	}
	r := New(testConfig(), game, game, players)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background())
		done <- err
	}()

	p0.in <- "ready"
	p1.in <- "ready"
	assert.Equal(t, "start", <-game.out)

	game.in <- "over 1"

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocolError)
}
