// Package matchrunner drives the wire protocol between one running game
// server and its connected players until the server declares the match
// over, the server's connection is lost, or a global deadline fires.
package matchrunner

import (
	"context"
	"errors"
	"time"
)

// ErrProtocolError marks a fatal, unrecoverable violation of the wire
// protocol by the game server: an unrecognized command, a malformed timer,
// or an "over" line that doesn't carry a score per seat. Run returns it
// wrapped with additional context; callers should match it with errors.Is.
var ErrProtocolError = errors.New("match protocol error")

// LineSource is anything that yields one line at a time; satisfied by
// *fifo.LineSource in production and a channel-backed fake in tests.
type LineSource interface {
	ReadLine(ctx context.Context) (string, error)
}

// LineSink is anything that accepts one line at a time; satisfied by
// *fifo.LineSink in production and a channel-backed fake in tests.
type LineSink interface {
	WriteLine(ctx context.Context, line string) error
}

// Config mirrors the timing and tolerance knobs a deployment tunes per game.
type Config struct {
	SendTimeout        time.Duration
	SenderOpenTimeout  time.Duration
	PlayerReadyTimeout time.Duration
	KickForErrors      bool
	MaxPlayerErrors    int
	LineLengthLimit    int
	// GlobalDeadline is the hard ceiling on a match's wall-clock length,
	// regardless of how many timers the game server sets.
	GlobalDeadline time.Duration
}

// DefaultConfig returns conservative defaults suitable for most games.
func DefaultConfig() Config {
	return Config{
		SendTimeout:        5 * time.Second,
		SenderOpenTimeout:  10 * time.Second,
		PlayerReadyTimeout: 30 * time.Second,
		KickForErrors:      true,
		MaxPlayerErrors:    10,
		LineLengthLimit:    64 * 1024,
		GlobalDeadline:     24 * time.Hour,
	}
}

// Result is what a match produces: one score per seat (all taken from the
// server's "over" line; all nil when the match ends without one), the
// terminal reason, and any
// playererror/timeout messages collected along the way, attributed to the
// seat they belong to.
type Result struct {
	Scores []*float64
	Reason string
	Errors []PlayerError
}

// PlayerError attributes one error message to the seat it happened to, so
// it can be attached to that seat's match participation.
type PlayerError struct {
	PlayerID uint32
	Message  string
}

// Player is one seat's connection, known to the runner by its 1-based
// ingame index; index 0 is the game server on the wire.
type Player struct {
	ID     uint32
	Sink   LineSink
	Source LineSource

	ready        bool
	errors       []string
	kicked       bool
}
