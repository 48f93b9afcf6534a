// Package fifo creates and opens the named-pipe pairs used to talk to a
// sandboxed container's stdin/stdout. Opening a FIFO for writing blocks
// until a reader attaches; since the container may not have started its
// process yet, the sender side is opened non-blocking and retried until a
// reader appears or a deadline passes.
package fifo

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"
)

const mode = 0700

// senderOpenPollInterval is how often a non-blocking sender open is retried
// while the receiving end has not yet been opened by the container process.
const senderOpenPollInterval = 10 * time.Millisecond

// Create makes a FIFO at path, failing if one already exists.
func Create(path string) error {
	if err := syscall.Mkfifo(path, mode); err != nil {
		return fmt.Errorf("mkfifo %s: %w", path, err)
	}
	return nil
}

// OpenReceiver opens path for reading. The open blocks until a writer has
// opened the FIFO.
func OpenReceiver(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, os.ModeNamedPipe)
	if err != nil {
		return nil, fmt.Errorf("open receiver %s: %w", path, err)
	}
	return f, nil
}

// OpenSenderWithTimeout opens path for writing, polling on ENXIO (no reader
// yet attached) until one appears or ctx is done.
func OpenSenderWithTimeout(ctx context.Context, path string) (*os.File, error) {
	for {
		f, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, os.ModeNamedPipe)
		if err == nil {
			// Switch the descriptor back to blocking mode so subsequent
			// writes behave normally now that a reader is attached.
			if err := clearNonblock(f); err != nil {
				f.Close()
				return nil, err
			}
			return f, nil
		}
		if err != syscall.ENXIO {
			return nil, fmt.Errorf("open sender %s: %w", path, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("open sender %s: %w", path, ctx.Err())
		case <-time.After(senderOpenPollInterval):
		}
	}
}

func clearNonblock(f *os.File) error {
	return syscall.SetNonblock(int(f.Fd()), false)
}

// AgentIO pairs the stdin sink and stdout stream of one sandboxed process.
type AgentIO struct {
	TheirStdin  io.WriteCloser // we write, the container reads
	TheirStdout io.ReadCloser  // we read, the container writes
}

// Open opens both sides of an already-created FIFO pair. stdinPath's writer
// end is opened first with the poll/retry above, which succeeds once the
// container process has opened its stdin; stdoutPath is then opened for
// reading, which blocks until the container opens its stdout.
func Open(ctx context.Context, stdinPath, stdoutPath string) (*AgentIO, error) {
	stdin, err := OpenSenderWithTimeout(ctx, stdinPath)
	if err != nil {
		return nil, err
	}
	stdout, err := OpenReceiver(stdoutPath)
	if err != nil {
		stdin.Close()
		return nil, err
	}
	return &AgentIO{TheirStdin: stdin, TheirStdout: stdout}, nil
}

func (a *AgentIO) Close() error {
	err1 := a.TheirStdin.Close()
	err2 := a.TheirStdout.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// LineLimitedScanner wraps bufio.Scanner with a maximum line length,
// matching the stdio read caps enforced on every agent and the game server.
func LineLimitedScanner(r io.Reader, maxLineBytes int) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), maxLineBytes)
	return s
}

type lineRead struct {
	line string
	err  error
}

// LineSource delivers one line at a time from an underlying reader,
// context-aware so a caller can abandon a read without blocking forever
// on a stalled container.
type LineSource struct {
	ch chan lineRead
}

// NewLineSource starts a background scan of r and returns a LineSource
// that yields its lines. Scanning continues until r is exhausted or errors;
// after that every ReadLine call returns the same terminal error.
func NewLineSource(r io.Reader, maxLineBytes int) *LineSource {
	ls := &LineSource{ch: make(chan lineRead, 1)}
	go func() {
		scanner := LineLimitedScanner(r, maxLineBytes)
		for scanner.Scan() {
			ls.ch <- lineRead{line: scanner.Text()}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		for {
			ls.ch <- lineRead{err: err}
		}
	}()
	return ls
}

// ReadLine returns the next line, or an error (io.EOF once the source is
// exhausted), or ctx.Err() if ctx is done first.
func (l *LineSource) ReadLine(ctx context.Context) (string, error) {
	select {
	case r := <-l.ch:
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// LineSink writes one line at a time to an underlying writer.
type LineSink struct {
	w io.Writer
}

func NewLineSink(w io.Writer) *LineSink {
	return &LineSink{w: w}
}

// WriteLine writes line terminated with "\n". ctx is honored only in that
// callers are expected to race this against ctx.Done() themselves when the
// write might block on a full pipe; the underlying write itself is not
// cancelable.
func (s *LineSink) WriteLine(ctx context.Context, line string) error {
	_, err := fmt.Fprintf(s.w, "%s\n", line)
	return err
}
