package fifo

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLineSink_WriteLine(t *testing.T) {
	r, w := io.Pipe()
	sink := NewLineSink(w)
	go func() {
		_ = sink.WriteLine(context.Background(), "hello")
	}()

	scanner := LineLimitedScanner(r, 4096)
	require.True(t, scanner.Scan())
	require.Equal(t, "hello", scanner.Text())
}

func TestLineSource_ReadLine(t *testing.T) {
	r, w := io.Pipe()
	src := NewLineSource(r, 4096)

	go func() {
		_, _ = w.Write([]byte("first\nsecond\n"))
		w.Close()
	}()

	ctx := context.Background()
	line, err := src.ReadLine(ctx)
	require.NoError(t, err)
	require.Equal(t, "first", line)

	line, err = src.ReadLine(ctx)
	require.NoError(t, err)
	require.Equal(t, "second", line)

	_, err = src.ReadLine(ctx)
	require.ErrorIs(t, err, io.EOF)

	// subsequent reads keep returning the terminal error, not blocking forever.
	_, err = src.ReadLine(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestLineSource_ReadLineRespectsContextCancellation(t *testing.T) {
	r, _ := io.Pipe() // never written to
	src := NewLineSource(r, 4096)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := src.ReadLine(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
