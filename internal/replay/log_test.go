package replay

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }

func TestLineLogger_WritesGzippedLinesWithDirection(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLineLogger(nopWriteCloser{buf})

	require.NoError(t, logger.Log(DirectionSent, "ready"))
	require.NoError(t, logger.Log(DirectionReceived, "timer 0 1000ms"))
	require.NoError(t, logger.Close())

	r, err := gzip.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	raw, err := io.ReadAll(r)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "> ready")
	require.Contains(t, lines[1], "< timer 0 1000ms")
}
