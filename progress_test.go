package ftpclient

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

func TestCopyChunks_Progress(t *testing.T) {
	t.Parallel()
	var seen []Progress
	var dst bytes.Buffer

	n, err := copyChunks(&dst, strings.NewReader("abcdefghij"), 4, dirReceive, 10, func(p Progress) bool {
		seen = append(seen, p)
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, "abcdefghij", dst.String())
	assert.Equal(t, []Progress{
		{DownloadNow: 4, DownloadTotal: 10},
		{DownloadNow: 8, DownloadTotal: 10},
		{DownloadNow: 10, DownloadTotal: 10},
	}, seen)
}

func TestCopyChunks_UploadCounters(t *testing.T) {
	t.Parallel()
	var last Progress
	_, err := copyChunks(io.Discard, strings.NewReader("12345"), 8, dirSend, 5, func(p Progress) bool {
		last = p
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, Progress{UploadNow: 5, UploadTotal: 5}, last)
}

func TestCopyChunks_Abort(t *testing.T) {
	t.Parallel()
	calls := 0
	n, err := copyChunks(io.Discard, strings.NewReader(strings.Repeat("x", 100)), 10, dirSend, 100, func(Progress) bool {
		calls++
		return calls == 2
	})
	assert.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, int64(20), n)
	assert.Equal(t, 2, calls)
}

func TestCopyChunks_LocalFailures(t *testing.T) {
	t.Parallel()
	var le *localError

	// Download: the sink is local.
	_, err := copyChunks(failingWriter{}, strings.NewReader("data"), 4, dirReceive, 0, nil)
	require.ErrorAs(t, err, &le)

	// Upload: the source is local.
	_, err = copyChunks(io.Discard, failingReader{}, 4, dirSend, 0, nil)
	require.ErrorAs(t, err, &le)

	// Download: a failing source is the network, not local.
	_, err = copyChunks(io.Discard, failingReader{}, 4, dirReceive, 0, nil)
	require.Error(t, err)
	assert.False(t, errors.As(err, &le))
}
