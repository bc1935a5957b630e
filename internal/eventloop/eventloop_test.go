package eventloop

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type collectDrain struct {
	buf     []byte
	got     []byte
	commits int
	eof     int
	err     error
}

func newCollectDrain(size int) *collectDrain {
	return &collectDrain{buf: make([]byte, size)}
}

func (d *collectDrain) Free() []byte { return d.buf }

func (d *collectDrain) Commit(n int) error {
	d.commits++
	d.got = append(d.got, d.buf[:n]...)
	return d.err
}

func (d *collectDrain) EOF() error {
	d.eof++
	return nil
}

type fdCloser struct {
	fd     int
	closed int
}

func (c *fdCloser) Close() error {
	c.closed++
	return unix.Close(c.fd)
}

// pipeWith returns the read end of a pipe that already holds data and whose
// write end is closed.
func pipeWith(t *testing.T, data string) (int, *fdCloser) {
	t.Helper()
	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_CLOEXEC))
	if data != "" {
		_, err := unix.Write(p[1], []byte(data))
		require.NoError(t, err)
	}
	require.NoError(t, unix.Close(p[1]))
	return p[0], &fdCloser{fd: p[0]}
}

func TestLoop_DrainsAllStreams(t *testing.T) {
	outFD, outCloser := pipeWith(t, "hello world\n")
	errFD, errCloser := pipeWith(t, "oops\n")
	emptyFD, emptyCloser := pipeWith(t, "")

	out := newCollectDrain(4)
	errd := newCollectDrain(64)
	empty := newCollectDrain(8)

	loop := New(nil,
		Entry{Name: "control", FD: emptyFD, Drain: empty, Closer: emptyCloser},
		Entry{Name: "stderr", FD: errFD, Drain: errd, Closer: errCloser},
		Entry{Name: "stdout", FD: outFD, Drain: out, Closer: outCloser},
	)
	require.Equal(t, 3, loop.Open())
	require.NoError(t, loop.Run())
	require.Equal(t, 0, loop.Open())

	require.Equal(t, "hello world\n", string(out.got))
	require.Equal(t, 3, out.commits)
	require.Equal(t, "oops\n", string(errd.got))
	require.Empty(t, empty.got)

	for _, d := range []*collectDrain{out, errd, empty} {
		require.Equal(t, 1, d.eof)
	}
	for _, c := range []*fdCloser{outCloser, errCloser, emptyCloser} {
		require.Equal(t, 1, c.closed)
	}
}

func TestLoop_NoEntries(t *testing.T) {
	require.NoError(t, New(nil).Run())
}

func TestLoop_CommitErrorAborts(t *testing.T) {
	aFD, aCloser := pipeWith(t, "data")
	bFD, bCloser := pipeWith(t, "more")

	broken := newCollectDrain(16)
	broken.err = errors.New("capture sink full")

	loop := New(nil,
		Entry{Name: "stdout", FD: aFD, Drain: broken, Closer: aCloser},
		Entry{Name: "stderr", FD: bFD, Drain: newCollectDrain(16), Closer: bCloser},
	)
	err := loop.Run()

	var ioErr *RuntimeIOError
	require.True(t, errors.As(err, &ioErr))
	require.Equal(t, "stdout", ioErr.Stream)
	require.ErrorIs(t, err, broken.err)

	require.Equal(t, 1, aCloser.closed)
	require.Equal(t, 1, bCloser.closed)
	require.Equal(t, 0, loop.Open())
}

func TestPassthroughAndTee(t *testing.T) {
	ctlFD, ctlCloser := pipeWith(t, "==1== valgrind says hi\n")
	outFD, outCloser := pipeWith(t, "line\n")

	var stderr, transcript bytes.Buffer
	inner := newCollectDrain(32)

	loop := New(nil,
		Entry{Name: "control", FD: ctlFD, Drain: &Passthrough{W: &stderr}, Closer: ctlCloser},
		Entry{Name: "stdout", FD: outFD, Drain: &Tee{Drain: inner, W: &transcript}, Closer: outCloser},
	)
	require.NoError(t, loop.Run())

	require.Equal(t, "==1== valgrind says hi\n", stderr.String())
	require.Equal(t, "line\n", transcript.String())
	require.Equal(t, "line\n", string(inner.got))
}
