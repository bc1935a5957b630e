// Package eventloop multiplexes the capture descriptors of the supervised
// program with poll(2) on a single goroutine until all of them are closed.
package eventloop

import (
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sys/unix"
)

// Drain consumes the bytes read from one descriptor. Reads go directly into
// Free(); Commit is called with the number of bytes read and EOF once the
// descriptor is exhausted.
type Drain interface {
	Free() []byte
	Commit(n int) error
	EOF() error
}

// Entry is one watched descriptor.
type Entry struct {
	Name   string
	FD     int
	Drain  Drain
	Closer io.Closer
}

// RuntimeIOError aborts a run after the child was started.
type RuntimeIOError struct {
	Op     string
	Stream string
	Err    error
}

func (e *RuntimeIOError) Error() string {
	if e.Stream == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Stream, e.Err)
}

func (e *RuntimeIOError) Unwrap() error { return e.Err }

// Loop owns the watched descriptors.
type Loop struct {
	entries []Entry
	logger  *slog.Logger
}

// New creates a loop over entries. A nil logger discards debug output.
func New(logger *slog.Logger, entries ...Entry) *Loop {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loop{entries: entries, logger: logger}
}

// Open returns the number of descriptors still watched.
func (l *Loop) Open() int {
	return len(l.entries)
}

// Run polls until every descriptor reported end-of-file. There is no timeout:
// a descriptor kept open by a grandchild keeps the loop waiting.
// On error the remaining descriptors are closed.
func (l *Loop) Run() error {
	defer l.closeAll()

	fds := make([]unix.PollFd, 0, len(l.entries))
	for len(l.entries) > 0 {
		fds = fds[:0]
		for _, e := range l.entries {
			fds = append(fds, unix.PollFd{Fd: int32(e.FD), Events: unix.POLLIN})
		}

		if _, err := unix.Poll(fds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return &RuntimeIOError{Op: "waiting for output", Err: err}
		}

		// walk backwards so removing an entry keeps the indices of fds valid
		for i := len(fds) - 1; i >= 0; i-- {
			if fds[i].Revents == 0 {
				continue
			}
			done, err := l.service(l.entries[i])
			if err != nil {
				return err
			}
			if done {
				l.remove(i)
			}
		}
	}
	return nil
}

// service performs one read on e and reports whether e reached end-of-file.
func (l *Loop) service(e Entry) (bool, error) {
	n, err := unix.Read(e.FD, e.Drain.Free())
	if err == unix.EINTR || err == unix.EAGAIN {
		return false, nil
	}
	if n > 0 {
		if err := e.Drain.Commit(n); err != nil {
			return false, &RuntimeIOError{Op: "processing", Stream: e.Name, Err: err}
		}
		return false, nil
	}

	// zero bytes is end-of-file; a pty reports EIO once the child is gone
	l.logger.Debug("Stream closed", "stream", e.Name, "error", err)
	if err := e.Drain.EOF(); err != nil {
		return true, &RuntimeIOError{Op: "processing", Stream: e.Name, Err: err}
	}
	if e.Closer != nil {
		if err := e.Closer.Close(); err != nil {
			l.logger.Warn("Failed to close stream", "stream", e.Name, "error", err)
		}
	}
	return true, nil
}

func (l *Loop) remove(i int) {
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
}

func (l *Loop) closeAll() {
	for _, e := range l.entries {
		if e.Closer != nil {
			_ = e.Closer.Close()
		}
	}
	l.entries = nil
}
