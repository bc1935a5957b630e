package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Source is a readable capture descriptor owned by the parent.
type Source struct {
	Name string
	FD   int

	file   *os.File // keeps descriptors opened through os alive
	closed bool
}

func newFileSource(name string, f *os.File) *Source {
	// Fd switches the file to blocking mode, which the poll loop relies on.
	return &Source{Name: name, FD: int(f.Fd()), file: f}
}

// Close closes the descriptor. Closing twice is a no-op.
func (s *Source) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	if s.file != nil {
		return s.file.Close()
	}
	return unix.Close(s.FD)
}

// Child is a started program under test.
type Child struct {
	Pid     int
	Stdout  *Source
	Stderr  *Source
	Control *Source // nil without a control channel

	cmd    *exec.Cmd
	status *ExitStatus
}

// Sources returns the open capture descriptors, control first.
func (c *Child) Sources() []*Source {
	var out []*Source
	for _, s := range []*Source{c.Control, c.Stderr, c.Stdout} {
		if s != nil && !s.closed {
			out = append(out, s)
		}
	}
	return out
}

// Close releases all capture descriptors that are still open.
func (c *Child) Close() {
	for _, s := range []*Source{c.Control, c.Stderr, c.Stdout} {
		_ = s.Close()
	}
}

// Kill terminates the child, used when a run is aborted before the child
// closed its output.
func (c *Child) Kill() error {
	return c.cmd.Process.Kill()
}

// Wait blocks until the child terminates and reaps it. The child is reaped
// only once; later calls return the first result.
func (c *Child) Wait() (ExitStatus, error) {
	if c.status != nil {
		return *c.status, nil
	}
	err := c.cmd.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return ExitStatus{}, &ResourceError{Op: "waiting for child", Err: err}
	}
	ws, ok := c.cmd.ProcessState.Sys().(syscall.WaitStatus)
	if !ok {
		return ExitStatus{}, &ResourceError{Op: "waiting for child", Err: errors.New("unsupported wait status")}
	}
	st := StatusFromWait(ws)
	c.status = &st
	return st, nil
}
