// Package supervisor starts the program under test with its stdout, stderr
// and the launcher control descriptor redirected into pipes, and reaps it.
package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

const (
	// DefaultLauncher is used when a launcher is requested without naming one.
	DefaultLauncher = "valgrind"
	// DefaultControlFD is the descriptor number of the control channel in the child.
	DefaultControlFD = 3
)

// Launcher describes an optional instrumentation program wrapping the command.
type Launcher struct {
	Enabled bool
	Program string // empty means DefaultLauncher with its log routed to the control fd
}

// BuildArgv returns the argument vector to execute and whether the control
// channel carries launcher output that has to be read.
func BuildArgv(command []string, l Launcher, controlFD int) ([]string, bool) {
	if !l.Enabled {
		return append([]string(nil), command...), false
	}
	if l.Program == "" {
		argv := []string{DefaultLauncher, "--log-fd=" + strconv.Itoa(controlFD)}
		return append(argv, command...), true
	}
	return append([]string{l.Program}, command...), false
}

// Options configure Start.
type Options struct {
	// ControlFD is the descriptor number the control channel gets in the child.
	ControlFD int
	// UseControl creates a real control pipe. Otherwise the child's control
	// descriptor is /dev/null.
	UseControl bool
	// PTY attaches the child's stdout to a pseudo-terminal in raw mode.
	PTY bool
	// Stdin is passed to the child; nil means the engine's own stdin.
	Stdin *os.File
	Env   []string
	Dir   string
}

// Start launches argv. On success the returned child owns the read ends of
// all capture channels; the parent's copies of the write ends are closed.
func Start(argv []string, opts Options) (*Child, error) {
	if len(argv) == 0 {
		return nil, &LaunchError{Err: errors.New("empty command")}
	}
	if opts.ControlFD == 0 {
		opts.ControlFD = DefaultControlFD
	}
	if opts.ControlFD < 3 {
		return nil, &ResourceError{Op: "configuring control channel", Err: fmt.Errorf("descriptor %d is reserved for stdio", opts.ControlFD)}
	}

	var (
		sources  []*Source
		parentWr []*os.File
	)
	fail := func(err error) (*Child, error) {
		for _, f := range parentWr {
			_ = f.Close()
		}
		for _, s := range sources {
			_ = s.Close()
		}
		return nil, err
	}

	var stdout *Source
	var stdoutW *os.File
	if opts.PTY {
		ptmx, tty, err := pty.Open()
		if err != nil {
			return fail(&ResourceError{Op: "opening pseudo-terminal", Err: err})
		}
		parentWr = append(parentWr, tty)
		stdout = newFileSource("stdout", ptmx)
		sources = append(sources, stdout)
		if _, err := term.MakeRaw(int(tty.Fd())); err != nil {
			return fail(&ResourceError{Op: "setting pseudo-terminal raw mode", Err: err})
		}
		stdoutW = tty
	} else {
		r, w, err := newPipe("stdout")
		if err != nil {
			return fail(err)
		}
		stdout, stdoutW = r, w
		sources = append(sources, r)
		parentWr = append(parentWr, w)
	}

	stderr, stderrW, err := newPipe("stderr")
	if err != nil {
		return fail(err)
	}
	sources = append(sources, stderr)
	parentWr = append(parentWr, stderrW)

	var control *Source
	var controlW *os.File
	if opts.UseControl {
		control, controlW, err = newPipe("control")
		if err != nil {
			return fail(err)
		}
		sources = append(sources, control)
	} else {
		controlW, err = os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			return fail(&ResourceError{Op: "opening " + os.DevNull, Err: err})
		}
	}
	parentWr = append(parentWr, controlW)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.Env = opts.Env
	cmd.Dir = opts.Dir
	// entry i becomes descriptor 3+i, nil entries are closed in the child
	cmd.ExtraFiles = make([]*os.File, opts.ControlFD-2)
	cmd.ExtraFiles[opts.ControlFD-3] = controlW

	// exec.Cmd reports a failed exec through its own close-on-exec status
	// pipe, so a launch failure never looks like the program's own exit.
	if err := cmd.Start(); err != nil {
		return fail(&LaunchError{Program: argv[0], Err: err})
	}

	for _, f := range parentWr {
		_ = f.Close()
	}

	slog.Debug("Started child", "pid", cmd.Process.Pid, "argv", argv, "control", opts.UseControl, "pty", opts.PTY)

	return &Child{
		Pid:     cmd.Process.Pid,
		Stdout:  stdout,
		Stderr:  stderr,
		Control: control,
		cmd:     cmd,
	}, nil
}

// newPipe creates a close-on-exec pipe. The read end stays a raw descriptor
// for the event loop, the write end is wrapped for exec.Cmd.
func newPipe(name string) (*Source, *os.File, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return nil, nil, &ResourceError{Op: "creating " + name + " pipe", Err: err}
	}
	return &Source{Name: name, FD: p[0]}, os.NewFile(uintptr(p[1]), name+"-capture"), nil
}
