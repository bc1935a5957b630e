package run

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"testtool/internal/supervisor"
)

// FormatStatus encodes an exit status for the transcript exit record:
// "exit N", "signal N" or "status 0xN".
func FormatStatus(st supervisor.ExitStatus) string {
	switch {
	case st.Exited:
		return fmt.Sprintf("exit %d", st.Code)
	case st.Signaled:
		return fmt.Sprintf("signal %d", int(st.Signal))
	default:
		return fmt.Sprintf("status %#x", uint32(st.Raw))
	}
}

// ParseStatus decodes an exit record written by FormatStatus.
func ParseStatus(s string) (supervisor.ExitStatus, error) {
	kind, value, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return supervisor.ExitStatus{}, fmt.Errorf("invalid exit record %q", s)
	}
	n, err := strconv.ParseUint(value, 0, 32)
	if err != nil {
		return supervisor.ExitStatus{}, fmt.Errorf("invalid exit record %q: %w", s, err)
	}
	switch kind {
	case "exit":
		if n > 255 {
			return supervisor.ExitStatus{}, fmt.Errorf("exit code out of range in %q", s)
		}
		return supervisor.Exit(int(n)), nil
	case "signal":
		return supervisor.Killed(syscall.Signal(n)), nil
	case "status":
		return supervisor.StatusFromWait(syscall.WaitStatus(n)), nil
	default:
		return supervisor.ExitStatus{}, fmt.Errorf("invalid exit record %q", s)
	}
}

// OpenRules opens the rule document: the file at path if given, otherwise
// the inherited descriptor fd.
func OpenRules(path string, fd int) (io.ReadCloser, error) {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("reading rules: %w", err)
		}
		return f, nil
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("reading rules from descriptor %d: %w", fd, err)
	}
	return os.NewFile(uintptr(fd), "rules"), nil
}
