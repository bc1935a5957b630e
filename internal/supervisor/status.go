package supervisor

import (
	"fmt"
	"syscall"

	"testtool/internal/procinfo"
)

// ExitStatus is the decoded termination status of the child.
type ExitStatus struct {
	Exited   bool
	Code     int
	Signaled bool
	Signal   syscall.Signal
	Raw      syscall.WaitStatus
}

// StatusFromWait decodes a raw wait status.
func StatusFromWait(ws syscall.WaitStatus) ExitStatus {
	st := ExitStatus{Raw: ws}
	switch {
	case ws.Exited():
		st.Exited = true
		st.Code = ws.ExitStatus()
	case ws.Signaled():
		st.Signaled = true
		st.Signal = ws.Signal()
	}
	return st
}

// Exit returns the status of a normal exit with code.
func Exit(code int) ExitStatus {
	return ExitStatus{Exited: true, Code: code, Raw: syscall.WaitStatus(code << 8)}
}

// Killed returns the status of a termination by sig.
func Killed(sig syscall.Signal) ExitStatus {
	return ExitStatus{Signaled: true, Signal: sig, Raw: syscall.WaitStatus(sig)}
}

func (s ExitStatus) String() string {
	switch {
	case s.Exited:
		return fmt.Sprintf("exit status %d", s.Code)
	case s.Signaled:
		return "killed by " + procinfo.SignalName(s.Signal)
	default:
		return fmt.Sprintf("wait status %#x", uint32(s.Raw))
	}
}

// Disposition is the interpretation of an exit status against the expected
// exit code.
type Disposition int

const (
	Matched Disposition = iota
	Mismatch
	Signaled
	Abnormal
)

func (d Disposition) String() string {
	switch d {
	case Matched:
		return "matched"
	case Mismatch:
		return "mismatch"
	case Signaled:
		return "signaled"
	default:
		return "abnormal"
	}
}

// Interpret compares the status with the expected exit code.
func (s ExitStatus) Interpret(expected uint8) Disposition {
	switch {
	case s.Exited && s.Code == int(expected):
		return Matched
	case s.Exited:
		return Mismatch
	case s.Signaled:
		return Signaled
	default:
		return Abnormal
	}
}
