package procinfo

import (
	"fmt"
	"syscall"
)

// Signal represents a Unix signal
type Signal struct {
	Number      syscall.Signal
	Name        string
	Description string
}

var signals = []Signal{
	{Number: syscall.SIGHUP, Name: "SIGHUP", Description: "Hangup"},
	{Number: syscall.SIGINT, Name: "SIGINT", Description: "Interrupt"},
	{Number: syscall.SIGQUIT, Name: "SIGQUIT", Description: "Quit"},
	{Number: syscall.SIGILL, Name: "SIGILL", Description: "Illegal instruction"},
	{Number: syscall.SIGTRAP, Name: "SIGTRAP", Description: "Trace/breakpoint trap"},
	{Number: syscall.SIGABRT, Name: "SIGABRT", Description: "Aborted"},
	{Number: syscall.SIGBUS, Name: "SIGBUS", Description: "Bus error"},
	{Number: syscall.SIGFPE, Name: "SIGFPE", Description: "Floating point exception"},
	{Number: syscall.SIGKILL, Name: "SIGKILL", Description: "Killed"},
	{Number: syscall.SIGUSR1, Name: "SIGUSR1", Description: "User defined signal 1"},
	{Number: syscall.SIGSEGV, Name: "SIGSEGV", Description: "Segmentation fault"},
	{Number: syscall.SIGUSR2, Name: "SIGUSR2", Description: "User defined signal 2"},
	{Number: syscall.SIGPIPE, Name: "SIGPIPE", Description: "Broken pipe"},
	{Number: syscall.SIGALRM, Name: "SIGALRM", Description: "Alarm clock"},
	{Number: syscall.SIGTERM, Name: "SIGTERM", Description: "Terminated"},
	{Number: syscall.SIGCHLD, Name: "SIGCHLD", Description: "Child exited"},
	{Number: syscall.SIGCONT, Name: "SIGCONT", Description: "Continue"},
	{Number: syscall.SIGSTOP, Name: "SIGSTOP", Description: "Stopped"},
	{Number: syscall.SIGTSTP, Name: "SIGTSTP", Description: "Terminal stop"},
	{Number: syscall.SIGTTIN, Name: "SIGTTIN", Description: "Background read from tty"},
	{Number: syscall.SIGTTOU, Name: "SIGTTOU", Description: "Background write to tty"},
	{Number: syscall.SIGURG, Name: "SIGURG", Description: "Urgent I/O condition"},
	{Number: syscall.SIGXCPU, Name: "SIGXCPU", Description: "CPU time limit exceeded"},
	{Number: syscall.SIGXFSZ, Name: "SIGXFSZ", Description: "File size limit exceeded"},
	{Number: syscall.SIGVTALRM, Name: "SIGVTALRM", Description: "Virtual timer expired"},
	{Number: syscall.SIGPROF, Name: "SIGPROF", Description: "Profiling timer expired"},
	{Number: syscall.SIGWINCH, Name: "SIGWINCH", Description: "Window size changed"},
	{Number: syscall.SIGIO, Name: "SIGIO", Description: "I/O possible"},
	{Number: syscall.SIGSYS, Name: "SIGSYS", Description: "Bad system call"},
}

// LookupSignal returns the table entry for sig.
func LookupSignal(sig syscall.Signal) (Signal, bool) {
	for _, s := range signals {
		if s.Number == sig {
			return s, true
		}
	}
	return Signal{}, false
}

// SignalName formats sig for diagnostics, e.g. "SIGSEGV (Segmentation fault)".
func SignalName(sig syscall.Signal) string {
	if s, ok := LookupSignal(sig); ok {
		return fmt.Sprintf("%s (%s)", s.Name, s.Description)
	}
	return fmt.Sprintf("signal %d", int(sig))
}
