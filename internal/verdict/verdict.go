// Package verdict folds the per-stream counters, unmet expectations and the
// child's exit status into the final outcome of a run.
package verdict

import (
	"fmt"

	"testtool/internal/rules"
	"testtool/internal/supervisor"
)

// Outcome is the overall result of a run.
type Outcome int

const (
	Success Outcome = iota
	TestFailure
	StartupError
)

// ExitCode maps the outcome to the process exit code of testtool.
func (o Outcome) ExitCode() int {
	return int(o)
}

func (o Outcome) String() string {
	switch o {
	case Success:
		return "SUCCESS"
	case TestFailure:
		return "TEST-FAILURE"
	default:
		return "STARTUP-ERROR"
	}
}

// StreamSummary is the verification state of one stream after the run.
type StreamSummary struct {
	Stream     rules.Stream
	Unexpected int
	Overlong   int
	Malformed  int
	Missed     []string
}

// Result is the verdict with its diagnostics, one line each.
type Result struct {
	Outcome  Outcome
	Messages []string
	Streams  []StreamSummary
	Status   *supervisor.ExitStatus
	Expected uint8
}

func (r *Result) fail(format string, args ...any) {
	if r.Outcome == Success {
		r.Outcome = TestFailure
	}
	r.Messages = append(r.Messages, fmt.Sprintf(format, args...))
}

// Evaluate inspects the rule set after the run together with the reaped
// child's status. program names the child in diagnostics.
func Evaluate(rs *rules.RuleSet, st supervisor.ExitStatus, program string) Result {
	res := Result{Outcome: Success, Status: &st, Expected: rs.ExpectedExit}
	for _, s := range []rules.Stream{rules.Stdout, rules.Stderr} {
		sr := rs.For(s)
		sum := StreamSummary{
			Stream:     s,
			Unexpected: sr.Unexpected,
			Overlong:   sr.Overlong,
			Malformed:  sr.Malformed,
		}
		for _, c := range sr.Missed() {
			sum.Missed = append(sum.Missed, string(c.Text))
		}
		res.Streams = append(res.Streams, sum)
	}
	out, errs := rs.Stdout, rs.Stderr

	if out.Unexpected > 0 || errs.Unexpected > 0 {
		res.fail("%d unexpected line(s) on stdout and %d on stderr", out.Unexpected, errs.Unexpected)
	}
	if out.Overlong > 0 || errs.Overlong > 0 {
		res.fail("%d overlong line(s) on stdout and %d on stderr", out.Overlong, errs.Overlong)
	}
	if out.Malformed > 0 || errs.Malformed > 0 {
		res.fail("%d malformed line(s) on stdout and %d on stderr", out.Malformed, errs.Malformed)
	}
	for _, sum := range res.Streams {
		for _, text := range sum.Missed {
			res.fail("missed expected %s line: %q", sum.Stream, text)
		}
	}

	switch st.Interpret(rs.ExpectedExit) {
	case supervisor.Mismatch:
		res.fail("got returncode %d instead of expected %d", st.Code, rs.ExpectedExit)
	case supervisor.Signaled, supervisor.Abnormal:
		res.fail("abnormal termination of %s: %s", program, st)
	}
	return res
}

// StartupFailed is the verdict when the run could not be carried out: the
// rules did not compile, the program could not be started, or I/O failed.
// Verification diagnostics are not produced.
func StartupFailed(err error) Result {
	return Result{Outcome: StartupError, Messages: []string{err.Error()}}
}
