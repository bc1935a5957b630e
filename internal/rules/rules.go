// Package rules compiles the rule document that tells testtool which output
// lines of the supervised program are expected, which are ignored, and which
// exit code the program has to return.
package rules

import "bytes"

// Stream identifies one of the two captured output channels.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// FD returns the descriptor number the stream is attached to in the child.
func (s Stream) FD() int {
	if s == Stdout {
		return 1
	}
	return 2
}

// LineCheck is one exact-match rule. Text never contains the line terminator.
type LineCheck struct {
	Text    []byte
	Matches int
}

// Match reports whether line (without terminator) equals the rule text.
func (c *LineCheck) Match(line []byte) bool {
	return len(line) == len(c.Text) && bytes.Equal(line, c.Text)
}

// Counters are the per-stream failure counters. They only ever grow.
type Counters struct {
	Unexpected int
	Overlong   int
	Malformed  int
}

// StreamRules holds the rules and counters of one stream.
type StreamRules struct {
	IgnoreUnknown bool
	Ignore        []*LineCheck
	Expect        []*LineCheck
	Counters
}

// RuleSet is the compiled rule document.
type RuleSet struct {
	Stdout       *StreamRules
	Stderr       *StreamRules
	ExpectedExit uint8
}

// New returns an empty rule set: every line is unexpected and exit code 0 is
// required.
func New() *RuleSet {
	return &RuleSet{
		Stdout: &StreamRules{},
		Stderr: &StreamRules{},
	}
}

// For returns the rules of the given stream.
func (rs *RuleSet) For(s Stream) *StreamRules {
	if s == Stdout {
		return rs.Stdout
	}
	return rs.Stderr
}

// Missed returns the expect rules of the stream that never matched, in
// registration order.
func (sr *StreamRules) Missed() []*LineCheck {
	var missed []*LineCheck
	for _, c := range sr.Expect {
		if c.Matches == 0 {
			missed = append(missed, c)
		}
	}
	return missed
}

// Reset clears all match counts and counters, keeping the rules. Used when the
// same rule set is applied to more than one transcript.
func (rs *RuleSet) Reset() {
	for _, sr := range []*StreamRules{rs.Stdout, rs.Stderr} {
		sr.Counters = Counters{}
		for _, c := range sr.Expect {
			c.Matches = 0
		}
		for _, c := range sr.Ignore {
			c.Matches = 0
		}
	}
}
