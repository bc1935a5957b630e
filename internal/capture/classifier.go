package capture

import (
	"fmt"
	"io"

	"testtool/internal/rules"
)

// Class is the outcome of classifying one line.
type Class int

const (
	Expected Class = iota
	Ignored
	Normal // not covered by any rule, but the stream ignores unknown lines
	Unexpected
)

func (c Class) String() string {
	switch c {
	case Expected:
		return "EXPECTED"
	case Ignored:
		return "IGNORED"
	case Normal:
		return "NORMAL"
	case Unexpected:
		return "UNEXPECTED"
	default:
		return "UNKNOWN"
	}
}

// Marker is echoed after lines that did not end with a newline.
const Marker = " [UNTERMINATED/OVERLONG]\n"

// Classifier matches the lines of one stream against its rules, echoes them
// and copies stdout to the capture sink.
type Classifier struct {
	Stream rules.Stream
	Rules  *rules.StreamRules

	// Echo receives the lines, normally the engine's own stdout or stderr.
	Echo io.Writer
	// Quiet echoes only unexpected lines.
	Quiet bool
	// Annotate prefixes echoed lines with their class.
	Annotate bool
	// Capture receives a verbatim copy of stdout lines. Write errors are fatal.
	Capture io.Writer
}

var _ LineHandler = (*Classifier)(nil)

// Classify decides the class of line and updates the match and unexpected
// counters. Malformed lines never match a rule.
func (c *Classifier) Classify(line Line) Class {
	text := line.Data
	if n := len(text); n > 0 && text[n-1] == '\n' {
		text = text[:n-1]
	}

	if !line.Malformed {
		for _, check := range c.Rules.Expect {
			if check.Match(text) {
				check.Matches++
				return Expected
			}
		}
		for _, check := range c.Rules.Ignore {
			if check.Match(text) {
				check.Matches++
				return Ignored
			}
		}
	}

	if c.Rules.IgnoreUnknown {
		return Normal
	}
	c.Rules.Unexpected++
	return Unexpected
}

// HandleLine classifies line and performs the echo and capture side effects.
func (c *Classifier) HandleLine(line Line) error {
	class := c.Classify(line)

	if c.Echo != nil && (!c.Quiet || class == Unexpected) {
		if c.Annotate {
			_, _ = fmt.Fprintf(c.Echo, "%s(%d): ", class, c.Stream.FD())
		}
		_, _ = c.Echo.Write(line.Data)
		if line.End != Newline {
			_, _ = io.WriteString(c.Echo, Marker)
		}
	}

	if c.Stream == rules.Stdout && c.Capture != nil {
		n, err := c.Capture.Write(line.Data)
		if err == nil && n < len(line.Data) {
			err = io.ErrShortWrite
		}
		if err != nil {
			return fmt.Errorf("writing captured stdout: %w", err)
		}
	}
	return nil
}
