// Package outputtype guesses what kind of data a program writes to stdout,
// so a failed run can tell "wrong text" apart from "not text at all".
package outputtype

import (
	"bytes"
)

// OutputType is the detected kind of output.
type OutputType string

const (
	OutputTypeUnknown    OutputType = "unknown"
	OutputTypeBinary     OutputType = "binary"
	OutputTypeText       OutputType = "text"
	OutputTypeTerminal   OutputType = "terminal" // colours or cursor movement
	OutputTypeFullscreen OutputType = "fullscreen"
)

// Detector looks at the first lines of a stream. It is fed from the event
// loop goroutine only and needs no locking.
type Detector struct {
	detectedType    OutputType
	detectionReason string
	detected        bool
	seen            int
	lineCount       int
	maxBytes        int
	maxLines        int

	hasCursorMovement bool
	hasColorCodes     bool
}

// NewDetector creates a detector deciding after at most 8KB or 50 lines.
func NewDetector() *Detector {
	return &Detector{
		detectedType: OutputTypeUnknown,
		maxBytes:     8192,
		maxLines:     50,
	}
}

// AnalyzeLine feeds one line and reports whether the type is decided. Lines
// after the decision are ignored.
func (d *Detector) AnalyzeLine(line []byte) bool {
	if d.detected {
		return true
	}
	d.seen += len(line)
	d.lineCount++

	if isBinary(line) {
		return d.decide(OutputTypeBinary, "null bytes or high proportion of non-printable characters")
	}

	if bytes.Contains(line, []byte("\x1b[")) {
		switch {
		case containsAny(line, "\x1b[?1049h", "\x1b[?1047h", "\x1b[?47h"):
			return d.decide(OutputTypeFullscreen, "alternate screen buffer escape sequence")
		case containsAny(line, "\x1b[2J", "\x1b[3J"):
			return d.decide(OutputTypeFullscreen, "clear screen escape sequence")
		}
		if containsAny(line, "\x1b[H", "\x1b[A", "\x1b[B", "\x1b[C", "\x1b[D") || hasCSI(line, 'H') {
			d.hasCursorMovement = true
		}
		if hasCSI(line, 'm') {
			d.hasColorCodes = true
		}
	}

	if d.seen >= d.maxBytes || d.lineCount >= d.maxLines {
		d.Finish()
	}
	return d.detected
}

// Finish decides on whatever was seen so far. A stream that ended early is
// judged on its complete output.
func (d *Detector) Finish() {
	switch {
	case d.detected:
	case d.lineCount == 0:
		d.decide(OutputTypeUnknown, "no output")
	case d.hasColorCodes || d.hasCursorMovement:
		d.decide(OutputTypeTerminal, "ANSI colour codes or cursor movement")
	default:
		d.decide(OutputTypeText, "no terminal control sequences")
	}
}

func (d *Detector) decide(t OutputType, reason string) bool {
	d.detectedType = t
	d.detectionReason = reason
	d.detected = true
	return true
}

// GetDetectedType returns the detected type and reason
func (d *Detector) GetDetectedType() (OutputType, string) {
	return d.detectedType, d.detectionReason
}

func (d *Detector) IsDetected() bool {
	return d.detected
}

// isBinary reports a NUL byte, or more than 30% control bytes other than
// whitespace and ESC.
func isBinary(line []byte) bool {
	if len(line) == 0 {
		return false
	}
	nonPrintable := 0
	for _, b := range line {
		switch {
		case b == 0:
			return true
		case b < 32 && b != '\t' && b != '\n' && b != '\r' && b != 0x1b:
			nonPrintable++
		case b == 0x7f:
			nonPrintable++
		}
	}
	return float64(nonPrintable) > float64(len(line))*0.3
}

func containsAny(line []byte, seqs ...string) bool {
	for _, s := range seqs {
		if bytes.Contains(line, []byte(s)) {
			return true
		}
	}
	return false
}

// hasCSI looks for ESC [ followed by digits and semicolons and the final
// byte, e.g. "\x1b[31m" or "\x1b[12;4H".
func hasCSI(line []byte, final byte) bool {
	for {
		idx := bytes.Index(line, []byte("\x1b["))
		if idx < 0 {
			return false
		}
		j := idx + 2
		params := 0
		for j < len(line) && (line[j] >= '0' && line[j] <= '9' || line[j] == ';') {
			params++
			j++
		}
		if params > 0 && j < len(line) && line[j] == final {
			return true
		}
		line = line[idx+2:]
	}
}
