package rules

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CompileError describes a malformed rule document.
type CompileError struct {
	Line int
	Msg  string
	Err  error
}

func (e *CompileError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("rules: %s", e.Msg)
	}
	return fmt.Sprintf("rules line %d: %s", e.Line, e.Msg)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Compile reads a rule document until EOF and compiles it.
//
// Lines end with '\n' or '\0'. A document that ends with an unterminated
// partial line is rejected; an empty document yields an empty rule set.
func Compile(r io.Reader) (*RuleSet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &CompileError{Msg: "reading rule document", Err: err}
	}

	rs := New()
	current := rs.Stderr
	lineNo := 0
	for len(data) > 0 {
		lineNo++
		end := bytes.IndexAny(data, "\n\x00")
		if end < 0 {
			return nil, &CompileError{Line: lineNo, Msg: "unterminated last line"}
		}
		line := data[:end]
		data = data[end+1:]

		if len(bytes.TrimSpace(line)) == 0 || line[0] == '#' {
			continue
		}

		switch line[0] {
		case 's':
			sr, ignoreUnknown, err := selectStream(rs, line)
			if err != nil {
				return nil, &CompileError{Line: lineNo, Msg: err.Error()}
			}
			current = sr
			if ignoreUnknown {
				current.IgnoreUnknown = true
			}
		case 'r':
			code, err := parseReturn(line)
			if err != nil {
				return nil, &CompileError{Line: lineNo, Msg: err.Error(), Err: err}
			}
			rs.ExpectedExit = code
		case '=':
			current.Ignore = append(current.Ignore, newLineCheck(line[1:]))
		case '*':
			if len(line) < 2 || line[1] != '=' {
				return nil, &CompileError{Line: lineNo, Msg: fmt.Sprintf("expected '*=' but got %q", line)}
			}
			current.Expect = append(current.Expect, newLineCheck(line[2:]))
		default:
			return nil, &CompileError{Line: lineNo, Msg: fmt.Sprintf("unknown directive %q", line[0])}
		}
	}
	return rs, nil
}

func newLineCheck(text []byte) *LineCheck {
	return &LineCheck{Text: bytes.Clone(text)}
}

func selectStream(rs *RuleSet, line []byte) (*StreamRules, bool, error) {
	token := strings.TrimRight(string(line), " \t\r\v\f")
	ignoreUnknown := strings.HasSuffix(token, "*")
	switch strings.TrimSuffix(token, "*") {
	case "stdout":
		return rs.Stdout, ignoreUnknown, nil
	case "stderr":
		return rs.Stderr, ignoreUnknown, nil
	}
	return nil, false, fmt.Errorf("unknown stream selector %q", token)
}

// parseReturn accepts any prefix of "returns" followed by an optional space
// and an integer in C notation (decimal, 0x hex or 0 octal).
func parseReturn(line []byte) (uint8, error) {
	const word = "returns"
	i := 1
	for i < len(line) && i < len(word) && line[i] == word[i] {
		i++
	}
	value := strings.TrimSpace(string(line[i:]))
	if value == "" {
		return 0, fmt.Errorf("missing exit code in %q", line)
	}
	n, err := strconv.ParseInt(value, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid exit code %q: %w", value, err)
	}
	if n < 0 || n > 255 {
		return 0, fmt.Errorf("exit code %d out of range 0-255", n)
	}
	return uint8(n), nil
}
