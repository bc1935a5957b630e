package run

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"testtool/internal/rules"
	"testtool/internal/supervisor"
	"testtool/internal/verdict"
	"testtool/pkg/outputlog"
	"testtool/pkg/outputtype"
)

// Replay verifies a recorded transcript against opts.Rules without starting
// anything. The recorded chunks go through the same reassembly and
// classification as live output, so a replay of an unchanged rule document
// reproduces the original verdict. Command, launcher and transcript options
// are ignored.
func Replay(src io.Reader, opts Options) *Report {
	opts.defaults()
	rep := &Report{Started: time.Now()}
	defer func() { rep.Finished = time.Now() }()

	rs, err := rules.Compile(opts.Rules)
	if err != nil {
		rep.Result = verdict.StartupFailed(fmt.Errorf("reading rules: %w", err))
		return rep
	}
	rep.Rules = rs

	detector := outputtype.NewDetector()
	stdout := newStreamDrain(rules.Stdout, rs, &opts, detector)
	stderr := newStreamDrain(rules.Stderr, rs, &opts, nil)

	var status *supervisor.ExitStatus
	reader := outputlog.NewOutputLogReader(src)
	for {
		chunk, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rep.Result = verdict.StartupFailed(fmt.Errorf("reading transcript: %w", err))
			return rep
		}

		switch chunk.Stream {
		case outputlog.StreamRun:
			rep.ID, rep.Argv = parseRunRecord(string(chunk.Line))
		case outputlog.StreamStdout:
			_, err = stdout.Write(chunk.Line)
		case outputlog.StreamStderr:
			_, err = stderr.Write(chunk.Line)
		case outputlog.StreamControl:
			_, _ = opts.Stderr.Write(chunk.Line)
		case outputlog.StreamExit:
			var st supervisor.ExitStatus
			st, err = ParseStatus(string(chunk.Line))
			status = &st
		}
		if err != nil {
			rep.Result = verdict.StartupFailed(fmt.Errorf("replaying %s: %w", chunk.Stream, err))
			return rep
		}
	}

	for _, r := range []interface{ EOF() error }{stdout, stderr} {
		if err := r.EOF(); err != nil {
			rep.Result = verdict.StartupFailed(fmt.Errorf("replaying: %w", err))
			return rep
		}
	}
	if status == nil {
		rep.Result = verdict.StartupFailed(errors.New("transcript has no exit record"))
		return rep
	}

	rep.setStdoutType(detector)

	program := "program"
	if len(rep.Argv) > 0 {
		program = rep.Argv[0]
	}
	rep.Result = verdict.Evaluate(rs, *status, program)
	return rep
}

// parseRunRecord splits "ID 'arg' 'arg'" as written by Execute. Arguments
// that themselves contain "' '" are not recovered exactly.
func parseRunRecord(s string) (string, []string) {
	id, rest, _ := strings.Cut(s, " ")
	rest = strings.TrimSpace(rest)
	if len(rest) < 2 || rest[0] != '\'' || rest[len(rest)-1] != '\'' {
		return id, nil
	}
	return id, strings.Split(rest[1:len(rest)-1], "' '")
}
