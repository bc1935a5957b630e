// Package run carries out one supervised test run: it compiles the rules,
// starts the program, drains its output through the classifiers and turns
// the result into a verdict.
package run

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"testtool/internal/capture"
	"testtool/internal/eventloop"
	"testtool/internal/procinfo"
	"testtool/internal/rules"
	"testtool/internal/supervisor"
	"testtool/internal/verdict"
	"testtool/pkg/outputlog"
	"testtool/pkg/outputtype"
)

// Options configure a run.
type Options struct {
	// Command is the program under test followed by its arguments.
	Command []string
	// Rules is the rule document.
	Rules io.Reader

	Launcher  supervisor.Launcher
	ControlFD int
	LineLimit int
	PTY       bool

	Quiet    bool
	Annotate bool
	Echo     bool

	// Stdout and Stderr are the engine's own output streams. nil means
	// os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
	// Capture receives a copy of the child's stdout lines.
	Capture io.Writer
	// Transcript records the raw output of the run for later replay.
	Transcript io.Writer

	Stdin *os.File
	Env   []string
	Dir   string

	Logger *slog.Logger
}

// Report is everything known about a finished run.
type Report struct {
	ID       string
	Argv     []string
	Child    *procinfo.Info
	Started  time.Time
	Finished time.Time
	Rules    *rules.RuleSet
	Result   verdict.Result

	// StdoutType is a guess at what the child wrote to stdout.
	StdoutType       outputtype.OutputType
	StdoutTypeReason string
}

func (r *Report) setStdoutType(d *outputtype.Detector) {
	d.Finish()
	r.StdoutType, r.StdoutTypeReason = d.GetDetectedType()
}

// PrintDiagnostics writes the verdict messages, one per line, each prefixed
// with prog.
func (r *Report) PrintDiagnostics(w io.Writer, prog string) {
	for _, msg := range r.Result.Messages {
		_, _ = fmt.Fprintf(w, "%s: %s\n", prog, msg)
	}
}

func (o *Options) defaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.ControlFD == 0 {
		o.ControlFD = supervisor.DefaultControlFD
	}
	if o.LineLimit == 0 {
		o.LineLimit = capture.DefaultLineLimit
	}
}

// Execute performs the run. It never returns an error: failures before or
// during the run become a StartupError verdict.
func Execute(opts Options) *Report {
	opts.defaults()
	rep := &Report{ID: uuid.New().String(), Started: time.Now()}
	defer func() { rep.Finished = time.Now() }()

	logger := opts.Logger.With("run", rep.ID)

	if len(opts.Command) == 0 {
		rep.Result = verdict.StartupFailed(errors.New("no program given"))
		return rep
	}

	rs, err := rules.Compile(opts.Rules)
	if err != nil {
		rep.Result = verdict.StartupFailed(fmt.Errorf("reading rules: %w", err))
		return rep
	}
	rep.Rules = rs

	argv, useControl := supervisor.BuildArgv(opts.Command, opts.Launcher, opts.ControlFD)
	rep.Argv = argv
	if opts.Echo {
		_, _ = fmt.Fprintln(opts.Stdout, QuoteArgv(argv))
	}

	var transcript *outputlog.OutputLogIoWriter
	if opts.Transcript != nil {
		transcript = outputlog.NewOutputLogWriter(opts.Transcript, logger)
		transcript.Channel() <- outputlog.Chunk{
			Stream:    outputlog.StreamRun,
			Timestamp: rep.Started.UTC(),
			Line:      []byte(rep.ID + " " + QuoteArgv(argv)),
		}
	}
	closeTranscript := func() {
		if transcript == nil {
			return
		}
		if err := transcript.Close(); err != nil {
			logger.Warn("Transcript is incomplete", "error", err)
		}
		transcript = nil
	}
	defer closeTranscript()

	child, err := supervisor.Start(argv, supervisor.Options{
		ControlFD:  opts.ControlFD,
		UseControl: useControl,
		PTY:        opts.PTY,
		Stdin:      opts.Stdin,
		Env:        opts.Env,
		Dir:        opts.Dir,
	})
	if err != nil {
		rep.Result = verdict.StartupFailed(err)
		return rep
	}

	if info, err := procinfo.Describe(int32(child.Pid)); err == nil {
		rep.Child = info
		logger.Debug("Child running", "process", info.String(), "status", info.Status)
	} else {
		logger.Debug("Could not describe child", "pid", child.Pid, "error", err)
	}

	detector := outputtype.NewDetector()
	loop := eventloop.New(logger, entries(child, rs, &opts, transcript, detector)...)
	if err := loop.Run(); err != nil {
		logger.Debug("Aborting run", "error", err)
		child.Close()
		_ = child.Kill()
		_, _ = child.Wait()
		rep.Result = verdict.StartupFailed(err)
		return rep
	}

	st, err := child.Wait()
	if err != nil {
		rep.Result = verdict.StartupFailed(err)
		return rep
	}
	if transcript != nil {
		transcript.Channel() <- outputlog.Chunk{
			Stream:    outputlog.StreamExit,
			Timestamp: time.Now().UTC(),
			Line:      []byte(FormatStatus(st)),
		}
	}
	logger.Debug("Child finished", "status", st.String())
	rep.setStdoutType(detector)

	rep.Result = verdict.Evaluate(rs, st, opts.Command[0])
	return rep
}

// entries builds the event loop entries of child: the control channel is
// passed through to the engine's stderr, stdout and stderr are reassembled
// into lines and classified.
func entries(child *supervisor.Child, rs *rules.RuleSet, opts *Options, transcript *outputlog.OutputLogIoWriter, detector *outputtype.Detector) []eventloop.Entry {
	var out []eventloop.Entry
	for _, src := range child.Sources() {
		var drain eventloop.Drain
		stream := outputlog.StreamControl
		switch src {
		case child.Control:
			drain = &eventloop.Passthrough{W: opts.Stderr}
		case child.Stdout:
			drain = newStreamDrain(rules.Stdout, rs, opts, detector)
			stream = outputlog.StreamStdout
		case child.Stderr:
			drain = newStreamDrain(rules.Stderr, rs, opts, nil)
			stream = outputlog.StreamStderr
		}
		if transcript != nil {
			drain = &eventloop.Tee{Drain: drain, W: transcript.StreamWriter(stream)}
		}
		out = append(out, eventloop.Entry{Name: src.Name, FD: src.FD, Drain: drain, Closer: src})
	}
	return out
}

func newStreamDrain(s rules.Stream, rs *rules.RuleSet, opts *Options, detector *outputtype.Detector) *capture.Reassembler {
	sr := rs.For(s)
	c := &capture.Classifier{
		Stream:   s,
		Rules:    sr,
		Quiet:    opts.Quiet,
		Annotate: opts.Annotate,
		Echo:     opts.Stderr,
	}
	if s == rules.Stdout {
		c.Echo = opts.Stdout
		c.Capture = opts.Capture
	}
	var h capture.LineHandler = c
	if detector != nil {
		h = detectingHandler{LineHandler: c, detector: detector}
	}
	return capture.NewReassembler(opts.LineLimit, &sr.Counters, h)
}

// detectingHandler shows every line to an output type detector before
// passing it on.
type detectingHandler struct {
	capture.LineHandler
	detector *outputtype.Detector
}

func (h detectingHandler) HandleLine(line capture.Line) error {
	h.detector.AnalyzeLine(line.Data)
	return h.LineHandler.HandleLine(line)
}

// QuoteArgv renders argv the way --echo prints it: every argument in single
// quotes, separated by spaces.
func QuoteArgv(argv []string) string {
	var b strings.Builder
	for i, arg := range argv {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte('\'')
		b.WriteString(arg)
		b.WriteByte('\'')
	}
	return b.String()
}
