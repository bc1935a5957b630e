package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"testtool/internal/config"
	"testtool/internal/rules"
	"testtool/internal/run"
	"testtool/internal/report"
	"testtool/internal/supervisor"
	"testtool/pkg/outputlog"
)

const progName = "testtool"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// exitCode carries a non-zero verdict through cobra without printing it.
type exitCode int

func (e exitCode) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

type flagValues struct {
	config     string
	rules      string
	rulesFD    int
	quiet      bool
	annotate   bool
	echo       bool
	launcher   string
	controlFD  int
	lineLimit  int
	output     string
	pty        bool
	transcript string
	report     string
	verbose    bool
}

// loadConfig reads the config file and lets explicitly set flags override it.
func (f *flagValues) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.Path(f.config))
	if err != nil {
		return nil, err
	}
	fl := cmd.Flags()
	if fl.Changed("rules") {
		cfg.Rules = f.rules
	}
	if fl.Changed("rules-fd") {
		cfg.RulesFD = f.rulesFD
	}
	if fl.Changed("quiet") || fl.Changed("silent") {
		cfg.Quiet = f.quiet
	}
	if fl.Changed("annotate") {
		cfg.Annotate = f.annotate
	}
	if fl.Changed("echo") {
		cfg.Echo = f.echo
	}
	if fl.Changed("launcher") {
		cfg.Launcher = launcherFromFlag(f.launcher)
	}
	if fl.Changed("control-fd") {
		cfg.ControlFD = f.controlFD
	}
	if fl.Changed("line-limit") {
		cfg.LineLimit = f.lineLimit
	}
	if fl.Changed("output") {
		cfg.Output = f.output
	}
	if fl.Changed("pty") {
		cfg.PTY = f.pty
	}
	if fl.Changed("transcript") {
		cfg.Transcript = f.transcript
	}
	if fl.Changed("report") {
		cfg.Report = f.report
	}
	if fl.Changed("verbose") {
		cfg.Verbose = f.verbose
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// launcherFromFlag maps --launcher (no value) and --launcher=valgrind to the
// default launcher with its log on the control channel.
func launcherFromFlag(v string) config.Launcher {
	if v == "" || v == supervisor.DefaultLauncher {
		return config.Launcher{Enabled: true}
	}
	return config.Launcher{Enabled: true, Program: v}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	f := &flagValues{}

	rootCmd := &cobra.Command{
		Use:   "testtool [flags] [--] program [args...]",
		Short: "testtool - verify a program's output against line rules",
		Long: `testtool runs a program, checks every line it writes to stdout and stderr
against a rule document and checks its exit code.

The rule document is read from --rules or from descriptor 3. Exit status is
0 when all checks pass, 1 when a check fails and 2 when the run could not be
carried out.`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("no program given (see --help)")
			}
			cfg, err := f.loadConfig(cmd)
			if err != nil {
				return err
			}
			return runProgram(cfg, args, stdout, stderr)
		},
	}
	rootCmd.Flags().SetInterspersed(false)
	rootCmd.SetVersionTemplate("{{.Name}} version {{.Version}}\n")

	fl := rootCmd.Flags()
	fl.StringVar(&f.config, "config", "", "YAML file with default settings (default: $"+config.EnvConfigFile+")")
	fl.StringVarP(&f.rules, "rules", "r", "", "Read the rule document from `FILE`")
	fl.IntVar(&f.rulesFD, "rules-fd", config.DefaultRulesFD, "Read the rule document from this descriptor when --rules is not given")
	fl.BoolVarP(&f.quiet, "quiet", "s", false, "Only echo unexpected lines")
	fl.BoolVar(&f.quiet, "silent", false, "Same as --quiet")
	fl.BoolVarP(&f.annotate, "annotate", "a", false, "Prefix echoed lines with their classification")
	fl.BoolVarP(&f.echo, "echo", "e", false, "Print the command line before running it")
	fl.StringVar(&f.launcher, "launcher", "", "Run the program under `PROG` (default: valgrind with its log on the control descriptor)")
	fl.Lookup("launcher").NoOptDefVal = supervisor.DefaultLauncher
	fl.IntVar(&f.controlFD, "control-fd", supervisor.DefaultControlFD, "Descriptor number of the launcher control channel in the child")
	fl.IntVar(&f.lineLimit, "line-limit", config.Default().LineLimit, "Longest accepted line in bytes, including the newline")
	fl.StringVarP(&f.output, "output", "o", "", "Copy the program's stdout lines to `FILE` (must not exist)")
	fl.BoolVar(&f.pty, "pty", false, "Attach the program's stdout to a pseudo-terminal")
	fl.StringVar(&f.transcript, "transcript", "", "Record the raw output of the run to `FILE` for replay")
	fl.StringVar(&f.report, "report", "", "Write an HTML report to `FILE` (Markdown if it ends in .md)")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "Enable debug logging")
	_ = fl.MarkHidden("silent")

	rootCmd.AddCommand(newRulesCmd(stdout))
	rootCmd.AddCommand(newReplayCmd(stdout, stderr))
	rootCmd.AddCommand(newVersionCmd(stdout))
	return rootCmd
}

func runProgram(cfg *config.Config, command []string, stdout, stderr io.Writer) error {
	logger := newLogger(stderr, cfg.Verbose)
	slog.SetDefault(logger)

	rulesFile, err := run.OpenRules(cfg.Rules, cfg.RulesFD)
	if err != nil {
		return err
	}
	defer rulesFile.Close()

	opts := run.Options{
		Command:   command,
		Rules:     rulesFile,
		Launcher:  cfg.SupervisorLauncher(),
		ControlFD: cfg.ControlFD,
		LineLimit: cfg.LineLimit,
		PTY:       cfg.PTY,
		Quiet:     cfg.Quiet,
		Annotate:  cfg.Annotate,
		Echo:      cfg.Echo,
		Stdout:    stdout,
		Stderr:    stderr,
		Stdin:     os.Stdin,
		Logger:    logger,
	}

	var files []*os.File
	if cfg.Output != "" {
		out, err := os.OpenFile(cfg.Output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0666)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		files = append(files, out)
		opts.Capture = out
	}
	if cfg.Transcript != "" {
		tr, err := os.Create(cfg.Transcript)
		if err != nil {
			closeAll(files)
			return fmt.Errorf("failed to create transcript: %w", err)
		}
		files = append(files, tr)
		opts.Transcript = tr
	}

	rep := run.Execute(opts)
	if err := closeAll(files); err != nil && rep.Result.Outcome.ExitCode() == 0 {
		return err
	}
	return finish(rep, cfg.Report, stderr)
}

// finish prints the diagnostics, writes the report and turns the verdict
// into the process exit code.
func finish(rep *run.Report, reportPath string, stderr io.Writer) error {
	rep.PrintDiagnostics(stderr, progName)
	if reportPath != "" {
		if err := report.WriteFile(reportPath, rep); err != nil {
			return err
		}
	}
	if code := rep.Result.Outcome.ExitCode(); code != 0 {
		return exitCode(code)
	}
	return nil
}

func closeAll(files []*os.File) error {
	var errs []error
	for _, f := range files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", f.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func newRulesCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "rules FILE",
		Short: "Check a rule document and print it in normalized form",
		Long: `Compile a rule document and print an equivalent normalized document:
per stream the selector, the expected lines, the ignored lines, and finally
the expected exit code.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("reading rules: %w", err)
			}
			defer f.Close()
			rs, err := rules.Compile(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			_, err = stdout.Write(rules.Format(rs))
			return err
		},
	}
}

func newReplayCmd(stdout, stderr io.Writer) *cobra.Command {
	f := &flagValues{}
	var extract string
	cmd := &cobra.Command{
		Use:   "replay TRANSCRIPT",
		Short: "Verify a recorded transcript against a rule document",
		Long: `Replay the output recorded with --transcript through the classifiers
without starting the program again. Useful to try an edited rule document
against a failed run.

With --extract the raw bytes recorded for one stream are written to stdout
instead.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(stderr, cfg.Verbose)

			src, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open transcript: %w", err)
			}
			defer src.Close()

			if extract != "" {
				r := outputlog.NewOutputLogReader(src).StreamReader(extract)
				if _, err := io.Copy(stdout, r); err != nil {
					return fmt.Errorf("reading transcript: %w", err)
				}
				return nil
			}

			rulesFile, err := run.OpenRules(cfg.Rules, cfg.RulesFD)
			if err != nil {
				return err
			}
			defer rulesFile.Close()

			rep := run.Replay(src, run.Options{
				Rules:     rulesFile,
				LineLimit: cfg.LineLimit,
				Quiet:     cfg.Quiet,
				Annotate:  cfg.Annotate,
				Stdout:    stdout,
				Stderr:    stderr,
				Logger:    logger,
			})
			return finish(rep, cfg.Report, stderr)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", "", "YAML file with default settings (default: $"+config.EnvConfigFile+")")
	fl.StringVarP(&f.rules, "rules", "r", "", "Read the rule document from `FILE`")
	fl.IntVar(&f.rulesFD, "rules-fd", config.DefaultRulesFD, "Read the rule document from this descriptor when --rules is not given")
	fl.BoolVarP(&f.quiet, "quiet", "s", false, "Only echo unexpected lines")
	fl.BoolVarP(&f.annotate, "annotate", "a", false, "Prefix echoed lines with their classification")
	fl.IntVar(&f.lineLimit, "line-limit", config.Default().LineLimit, "Longest accepted line in bytes, including the newline")
	fl.StringVar(&f.report, "report", "", "Write an HTML report to `FILE` (Markdown if it ends in .md)")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "Enable debug logging")
	fl.StringVar(&extract, "extract", "", "Print the recorded `STREAM` (stdout, stderr or control) instead of verifying")
	return cmd
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "%s version %s\n", progName, version)
		},
	}
}

// execute runs the command line and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.Execute()
	var code exitCode
	switch {
	case err == nil:
		return 0
	case errors.As(err, &code):
		return int(code)
	default:
		fmt.Fprintf(stderr, "%s: %v\n", progName, err)
		return 2
	}
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
