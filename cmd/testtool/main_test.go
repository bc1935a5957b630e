package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testtool/internal/config"
)

type result struct {
	code           int
	stdout, stderr string
}

func runCLI(t *testing.T, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(args, &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestCLI_Success(t *testing.T) {
	rulesPath := writeFile(t, "hello.rules", "stdout*\n*=hello\n")
	res := runCLI(t, "-r", rulesPath, "--", "sh", "-c", "echo hello")

	assert.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "hello\n", res.stdout)
	assert.Empty(t, res.stderr)
}

func TestCLI_UnexpectedLine(t *testing.T) {
	rulesPath := writeFile(t, "empty.rules", "")
	res := runCLI(t, "-r", rulesPath, "sh", "-c", "echo oops >&2")

	assert.Equal(t, 1, res.code)
	assert.Equal(t, "oops\ntesttool: 0 unexpected line(s) on stdout and 1 on stderr\n", res.stderr)
}

func TestCLI_ExpectedExitCode(t *testing.T) {
	rulesPath := writeFile(t, "five.rules", "return 5\n")
	res := runCLI(t, "-r", rulesPath, "sh", "-c", "exit 5")
	assert.Equal(t, 0, res.code, res.stderr)
}

func TestCLI_ProgramFlagsAreNotParsed(t *testing.T) {
	rulesPath := writeFile(t, "hello.rules", "stdout\n*=-v\n")
	res := runCLI(t, "-r", rulesPath, "echo", "-v")
	assert.Equal(t, 0, res.code, res.stderr)
}

func TestCLI_MissingProgram(t *testing.T) {
	rulesPath := writeFile(t, "empty.rules", "")
	res := runCLI(t, "-r", rulesPath, "/nonexistent/program")

	assert.Equal(t, 2, res.code)
	assert.True(t, strings.HasPrefix(res.stderr, "testtool: could not start /nonexistent/program"), res.stderr)
	assert.Equal(t, 1, strings.Count(res.stderr, "\n"))
}

func TestCLI_UsageErrors(t *testing.T) {
	rulesPath := writeFile(t, "empty.rules", "")

	res := runCLI(t, "-r", rulesPath)
	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, "no program given")

	res = runCLI(t, "--no-such-flag", "true")
	assert.Equal(t, 2, res.code)

	res = runCLI(t, "-r", filepath.Join(t.TempDir(), "missing.rules"), "true")
	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, "reading rules")

	res = runCLI(t, "-r", rulesPath, "--control-fd", "2", "true")
	assert.Equal(t, 2, res.code)
}

func TestCLI_BadRules(t *testing.T) {
	rulesPath := writeFile(t, "bad.rules", "stdout\nbogus\n")
	res := runCLI(t, "-r", rulesPath, "true")

	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, "line 2")
}

func TestCLI_QuietAnnotateEcho(t *testing.T) {
	rulesPath := writeFile(t, "r.rules", "stdout*\n")
	res := runCLI(t, "-r", rulesPath, "-s", "-a", "-e", "sh", "-c", "echo fine; echo bad >&2")

	assert.Equal(t, 1, res.code)
	assert.Equal(t, "'sh' '-c' 'echo fine; echo bad >&2'\n", res.stdout)
	assert.True(t, strings.HasPrefix(res.stderr, "UNEXPECTED(2): bad\n"), res.stderr)
}

func TestCLI_OutputFile(t *testing.T) {
	rulesPath := writeFile(t, "r.rules", "stdout*\n")
	out := filepath.Join(t.TempDir(), "captured.txt")

	res := runCLI(t, "-r", rulesPath, "-o", out, "sh", "-c", "echo one; echo two")
	require.Equal(t, 0, res.code, res.stderr)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))

	// the capture file is never overwritten
	res = runCLI(t, "-r", rulesPath, "-o", out, "true")
	assert.Equal(t, 2, res.code)
}

func TestCLI_TranscriptReplayAndReport(t *testing.T) {
	dir := t.TempDir()
	strict := writeFile(t, "strict.rules", "")
	relaxed := writeFile(t, "relaxed.rules", "stderr\n=warn\n")
	transcript := filepath.Join(dir, "run.transcript")
	reportPath := filepath.Join(dir, "report.md")

	res := runCLI(t, "-r", strict, "--transcript", transcript, "--report", reportPath, "sh", "-c", "echo warn >&2")
	require.Equal(t, 1, res.code)

	md, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "# testtool report: TEST-FAILURE")

	res = runCLI(t, "replay", "-r", strict, transcript)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "testtool: 0 unexpected line(s) on stdout and 1 on stderr")

	res = runCLI(t, "replay", "-r", relaxed, "-s", transcript)
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Empty(t, res.stderr)

	res = runCLI(t, "replay", "--extract", "stderr", transcript)
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "warn\n", res.stdout)
}

func TestCLI_ConfigFile(t *testing.T) {
	rulesPath := writeFile(t, "r.rules", "stdout*\n")
	cfg := writeFile(t, "testtool.yaml", "rules: "+rulesPath+"\nannotate: true\n")
	t.Setenv(config.EnvConfigFile, cfg)

	res := runCLI(t, "sh", "-c", "echo hi")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "NORMAL(1): hi\n", res.stdout)

	// flags override the file
	res = runCLI(t, "--annotate=false", "sh", "-c", "echo hi")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "hi\n", res.stdout)
}

func TestCLI_Rules(t *testing.T) {
	rulesPath := writeFile(t, "r.rules", "# comment\nstdout*\n=noise\n*=hello\nret 3\n")
	res := runCLI(t, "rules", rulesPath)

	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "stdout*\n*=hello\n=noise\nstderr\nreturns 3\n", res.stdout)

	bad := writeFile(t, "bad.rules", "x\n")
	res = runCLI(t, "rules", bad)
	assert.Equal(t, 2, res.code)
}

func TestCLI_Version(t *testing.T) {
	res := runCLI(t, "version")
	assert.Equal(t, 0, res.code)
	assert.Equal(t, "testtool version dev\n", res.stdout)

	res = runCLI(t, "--version")
	assert.Equal(t, 0, res.code)
	assert.Equal(t, "testtool version dev\n", res.stdout)
}

func TestLauncherFromFlag(t *testing.T) {
	assert.Equal(t, config.Launcher{Enabled: true}, launcherFromFlag("valgrind"))
	assert.Equal(t, config.Launcher{Enabled: true}, launcherFromFlag(""))
	assert.Equal(t, config.Launcher{Enabled: true, Program: "strace"}, launcherFromFlag("strace"))
}
