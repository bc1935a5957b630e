// Package report renders the result of a run as Markdown or as a standalone
// HTML page for CI artifacts.
package report

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"testtool/internal/run"
)

// Markdown renders rep.
func Markdown(rep *run.Report) string {
	var b strings.Builder
	res := rep.Result

	fmt.Fprintf(&b, "# testtool report: %s\n\n", res.Outcome)
	if rep.ID != "" {
		fmt.Fprintf(&b, "- Run: %s\n", code(rep.ID))
	}
	if len(rep.Argv) > 0 {
		fmt.Fprintf(&b, "- Command: %s\n", code(run.QuoteArgv(rep.Argv)))
	}
	if rep.Child != nil {
		fmt.Fprintf(&b, "- Child: %s\n", escape(rep.Child.String()))
	}
	if !rep.Started.IsZero() {
		fmt.Fprintf(&b, "- Started: %s\n", rep.Started.UTC().Format(time.RFC3339))
		if !rep.Finished.IsZero() {
			fmt.Fprintf(&b, "- Duration: %s\n", rep.Finished.Sub(rep.Started).Round(time.Millisecond))
		}
	}
	if rep.StdoutType != "" {
		fmt.Fprintf(&b, "- Stdout: %s (%s)\n", rep.StdoutType, rep.StdoutTypeReason)
	}
	if res.Status != nil {
		fmt.Fprintf(&b, "- Exit: %s (expected %d)\n", res.Status, res.Expected)
	} else {
		b.WriteString("- Exit: not started\n")
	}

	if len(res.Streams) > 0 {
		b.WriteString("\n## Streams\n\n")
		b.WriteString("| Stream | Unexpected | Overlong | Malformed | Missed |\n")
		b.WriteString("|--------|-----------:|---------:|----------:|-------:|\n")
		for _, s := range res.Streams {
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %d |\n", s.Stream, s.Unexpected, s.Overlong, s.Malformed, len(s.Missed))
		}

		var missed []string
		for _, s := range res.Streams {
			for _, text := range s.Missed {
				missed = append(missed, fmt.Sprintf("- %s: %s\n", s.Stream, code(fmt.Sprintf("%q", text))))
			}
		}
		if len(missed) > 0 {
			b.WriteString("\n## Missed expected lines\n\n")
			b.WriteString(strings.Join(missed, ""))
		}
	}

	if len(res.Messages) > 0 {
		b.WriteString("\n## Diagnostics\n\n")
		for _, msg := range res.Messages {
			fmt.Fprintf(&b, "- %s\n", escape(msg))
		}
	}
	return b.String()
}

// HTML renders rep as a complete HTML document.
func HTML(rep *run.Report) string {
	title := html.EscapeString(fmt.Sprintf("testtool report: %s", rep.Result.Outcome))
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n</head>\n<body>\n", title)
	b.WriteString(renderHTML(Markdown(rep)))
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// WriteFile writes the report to path. A ".md" extension selects Markdown,
// anything else HTML.
func WriteFile(path string, rep *run.Report) error {
	content := HTML(rep)
	if strings.EqualFold(filepath.Ext(path), ".md") {
		content = Markdown(rep)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
