package rules

import (
	"bytes"
	"fmt"
)

// Format writes rs back as a rule document. Compiling the result yields a
// rule set with the same rules, flags and expected exit code.
func Format(rs *RuleSet) []byte {
	var buf bytes.Buffer
	for _, s := range []Stream{Stdout, Stderr} {
		sr := rs.For(s)
		buf.WriteString(s.String())
		if sr.IgnoreUnknown {
			buf.WriteByte('*')
		}
		buf.WriteByte('\n')
		for _, c := range sr.Expect {
			buf.WriteString("*=")
			buf.Write(c.Text)
			buf.WriteByte('\n')
		}
		for _, c := range sr.Ignore {
			buf.WriteByte('=')
			buf.Write(c.Text)
			buf.WriteByte('\n')
		}
	}
	fmt.Fprintf(&buf, "returns %d\n", rs.ExpectedExit)
	return buf.Bytes()
}
