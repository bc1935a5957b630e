package eventloop

import "io"

// Passthrough is a Drain that copies everything it reads to W unmodified.
// The launcher control channel uses it.
type Passthrough struct {
	W   io.Writer
	buf [4096]byte
}

var _ Drain = (*Passthrough)(nil)

func (p *Passthrough) Free() []byte { return p.buf[:] }

// Commit forwards the bytes. Errors writing diagnostics are not fatal.
func (p *Passthrough) Commit(n int) error {
	_, _ = p.W.Write(p.buf[:n])
	return nil
}

func (p *Passthrough) EOF() error { return nil }

// Tee wraps a Drain and copies every committed chunk to W before the drain
// sees it, so W receives the bytes exactly as read.
type Tee struct {
	Drain
	W io.Writer
}

func (t *Tee) Commit(n int) error {
	if _, err := t.W.Write(t.Free()[:n]); err != nil {
		return err
	}
	return t.Drain.Commit(n)
}
