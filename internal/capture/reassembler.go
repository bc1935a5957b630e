// Package capture turns raw output chunks of the supervised program into
// lines and classifies them against the compiled rules.
package capture

import "testtool/internal/rules"

// DefaultLineLimit is the default reassembly buffer capacity. A line that does
// not fit, terminator included, is reported as overlong.
const DefaultLineLimit = 1000

// Placeholder replaces NUL bytes in captured output.
const Placeholder = '?'

// Ending tells how a flushed line ended.
type Ending int

const (
	// Newline: the line ends with '\n', which is part of Line.Data.
	Newline Ending = iota
	// Overlong: the buffer filled up before a terminator was seen.
	Overlong
	// Unterminated: the stream ended in the middle of a line.
	Unterminated
)

func (e Ending) String() string {
	switch e {
	case Newline:
		return "newline"
	case Overlong:
		return "overlong"
	case Unterminated:
		return "unterminated"
	default:
		return "unknown"
	}
}

// Line is one reassembled line. Data is only valid during the HandleLine call.
type Line struct {
	Data      []byte
	End       Ending
	Malformed bool // contained NUL bytes, replaced by Placeholder
}

// LineHandler receives every reassembled line of a stream.
type LineHandler interface {
	HandleLine(line Line) error
}

// Reassembler is the per-stream incremental line buffer.
//
// Reads go straight into the free part of a fixed-capacity buffer: callers
// fill Free() and then call Commit with the number of bytes read.
// Only the single event loop goroutine may use a Reassembler.
type Reassembler struct {
	buf      []byte
	n        int
	overrun  bool
	bad      bool // the pending partial line contains a NUL
	counters *rules.Counters
	handler  LineHandler
}

// NewReassembler creates a reassembler with the given capacity. Overlong and
// malformed lines are counted in counters.
func NewReassembler(capacity int, counters *rules.Counters, handler LineHandler) *Reassembler {
	if capacity <= 0 {
		capacity = DefaultLineLimit
	}
	return &Reassembler{
		buf:      make([]byte, capacity),
		counters: counters,
		handler:  handler,
	}
}

// Free returns the unused tail of the buffer. It is never empty.
func (r *Reassembler) Free() []byte {
	return r.buf[r.n:]
}

// Buffered returns the number of bytes waiting for a terminator.
func (r *Reassembler) Buffered() int {
	return r.n
}

// Commit processes n freshly read bytes at the start of Free().
func (r *Reassembler) Commit(n int) error {
	start := r.n
	r.n += n
	flushed := 0

	for i := start; i < r.n; i++ {
		switch r.buf[i] {
		case 0:
			r.buf[i] = Placeholder
			r.counters.Malformed++
			r.bad = true
		case '\n':
			if r.overrun {
				// tail of a line already reported as overlong
				r.overrun = false
			} else if err := r.emit(r.buf[flushed:i+1], Newline); err != nil {
				return err
			}
			r.bad = false
			flushed = i + 1
		}
	}

	if flushed > 0 {
		r.n = copy(r.buf, r.buf[flushed:r.n])
	}

	if r.n == len(r.buf) {
		if !r.overrun {
			r.counters.Overlong++
			r.overrun = true
			if err := r.emit(r.buf, Overlong); err != nil {
				return err
			}
		}
		r.n = 0
		r.bad = false
	}
	return nil
}

// Write feeds p as if it had been read in chunks no larger than the free
// space. It never returns a short count without an error.
func (r *Reassembler) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := copy(r.Free(), p)
		if err := r.Commit(n); err != nil {
			return written, err
		}
		written += n
		p = p[n:]
	}
	return written, nil
}

// EOF flushes a trailing partial line. Such a line counts as malformed.
func (r *Reassembler) EOF() error {
	defer func() {
		r.n = 0
		r.overrun = false
		r.bad = false
	}()
	if r.n == 0 || r.overrun {
		return nil
	}
	r.counters.Malformed++
	return r.emit(r.buf[:r.n], Unterminated)
}

func (r *Reassembler) emit(data []byte, end Ending) error {
	return r.handler.HandleLine(Line{Data: data, End: end, Malformed: r.bad})
}
