package capture

import (
	"errors"
	"testing"

	"testtool/internal/rules"

	"github.com/stretchr/testify/require"
)

type recordedLine struct {
	Data      string
	End       Ending
	Malformed bool
}

type recorder struct {
	lines []recordedLine
	err   error
}

func (r *recorder) HandleLine(line Line) error {
	r.lines = append(r.lines, recordedLine{string(line.Data), line.End, line.Malformed})
	return r.err
}

func newTestReassembler(capacity int) (*Reassembler, *recorder, *rules.Counters) {
	rec := &recorder{}
	counters := &rules.Counters{}
	return NewReassembler(capacity, counters, rec), rec, counters
}

// read simulates one read(2) that returns chunk.
func read(t *testing.T, r *Reassembler, chunk string) {
	t.Helper()
	free := r.Free()
	require.LessOrEqual(t, len(chunk), len(free), "chunk larger than free space")
	n := copy(free, chunk)
	require.NoError(t, r.Commit(n))
}

func TestReassembler_LinesAcrossChunks(t *testing.T) {
	r, rec, counters := newTestReassembler(64)

	read(t, r, "hel")
	require.Empty(t, rec.lines)
	read(t, r, "lo\nwor")
	read(t, r, "ld\n")

	require.Equal(t, []recordedLine{
		{"hello\n", Newline, false},
		{"world\n", Newline, false},
	}, rec.lines)
	require.Equal(t, rules.Counters{}, *counters)
	require.Equal(t, 0, r.Buffered())
}

func TestReassembler_ManyLinesInOneChunk(t *testing.T) {
	r, rec, _ := newTestReassembler(64)

	read(t, r, "a\n\nb\nrest")

	require.Equal(t, []recordedLine{
		{"a\n", Newline, false},
		{"\n", Newline, false},
		{"b\n", Newline, false},
	}, rec.lines)
	require.Equal(t, 4, r.Buffered())
	require.Equal(t, "rest", string(r.buf[:r.n]))
}

func TestReassembler_FullChunkWithoutNewlineIsOneOverlongLine(t *testing.T) {
	r, rec, counters := newTestReassembler(8)

	read(t, r, "12345678")

	require.Equal(t, []recordedLine{{"12345678", Overlong, false}}, rec.lines)
	require.Equal(t, 1, counters.Overlong)
	require.Equal(t, 0, r.Buffered())
}

func TestReassembler_OverlongRemainderIsDiscarded(t *testing.T) {
	r, rec, counters := newTestReassembler(8)

	read(t, r, "12345678")
	read(t, r, "9a\nnext\n")

	require.Equal(t, []recordedLine{
		{"12345678", Overlong, false},
		{"next\n", Newline, false},
	}, rec.lines)
	require.Equal(t, 1, counters.Overlong)
}

func TestReassembler_VeryLongLineCountsOnce(t *testing.T) {
	r, rec, counters := newTestReassembler(8)

	_, err := r.Write([]byte("0123456789abcdefghijklmnop\nok\n"))
	require.NoError(t, err)

	require.Equal(t, []recordedLine{
		{"01234567", Overlong, false},
		{"ok\n", Newline, false},
	}, rec.lines)
	require.Equal(t, 1, counters.Overlong)
}

func TestReassembler_LineThatExactlyFits(t *testing.T) {
	r, rec, counters := newTestReassembler(8)

	read(t, r, "1234567\n")

	require.Equal(t, []recordedLine{{"1234567\n", Newline, false}}, rec.lines)
	require.Equal(t, 0, counters.Overlong)
}

func TestReassembler_PartialLineFillsBufferOnLaterRead(t *testing.T) {
	r, rec, counters := newTestReassembler(8)

	read(t, r, "ab\ncd")
	read(t, r, "efg")
	read(t, r, "h\n")

	require.Equal(t, []recordedLine{
		{"ab\n", Newline, false},
		{"cdefgh\n", Newline, false},
	}, rec.lines)
	require.Equal(t, 0, counters.Overlong)

	read(t, r, "abcd")
	read(t, r, "efgh")
	require.Equal(t, recordedLine{"abcdefgh", Overlong, false}, rec.lines[2])
	require.Equal(t, 1, counters.Overlong)
}

func TestReassembler_NulBytesAreReplacedAndCounted(t *testing.T) {
	r, rec, counters := newTestReassembler(64)

	read(t, r, "a\x00b\x00\nclean\n")

	require.Equal(t, []recordedLine{
		{"a?b?\n", Newline, true},
		{"clean\n", Newline, false},
	}, rec.lines)
	require.Equal(t, 2, counters.Malformed)
}

func TestReassembler_NulInEarlierChunkMarksLine(t *testing.T) {
	r, rec, _ := newTestReassembler(64)

	read(t, r, "x\x00")
	read(t, r, "y\n")

	require.Equal(t, []recordedLine{{"x?y\n", Newline, true}}, rec.lines)
}

func TestReassembler_EOFFlushesResidue(t *testing.T) {
	r, rec, counters := newTestReassembler(64)

	read(t, r, "line\ntail")
	require.NoError(t, r.EOF())

	require.Equal(t, []recordedLine{
		{"line\n", Newline, false},
		{"tail", Unterminated, false},
	}, rec.lines)
	require.Equal(t, 1, counters.Malformed)
	require.Equal(t, 0, r.Buffered())
}

func TestReassembler_EOFWithoutResidue(t *testing.T) {
	r, rec, counters := newTestReassembler(64)

	read(t, r, "line\n")
	require.NoError(t, r.EOF())

	require.Len(t, rec.lines, 1)
	require.Equal(t, 0, counters.Malformed)
}

func TestReassembler_EOFAfterOverlongDiscardsTail(t *testing.T) {
	r, rec, counters := newTestReassembler(4)

	read(t, r, "abcd")
	read(t, r, "ef")
	require.NoError(t, r.EOF())

	require.Equal(t, []recordedLine{{"abcd", Overlong, false}}, rec.lines)
	require.Equal(t, 0, counters.Malformed)
}

func TestReassembler_HandlerErrorStopsProcessing(t *testing.T) {
	r, rec, _ := newTestReassembler(64)
	rec.err = errors.New("sink broken")

	n := copy(r.Free(), "one\ntwo\n")
	err := r.Commit(n)

	require.ErrorIs(t, err, rec.err)
	require.Len(t, rec.lines, 1)
}

func TestReassembler_DefaultCapacity(t *testing.T) {
	r, _, _ := newTestReassembler(0)
	require.Len(t, r.Free(), DefaultLineLimit)
}
