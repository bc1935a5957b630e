package outputlog

import (
	"fmt"
	"time"
)

// Stream names used in testtool transcripts.
const (
	StreamRun     = "run"
	StreamStdout  = "stdout"
	StreamStderr  = "stderr"
	StreamControl = "control"
	StreamExit    = "exit"
)

// TimestampFormat is the layout of chunk timestamps.
const TimestampFormat = time.RFC3339Nano

// Chunk is one record of the transcript.
type Chunk struct {
	Stream    string
	Timestamp time.Time // UTC timestamp
	Line      []byte    // raw content, may contain newlines
	Error     error
}

// FormatChunk formats a chunk as "stream timestamp length: content\n".
func FormatChunk(chunk Chunk) []byte {
	timestamp := chunk.Timestamp.UTC().Format(TimestampFormat)
	start := fmt.Appendf(nil, "%s %s %d: ", chunk.Stream, timestamp, len(chunk.Line))
	result := append(start, chunk.Line...)
	return append(result, '\n')
}
