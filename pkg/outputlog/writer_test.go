package outputlog

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func readAllChunks(t *testing.T, buf *bytes.Buffer) []Chunk {
	t.Helper()
	var chunks []Chunk
	for chunk := range NewOutputLogReader(buf).Channel() {
		require.NoError(t, chunk.Error)
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestOutputLogIoWriter_StreamWriter(t *testing.T) {
	var buf bytes.Buffer
	writer := NewOutputLogWriter(&buf, nil)

	stdoutWriter := writer.StreamWriter(StreamStdout)

	n, err := stdoutWriter.Write([]byte("Hello world\n"))
	require.NoError(t, err)
	require.Equal(t, 12, n)

	require.NoError(t, writer.Close())

	chunks := readAllChunks(t, &buf)
	require.Len(t, chunks, 1)
	require.Equal(t, StreamStdout, chunks[0].Stream)
	require.Equal(t, "Hello world\n", string(chunks[0].Line))
}

func TestOutputLogIoWriter_OrderPreservation(t *testing.T) {
	var buf bytes.Buffer
	writer := NewOutputLogWriter(&buf, nil)

	stdoutWriter := writer.StreamWriter(StreamStdout)
	stderrWriter := writer.StreamWriter(StreamStderr)

	for i := 0; i < 20; i++ {
		w := stdoutWriter
		if i%3 == 0 {
			w = stderrWriter
		}
		_, err := fmt.Fprintf(w, "line %d\n", i)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	chunks := readAllChunks(t, &buf)
	require.Len(t, chunks, 20)
	for i, chunk := range chunks {
		require.Equal(t, fmt.Sprintf("line %d\n", i), string(chunk.Line))
		if i%3 == 0 {
			require.Equal(t, StreamStderr, chunk.Stream)
		} else {
			require.Equal(t, StreamStdout, chunk.Stream)
		}
	}
}

func TestOutputLogIoWriter_Channel(t *testing.T) {
	var buf bytes.Buffer
	writer := NewOutputLogWriter(&buf, nil)

	timestamp := time.Date(2025, 1, 7, 12, 34, 56, 789000000, time.UTC)
	writer.Channel() <- Chunk{
		Stream:    StreamExit,
		Timestamp: timestamp,
		Line:      []byte("exit 0"),
	}
	require.NoError(t, writer.Close())

	chunks := readAllChunks(t, &buf)
	require.Len(t, chunks, 1)
	require.Equal(t, "exit 0", string(chunks[0].Line))
	require.True(t, chunks[0].Timestamp.Equal(timestamp))
}

func TestOutputLogIoWriter_CopiesData(t *testing.T) {
	var buf bytes.Buffer
	writer := NewOutputLogWriter(&buf, nil)

	data := []byte("first\n")
	_, err := writer.StreamWriter(StreamStdout).Write(data)
	require.NoError(t, err)
	copy(data, "XXXXX\n")
	require.NoError(t, writer.Close())

	chunks := readAllChunks(t, &buf)
	require.Equal(t, "first\n", string(chunks[0].Line))
}

func TestOutputLogIoWriter_EmptyWrite(t *testing.T) {
	var buf bytes.Buffer
	writer := NewOutputLogWriter(&buf, nil)

	n, err := writer.StreamWriter(StreamStdout).Write(nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.NoError(t, writer.Close())
	require.Zero(t, buf.Len())
}

type brokenWriter struct{ calls int }

func (b *brokenWriter) Write(p []byte) (int, error) {
	b.calls++
	return 0, errors.New("disk full")
}

func TestOutputLogIoWriter_WriteErrorIsKept(t *testing.T) {
	bw := &brokenWriter{}
	writer := NewOutputLogWriter(bw, nil)

	w := writer.StreamWriter(StreamStdout)
	_, _ = w.Write([]byte("a"))
	_, _ = w.Write([]byte("b"))

	err := writer.Close()
	require.EqualError(t, err, "disk full")
	require.Equal(t, 1, bw.calls)
}
