package outputlog

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

type OutputLogWriter interface {
	// StreamWriter returns an io.Writer that records every write as one chunk
	// of stream. Timestamps get added automatically.
	StreamWriter(stream string) io.Writer

	// Channel returns a channel to write Chunks
	Channel() chan<- Chunk

	// Close closes the writer and waits for all pending writes to complete
	Close() error
}

type OutputLogIoWriter struct {
	chunks chan Chunk
	done   chan struct{}

	mu  sync.Mutex
	err error
}

var _ OutputLogWriter = &OutputLogIoWriter{}

// StreamWriter returns an io.Writer that writes to the specified stream
func (o *OutputLogIoWriter) StreamWriter(stream string) io.Writer {
	return &streamWriter{
		stream: stream,
		chunks: o.chunks,
	}
}

// Channel returns a channel for writing Chunks
// Do not close the returned channel. Call Close() on the writer instead.
func (o *OutputLogIoWriter) Channel() chan<- Chunk {
	return o.chunks
}

// Close closes the writer, waits for all pending writes to complete and
// returns the first write error.
func (o *OutputLogIoWriter) Close() error {
	close(o.chunks)
	<-o.done
	return o.Err()
}

// Err returns the first error the underlying writer reported.
func (o *OutputLogIoWriter) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// streamWriter implements io.Writer for a specific stream
type streamWriter struct {
	stream string
	chunks chan<- Chunk
}

func (sw *streamWriter) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}

	chunk := Chunk{
		Stream:    sw.stream,
		Timestamp: time.Now().UTC(),
		Line:      append([]byte(nil), p...), // callers reuse p
	}

	sw.chunks <- chunk

	return len(p), nil
}

// NewOutputLogWriter creates a new OutputLogWriter that writes to the given io.Writer.
// The internal goroutine owns writer and runs until Close() is called. Write
// errors are logged to logger (if not nil) and kept for Close; later chunks
// are dropped.
func NewOutputLogWriter(writer io.Writer, logger *slog.Logger) *OutputLogIoWriter {
	o := &OutputLogIoWriter{
		chunks: make(chan Chunk, 100),
		done:   make(chan struct{}),
	}

	// Single goroutine that owns the io.Writer
	go func() {
		defer close(o.done)
		for chunk := range o.chunks {
			if o.Err() != nil {
				continue
			}
			if _, err := writer.Write(FormatChunk(chunk)); err != nil {
				if logger != nil {
					logger.Error("Failed to write transcript", "stream", chunk.Stream, "error", err)
				}
				o.mu.Lock()
				o.err = err
				o.mu.Unlock()
			}
		}
	}()

	return o
}
