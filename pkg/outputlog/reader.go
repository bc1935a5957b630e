package outputlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

type OutputLogReader interface {
	// Next returns the next chunk, or io.EOF after the last one.
	Next() (Chunk, error)

	// StreamReader returns an io.Reader for reading one stream. Example: You want to read only the
	// stream "stdout". Other stream and the timestamps get ignored.
	StreamReader(stream string) io.Reader

	// Channel returns a channel which emits Chunks. A chunk with Error set is
	// the last one.
	Channel() <-chan Chunk

	// All returns a map with stream as key and the data as bytes. Timestamps get ignored.
	All() (map[string][]byte, error)
}

type OutputLogIoReader struct {
	reader *bufio.Reader
}

var _ OutputLogReader = &OutputLogIoReader{}

func NewOutputLogReader(reader io.Reader) *OutputLogIoReader {
	return &OutputLogIoReader{reader: bufio.NewReader(reader)}
}

func (o *OutputLogIoReader) Next() (Chunk, error) {
	return readChunk(o.reader)
}

// readChunk parses one chunk. A clean end of input before the first byte of a
// chunk is io.EOF; anything else that is cut short is io.ErrUnexpectedEOF.
func readChunk(r *bufio.Reader) (Chunk, error) {
	var chunk Chunk

	stream, err := r.ReadString(' ')
	if err != nil {
		if err == io.EOF && stream == "" {
			return chunk, io.EOF
		}
		return chunk, fmt.Errorf("reading stream: %w", unexpected(err))
	}
	chunk.Stream = stream[:len(stream)-1]
	if !validStream(chunk.Stream) {
		return chunk, fmt.Errorf("invalid stream name %q", chunk.Stream)
	}

	timestampStr, err := r.ReadString(' ')
	if err != nil {
		return chunk, fmt.Errorf("reading timestamp: %w", unexpected(err))
	}
	chunk.Timestamp, err = time.Parse(TimestampFormat, timestampStr[:len(timestampStr)-1])
	if err != nil {
		return chunk, fmt.Errorf("parsing timestamp: %w", err)
	}

	lengthStr, err := r.ReadString(':')
	if err != nil {
		return chunk, fmt.Errorf("reading length: %w", unexpected(err))
	}
	length, err := strconv.Atoi(lengthStr[:len(lengthStr)-1])
	if err != nil || length < 0 {
		return chunk, fmt.Errorf("parsing length %q", lengthStr[:len(lengthStr)-1])
	}

	if b, err := r.ReadByte(); err != nil {
		return chunk, fmt.Errorf("reading space after colon: %w", unexpected(err))
	} else if b != ' ' {
		return chunk, fmt.Errorf("expected space after colon, got %q", b)
	}

	chunk.Line = make([]byte, length)
	if _, err := io.ReadFull(r, chunk.Line); err != nil {
		return chunk, fmt.Errorf("reading content (%d bytes): %w", length, unexpected(err))
	}

	if b, err := r.ReadByte(); err != nil {
		return chunk, fmt.Errorf("reading final newline: %w", unexpected(err))
	} else if b != '\n' {
		return chunk, fmt.Errorf("expected newline separator, got %q", b)
	}

	return chunk, nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func validStream(s string) bool {
	if len(s) == 0 || len(s) > 64 {
		return false
	}
	for _, c := range []byte(s) {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_' || c == '.' || c == '/' || c == '-':
		default:
			return false
		}
	}
	return true
}

func (o *OutputLogIoReader) Channel() <-chan Chunk {
	channel := make(chan Chunk)
	go func() {
		defer close(channel)
		for {
			chunk, err := o.Next()
			if err == io.EOF {
				return
			}
			chunk.Error = err
			channel <- chunk
			if err != nil {
				return
			}
		}
	}()
	return channel
}

type ChannelReader struct {
	stream  string
	channel <-chan Chunk
	buffer  []byte // Buffer for partial chunk data
}

func (cr *ChannelReader) Read(p []byte) (n int, err error) {
	// First, copy any buffered data from previous reads
	if len(cr.buffer) > 0 {
		n = copy(p, cr.buffer)
		cr.buffer = cr.buffer[n:]
		if n == len(p) {
			return n, nil
		}
	}

	for chunk := range cr.channel {
		if chunk.Error != nil {
			if n > 0 {
				return n, nil
			}
			return 0, chunk.Error
		}
		if chunk.Stream != cr.stream {
			continue
		}

		// Copy as much as fits into remaining space in p
		copied := copy(p[n:], chunk.Line)
		n += copied

		// If there's leftover data, buffer it for next read
		if copied < len(chunk.Line) {
			cr.buffer = append(cr.buffer, chunk.Line[copied:]...)
		}

		// Return as soon as we have some data
		return n, nil
	}

	// Channel closed
	if n > 0 {
		return n, nil
	}
	return 0, io.EOF
}

func (o *OutputLogIoReader) StreamReader(stream string) io.Reader {
	return &ChannelReader{
		stream:  stream,
		channel: o.Channel(),
	}
}

func (o *OutputLogIoReader) All() (map[string][]byte, error) {
	result := make(map[string][]byte)
	for {
		chunk, err := o.Next()
		if err == io.EOF {
			return result, nil
		}
		if err != nil {
			return result, err
		}
		result[chunk.Stream] = append(result[chunk.Stream], chunk.Line...)
	}
}
