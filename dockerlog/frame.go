// Package dockerlog decodes the multiplexed log stream the Docker Engine API
// returns for containers started without a TTY.
//
// Each frame is an 8 byte header followed by the payload:
//
//	[stream type: 1][reserved: 3][payload length: 4, big-endian][payload]
package dockerlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	// HeaderSize is the fixed size of a frame header.
	HeaderSize = 8
	// MaxFrameSize bounds the payload length accepted from a header (16 MiB).
	MaxFrameSize = 16 * 1024 * 1024
)

// StreamType identifies the originating stream of a frame.
type StreamType byte

const (
	Stdin  StreamType = 0
	Stdout StreamType = 1
	Stderr StreamType = 2
)

func (s StreamType) String() string {
	switch s {
	case Stdin:
		return "stdin"
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return fmt.Sprintf("stream(%d)", byte(s))
	}
}

// Frame is one fully buffered multiplexed frame.
type Frame struct {
	Stream  StreamType
	Payload []byte
}

// Line is a single decoded log line with trailing whitespace removed.
// Time is set only when SplitTimestamp found a Docker timestamp prefix.
type Line struct {
	Stream StreamType `json:"stream"`
	Text   string     `json:"text"`
	Time   time.Time  `json:"time,omitempty"`
}

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorOversize indicates a header declaring more than MaxFrameSize bytes.
	FrameErrorOversize FrameErrorKind = iota
)

func (k FrameErrorKind) String() string {
	if k == FrameErrorOversize {
		return "oversize"
	}
	return "unknown"
}

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Size uint32
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("dockerlog: %s frame: payload size %d exceeds maximum %d", e.Kind, e.Size, MaxFrameSize)
}

// IsFrameError reports whether err is a *FrameError.
func IsFrameError(err error) bool {
	var frameErr *FrameError
	return errors.As(err, &frameErr)
}

// FrameDecoder incrementally demultiplexes frames. Bytes of an incomplete
// frame are kept until a later Feed completes it. A FrameDecoder is not safe
// for concurrent use.
type FrameDecoder struct {
	buf []byte
	err error
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{}
}

// Feed appends chunk to the internal buffer and returns the lines of every
// frame that is now complete, in stream order. It never blocks. After an
// oversize header Feed stops consuming and Err reports the failure.
func (d *FrameDecoder) Feed(chunk []byte) []Line {
	if d.err != nil {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var lines []Line
	off := 0
	for len(d.buf)-off >= HeaderSize {
		header := d.buf[off : off+HeaderSize]
		size := binary.BigEndian.Uint32(header[4:8])
		if size > MaxFrameSize {
			d.err = &FrameError{Kind: FrameErrorOversize, Size: size}
			break
		}
		end := off + HeaderSize + int(size)
		if len(d.buf) < end {
			break
		}
		lines = appendLines(lines, StreamType(header[0]), d.buf[off+HeaderSize:end])
		off = end
	}

	if off > 0 {
		n := copy(d.buf, d.buf[off:])
		d.buf = d.buf[:n]
	}
	return lines
}

// Err returns the error that stopped decoding, if any.
func (d *FrameDecoder) Err() error {
	return d.err
}

// Buffered reports how many bytes are held waiting for a complete frame.
func (d *FrameDecoder) Buffered() int {
	return len(d.buf)
}

// Reset drops buffered bytes and clears any error.
func (d *FrameDecoder) Reset() {
	d.buf = d.buf[:0]
	d.err = nil
}

// Close ends the stream. An incomplete trailing frame is discarded without
// error; the number of discarded bytes is returned.
func (d *FrameDecoder) Close() int {
	n := len(d.buf)
	d.buf = nil
	return n
}

// appendLines splits a payload into lines. Docker may pack several lines into
// one frame; each non-empty line is emitted on its own.
func appendLines(lines []Line, stream StreamType, payload []byte) []Line {
	if len(payload) == 0 {
		return lines
	}
	text := strings.ToValidUTF8(string(payload), "�")
	for _, part := range strings.Split(text, "\n") {
		part = strings.TrimRightFunc(part, unicode.IsSpace)
		if part == "" {
			continue
		}
		lines = append(lines, Line{Stream: stream, Text: part})
	}
	return lines
}

// AppendFrame encodes payload as a multiplexed frame and appends it to dst.
func AppendFrame(dst []byte, stream StreamType, payload []byte) []byte {
	var header [HeaderSize]byte
	header[0] = byte(stream)
	binary.BigEndian.PutUint32(header[4:], uint32(len(payload)))
	dst = append(dst, header[:]...)
	return append(dst, payload...)
}

// SplitTimestamp separates the RFC3339Nano prefix Docker adds when logs are
// requested with timestamps. ok is false when text has no such prefix.
func SplitTimestamp(text string) (ts time.Time, rest string, ok bool) {
	idx := strings.IndexByte(text, ' ')
	if idx <= 0 {
		return time.Time{}, text, false
	}
	ts, err := time.Parse(time.RFC3339Nano, text[:idx])
	if err != nil {
		return time.Time{}, text, false
	}
	return ts, text[idx+1:], true
}

// WithTimestamp returns l with its timestamp prefix moved into Time.
func (l Line) WithTimestamp() Line {
	if ts, rest, ok := SplitTimestamp(l.Text); ok {
		l.Time = ts
		l.Text = rest
	}
	return l
}
