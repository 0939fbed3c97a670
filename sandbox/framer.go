package sandbox

import (
	"bytes"
	"io"
	"strings"

	"github.com/docker/docker/pkg/stdcopy"
)

// TruncatedMarker is appended to output that exceeded the capture limit.
const TruncatedMarker = "[output truncated]"

// Demux copies the payload of a multiplexed attach stream into w.
//
// A non-TTY attach stream is a sequence of frames, each prefixed by an 8 byte
// header: one byte stream id (stdin, stdout, stderr or system error), three
// zero bytes and a big-endian uint32 payload length. Every header is decoded,
// not just the first one. Stdout and stderr payloads go to the same writer, so
// their relative order is the order the sandbox produced them in.
func Demux(w io.Writer, r io.Reader) (int64, error) {
	return stdcopy.StdCopy(w, w, r)
}

// Decode demultiplexes a fully accumulated stream and normalizes it.
func Decode(raw []byte) (string, error) {
	var buf bytes.Buffer
	_, err := Demux(&buf, bytes.NewReader(raw))
	return Normalize(buf.Bytes()), err
}

// Normalize turns raw program output into response text: invalid UTF-8 is
// replaced and surrounding whitespace trimmed.
func Normalize(b []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(b), "\uFFFD"))
}

// CappedBuffer keeps the first Max bytes written to it and silently discards
// the rest, so a chatty program is still drained to the end.
type CappedBuffer struct {
	Max       int
	buf       bytes.Buffer
	truncated bool
}

// Write always reports the full length so that Demux keeps going.
func (c *CappedBuffer) Write(p []byte) (int, error) {
	room := c.Max - c.buf.Len()
	if room <= 0 {
		if len(p) > 0 {
			c.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		c.buf.Write(p[:room])
		c.truncated = true
		return len(p), nil
	}
	c.buf.Write(p)
	return len(p), nil
}

// Bytes returns the captured bytes.
func (c *CappedBuffer) Bytes() []byte {
	return c.buf.Bytes()
}

// Truncated reports whether anything was discarded.
func (c *CappedBuffer) Truncated() bool {
	return c.truncated
}

// String returns the normalized output, with TruncatedMarker appended when truncated.
func (c *CappedBuffer) String() string {
	out := Normalize(c.buf.Bytes())
	if c.truncated {
		if out != "" {
			out += "\n"
		}
		out += TruncatedMarker
	}
	return out
}
