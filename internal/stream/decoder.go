package stream

import (
	"bytes"

	"golang.org/x/text/encoding/unicode"
)

// Decoder splits a chunked byte stream into complete text lines.
//
// Bytes are held until a '\n' arrives. A newline byte can never be part of a
// multi-byte UTF-8 sequence, so a character split across two chunks is always
// reassembled before the line is decoded.
type Decoder struct {
	buf []byte
}

// NewDecoder creates an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends chunk and returns every line it completed, without the line
// terminator. Invalid byte sequences decode to U+FFFD.
func (d *Decoder) Feed(chunk []byte) []string {
	d.buf = append(d.buf, chunk...)

	var lines []string
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		raw := bytes.TrimSuffix(d.buf[:idx], []byte{'\r'})
		lines = append(lines, decodeLine(raw))
		d.buf = d.buf[idx+1:]
	}

	// Release the backing array once everything has been consumed.
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return lines
}

// Buffered returns the number of bytes waiting for a line terminator.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Close ends the stream. An unterminated tail cannot hold a complete frame, so
// it is discarded; the number of dropped bytes is returned.
func (d *Decoder) Close() int {
	n := len(d.buf)
	d.buf = nil
	return n
}

func decodeLine(raw []byte) string {
	out, err := unicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		// The UTF-8 decoder substitutes instead of failing; keep the raw
		// bytes if that ever changes.
		return string(raw)
	}
	return string(out)
}
