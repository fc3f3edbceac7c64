package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const readChunkSize = 4096

// Reader yields events from a response body in arrival order.
type Reader struct {
	body    io.Reader
	dec     *Decoder
	ext     *Extractor
	chunk   []byte
	pending []Event
	eof     bool
	err     error

	// TailBytes is the size of the unterminated tail discarded at EOF.
	TailBytes int
}

// NewReader wraps body. onDrop receives malformed frames and may be nil.
func NewReader(body io.Reader, onDrop DropFunc) *Reader {
	return &Reader{
		body:  body,
		dec:   NewDecoder(),
		ext:   NewExtractor(onDrop),
		chunk: make([]byte, readChunkSize),
	}
}

// Next returns the next event. It returns io.EOF once the body is exhausted
// and every buffered event has been delivered, and ctx.Err() if ctx is done
// before or during a read.
func (r *Reader) Next(ctx context.Context) (Event, error) {
	for {
		if len(r.pending) > 0 {
			ev := r.pending[0]
			r.pending = r.pending[1:]
			return ev, nil
		}
		if r.err != nil {
			return nil, r.err
		}
		if r.eof {
			return nil, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := r.body.Read(r.chunk)
		if n > 0 {
			for _, line := range r.dec.Feed(r.chunk[:n]) {
				if ev, ok := r.ext.Extract(line); ok {
					r.pending = append(r.pending, ev)
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.eof = true
				r.TailBytes = r.dec.Close()
				continue
			}
			// A cancelled request surfaces as a read error; report the
			// cancellation rather than the transport symptom.
			if ctxErr := ctx.Err(); ctxErr != nil {
				r.err = ctxErr
			} else {
				r.err = fmt.Errorf("reading stream: %w", err)
			}
		}
	}
}

// Dropped returns the number of malformed frames skipped so far.
func (r *Reader) Dropped() int {
	return r.ext.Dropped()
}
