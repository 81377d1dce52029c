package sse

import (
	"errors"
	"io"
	"unicode/utf8"
)

const defaultReadSize = 4 * 1024

// FragmentSource is a pull-based sequence of decoded text fragments.
// Fragment boundaries carry no meaning: a fragment may end mid-line, mid-prefix
// or mid-JSON object.
type FragmentSource interface {
	// Next returns the next fragment, or io.EOF once the source is exhausted.
	Next() (string, error)

	// Close releases the underlying resource. It is safe to call more than once.
	Close() error
}

// FragmentReader decodes an upstream byte stream, typically an HTTP response
// body, into UTF-8 text fragments while optionally writing the raw bytes
// verbatim to a destination writer.
//
// ┌──────────────────┐
// │ io.ReadCloser    │
// └──────────────────┘
// │
// ▼
// ┌──────────────────────┐   ┌────────────────────┐
// │ FragmentReader.Next()│──▶│ tee io.Writer      │
// └──────────────────────┘   └────────────────────┘
// │
// ▼
// ┌──────────────────┐
// │ text fragment    │
// └──────────────────┘
//
// A multi-byte rune split across two reads is held back until it is complete,
// so no fragment ever carries half a character.
type FragmentReader struct {
	src  io.ReadCloser
	tee  io.Writer
	buf  []byte
	rest []byte

	err    error
	eof    bool
	closed bool
}

// NewFragmentReader returns a FragmentReader over src. tee may be nil.
func NewFragmentReader(src io.ReadCloser, tee io.Writer) *FragmentReader {
	return &FragmentReader{
		src: src,
		tee: tee,
		buf: make([]byte, defaultReadSize),
	}
}

// Next blocks until the upstream produces bytes and returns them as text.
// Bytes that do not yet form a complete rune are kept for the next call.
// At upstream EOF any held bytes are flushed as-is, then io.EOF is returned.
// A read error that arrives with data is returned by the following call.
func (r *FragmentReader) Next() (string, error) {
	if r.closed {
		return "", io.ErrClosedPipe
	}

	for {
		if r.err != nil {
			return "", r.err
		}
		if r.eof {
			if len(r.rest) > 0 {
				text := string(r.rest)
				r.rest = nil
				return text, nil
			}
			return "", io.EOF
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			raw := r.buf[:n]
			if r.tee != nil {
				if _, werr := r.tee.Write(raw); werr != nil {
					return "", werr
				}
			}

			r.rest = append(r.rest, raw...)
			valid := completePrefix(r.rest)
			if valid > 0 {
				text := string(r.rest[:valid])
				r.rest = append(r.rest[:0], r.rest[valid:]...)
				switch {
				case err == nil:
				case errors.Is(err, io.EOF):
					r.eof = true
				default:
					r.err = err
				}
				return text, nil
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				r.eof = true
				continue
			}
			return "", err
		}
	}
}

// Close releases the upstream reader.
func (r *FragmentReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.src.Close()
}

// completePrefix returns the length of the longest prefix of b that does not
// end inside an incomplete multi-byte sequence. Invalid bytes are passed
// through; only a truncated trailing sequence (at most 3 bytes) is held back.
func completePrefix(b []byte) int {
	valid := 0
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			if len(b)-i < utf8.UTFMax && !utf8.FullRune(b[i:]) {
				break
			}
			i++
			valid = i
			continue
		}
		i += size
		valid = i
	}
	return valid
}

// Fragments is an in-memory FragmentSource over pre-split text. It is used for
// replays and tests, and records whether the consumer released it.
type Fragments struct {
	parts  []string
	pos    int
	closed bool
}

// NewFragments returns a source yielding parts in order.
func NewFragments(parts ...string) *Fragments {
	return &Fragments{parts: parts}
}

// Split cuts text into fragments of at most size bytes without regard for
// line or rune boundaries. A size below 1 yields a single fragment.
func Split(text string, size int) *Fragments {
	if size < 1 || size >= len(text) {
		return NewFragments(text)
	}

	parts := make([]string, 0, len(text)/size+1)
	for len(text) > size {
		parts = append(parts, text[:size])
		text = text[size:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return NewFragments(parts...)
}

// Next returns the next fragment or io.EOF.
func (f *Fragments) Next() (string, error) {
	if f.closed {
		return "", io.ErrClosedPipe
	}
	if f.pos >= len(f.parts) {
		return "", io.EOF
	}
	part := f.parts[f.pos]
	f.pos++
	return part, nil
}

// Close marks the source released.
func (f *Fragments) Close() error {
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *Fragments) Closed() bool {
	return f.closed
}

// Remaining reports how many fragments were never pulled.
func (f *Fragments) Remaining() int {
	return len(f.parts) - f.pos
}
