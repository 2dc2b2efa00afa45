package core

// streaming.go provides input readers applied before CSV parsing.
//
//   - SkipBOM: removes a UTF-8 BOM (0xEF 0xBB 0xBF) written by spreadsheet tools
//   - UTF8Sanitizer: replaces invalid UTF-8 bytes with '?' and counts them
//   - CountingReader: tracks bytes read for logging and metrics
//
// Use WrapForStreaming to apply all transforms in the correct order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SkipBOM returns a buffered reader positioned after a leading UTF-8 BOM, if any.
func SkipBOM(r io.Reader) *bufio.Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// UTF8Sanitizer wraps a reader and replaces each invalid UTF-8 byte with '?'.
// Valid multi-byte sequences split across reads are reassembled by the
// underlying bufio.Reader.
type UTF8Sanitizer struct {
	br       *bufio.Reader
	pending  []byte // encoded rune bytes that did not fit in the caller's buffer
	err      error
	Replaced int64 // number of invalid bytes replaced
}

// NewUTF8Sanitizer creates a sanitizer over r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &UTF8Sanitizer{br: br}
}

// Read implements io.Reader.
func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	n := 0
	var enc [utf8.UTFMax]byte

	for n < len(p) {
		if len(s.pending) > 0 {
			c := copy(p[n:], s.pending)
			s.pending = s.pending[c:]
			n += c
			continue
		}
		if s.err != nil {
			break
		}

		r, size, err := s.br.ReadRune()
		if err != nil {
			s.err = err
			break
		}

		switch {
		case r == utf8.RuneError && size == 1:
			p[n] = '?'
			n++
			s.Replaced++
		case size == 1:
			p[n] = byte(r)
			n++
		default:
			w := utf8.EncodeRune(enc[:], r)
			c := copy(p[n:], enc[:w])
			n += c
			if c < w {
				s.pending = append([]byte(nil), enc[c:w]...)
			}
		}
	}

	if n > 0 {
		return n, nil
	}
	return 0, s.err
}

// CountingReader wraps an io.Reader to track bytes read.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
}

// NewCountingReader creates a counting reader.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{reader: r}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// WrapForStreaming wraps a reader with byte counting, BOM skipping and
// UTF-8 sanitization. The counter sees raw bytes from the source.
func WrapForStreaming(r io.Reader) (*UTF8Sanitizer, *CountingReader) {
	counter := NewCountingReader(r)
	return NewUTF8Sanitizer(SkipBOM(counter)), counter
}
