package sheet

// streaming.go wraps CSV input so the parser sees clean UTF-8:
//
//   - bomSkippingReader drops the UTF-8 BOM Windows tools prepend
//   - utf8Sanitizer replaces invalid bytes with '?' without buffering the file
//
// Use cleanInput to apply both in the right order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// bomSkippingReader discards a leading UTF-8 BOM.
type bomSkippingReader struct {
	br      *bufio.Reader
	checked bool
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{br: bufio.NewReader(r)}
}

func (r *bomSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true
		head, err := r.br.Peek(len(utf8BOM))
		if err != nil && err != io.EOF {
			return 0, err
		}
		if bytes.Equal(head, utf8BOM) {
			_, _ = r.br.Discard(len(utf8BOM))
		}
	}
	return r.br.Read(p)
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?'. A multi-byte sequence
// split across reads is held back until the next read completes it.
type utf8Sanitizer struct {
	r       io.Reader
	pending []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}
	return s.sanitize(p[:n], err == io.EOF), err
}

// sanitize rewrites data in place and returns the number of bytes to hand
// out. Unless atEOF, an incomplete trailing sequence moves to pending.
func (s *utf8Sanitizer) sanitize(data []byte, atEOF bool) int {
	write := 0
	for read := 0; read < len(data); {
		if data[read] < utf8.RuneSelf {
			data[write] = data[read]
			write++
			read++
			continue
		}

		rest := data[read:]
		if !atEOF && !utf8.FullRune(rest) {
			s.pending = append(s.pending, rest...)
			return write
		}

		r, size := utf8.DecodeRune(rest)
		if r == utf8.RuneError && size == 1 {
			data[write] = '?'
			write++
			read++
			continue
		}
		copy(data[write:], rest[:size])
		write += size
		read += size
	}
	return write
}

// cleanInput strips the BOM first, then sanitizes.
func cleanInput(r io.Reader) io.Reader {
	return newUTF8Sanitizer(newBOMSkippingReader(r))
}
