package roster

// decode.go turns the raw roster bytes into UTF-8 for the CSV parser.
//
// Single-byte and multi-byte legacy charsets go through an x/text decoder.
// UTF-8 input only needs its BOM removed and stray invalid bytes replaced,
// which is done on the fly by bomSkippingReader and utf8Sanitizer.

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode/utf32"
)

// ErrUnsupportedEncoding is returned when a charset label has no decoder.
var ErrUnsupportedEncoding = errors.New("unsupported encoding")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// NewDecodingReader wraps r so that reads yield UTF-8 text decoded from charset.
// An empty charset is treated as UTF-8.
func NewDecodingReader(r io.Reader, charset string) (io.Reader, error) {
	name := strings.TrimSpace(charset)
	if name == "" {
		name = DefaultCharset
	}

	enc, canonical, err := lookupEncoding(name)
	if err != nil {
		return nil, err
	}

	if canonical == "utf-8" {
		return newUTF8Sanitizer(newBOMSkippingReader(r)), nil
	}
	return enc.NewDecoder().Reader(r), nil
}

// labelAliases maps detector labels that neither index knows to a name
// htmlindex accepts.
var labelAliases = map[string]string{
	"gb-18030": "gb18030",
}

// extraEncodings covers charsets missing from both indexes.
var extraEncodings = map[string]encoding.Encoding{
	"utf-32le": utf32.UTF32(utf32.LittleEndian, utf32.UseBOM),
	"utf-32be": utf32.UTF32(utf32.BigEndian, utf32.UseBOM),
}

// SupportedEncoding reports whether charset has a decoder.
func SupportedEncoding(charset string) bool {
	_, _, err := lookupEncoding(strings.TrimSpace(charset))
	return err == nil
}

// lookupEncoding resolves a charset label, trying the WHATWG names first
// (they cover what browsers and spreadsheets emit) and IANA names second.
func lookupEncoding(name string) (encoding.Encoding, string, error) {
	lower := strings.ToLower(name)
	if alias, ok := labelAliases[lower]; ok {
		name = alias
	}
	if enc, ok := extraEncodings[lower]; ok {
		return enc, lower, nil
	}

	if enc, err := htmlindex.Get(name); err == nil {
		canonical, _ := htmlindex.Name(enc)
		return enc, canonical, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedEncoding, name)
	}
	canonical, _ := ianaindex.IANA.Name(enc)
	return enc, strings.ToLower(canonical), nil
}

// bomSkippingReader drops a leading UTF-8 BOM (0xEF 0xBB 0xBF), which
// Windows spreadsheet exports like to prepend.
type bomSkippingReader struct {
	reader  io.Reader
	checked bool
	pending []byte
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{reader: r}
}

func (r *bomSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true

		var head [3]byte
		n, err := io.ReadFull(r.reader, head[:])
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return 0, err
		}
		if n == len(utf8BOM) && head == [3]byte(utf8BOM) {
			n = 0
		}
		r.pending = append(r.pending, head[:n]...)
	}

	if len(r.pending) > 0 {
		copied := copy(p, r.pending)
		r.pending = r.pending[copied:]
		return copied, nil
	}

	return r.reader.Read(p)
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?' while streaming.
// A multi-byte sequence split across two reads is carried to the next read.
type utf8Sanitizer struct {
	reader io.Reader
	chunk  []byte
	in     []byte
	out    []byte
	err    error
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{reader: r, chunk: make([]byte, 4096)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	for len(s.out) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		n, err := s.reader.Read(s.chunk)
		s.in = append(s.in, s.chunk[:n]...)
		s.err = err
		s.out, s.in = sanitizeUTF8(s.in, err != nil)
	}

	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

// sanitizeUTF8 returns data with invalid bytes replaced by '?'. Unless atEOF,
// an incomplete sequence at the end is returned separately as rest.
func sanitizeUTF8(data []byte, atEOF bool) (out, rest []byte) {
	if utf8.Valid(data) {
		return append([]byte(nil), data...), nil
	}

	out = make([]byte, 0, len(data))
	for i := 0; i < len(data); {
		if data[i] < utf8.RuneSelf {
			out = append(out, data[i])
			i++
			continue
		}
		if !atEOF && !utf8.FullRune(data[i:]) {
			return out, append([]byte(nil), data[i:]...)
		}
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			out = append(out, '?')
		} else {
			out = append(out, data[i:i+size]...)
		}
		i += size
	}
	return out, nil
}
