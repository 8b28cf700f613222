package variant

import (
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/wippyai/script-bridge/errors"
)

// Encoding tags the byte layout a String was produced in.
type Encoding uint8

const (
	UTF8 Encoding = iota
	UTF16LE
	Latin1
)

func (e Encoding) String() string {
	switch e {
	case UTF8:
		return "utf-8"
	case UTF16LE:
		return "utf-16le"
	case Latin1:
		return "latin-1"
	}
	return "unknown"
}

func (e Encoding) codec() encoding.Encoding {
	switch e {
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case Latin1:
		return charmap.ISO8859_1
	}
	return nil
}

// Source is a lazily read text value, typically an engine string.
type Source interface {
	String() string
}

// String is an immutable, encoding-tagged text value. The zero value is
// the empty UTF-8 string.
//
// A String is either eager (raw bytes in enc) or lazy (src, read on first
// use). Lazy strings carry the encoding of their origin as a tag only.
type String struct {
	src Source
	raw string
	enc Encoding
}

// NewString wraps Go (UTF-8) text.
func NewString(s string) String {
	return String{raw: s, enc: UTF8}
}

// Encoded wraps bytes already in enc. The bytes are copied.
func Encoded(b []byte, enc Encoding) String {
	return String{raw: string(b), enc: enc}
}

// Lazy wraps a source whose text is read only when requested.
func Lazy(src Source, enc Encoding) String {
	if src == nil {
		return String{}
	}
	return String{src: src, enc: enc}
}

// Encoding returns the source encoding tag.
func (s String) Encoding() Encoding {
	return s.enc
}

func (s String) IsLazy() bool {
	return s.src != nil
}

// Source returns the lazy source, or nil for eager strings.
func (s String) Source() Source {
	return s.src
}

// Text returns the value as Go text. Invalid source bytes decode to U+FFFD.
func (s String) Text() string {
	if s.src != nil {
		return s.src.String()
	}
	if s.enc == UTF8 {
		return s.raw
	}
	out, err := s.enc.codec().NewDecoder().String(s.raw)
	if err != nil {
		return string(utf8.RuneError)
	}
	return out
}

// Bytes transcodes the value into enc.
func (s String) Bytes(enc Encoding) ([]byte, error) {
	if s.src == nil && s.enc == enc {
		return []byte(s.raw), nil
	}
	return encodeText(s.Text(), enc)
}

// AppendTo appends the value encoded as enc to dst.
func (s String) AppendTo(dst []byte, enc Encoding) ([]byte, error) {
	if s.src == nil && s.enc == enc {
		return append(dst, s.raw...), nil
	}
	b, err := encodeText(s.Text(), enc)
	if err != nil {
		return dst, err
	}
	return append(dst, b...), nil
}

// Equal compares content, not encoding or storage.
func (s String) Equal(o String) bool {
	if s.src == nil && o.src == nil && s.enc == o.enc {
		return s.raw == o.raw
	}
	return s.Text() == o.Text()
}

func encodeText(text string, enc Encoding) ([]byte, error) {
	if enc == UTF8 {
		return []byte(text), nil
	}
	out, err := enc.codec().NewEncoder().String(text)
	if err != nil {
		return nil, errors.New(errors.PhaseMarshal, errors.KindMarshal).
			ScriptType("string").
			NativeType(enc.String()).
			Detail("text not representable").
			Cause(err).
			Build()
	}
	return []byte(out), nil
}
