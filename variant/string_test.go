package variant

import (
	"bytes"
	"strings"
	"testing"

	"github.com/wippyai/script-bridge/errors"
)

type countingSource struct {
	text  string
	reads int
}

func (s *countingSource) String() string {
	s.reads++
	return s.text
}

func TestString_Transcode(t *testing.T) {
	tests := []struct {
		name string
		text string
		enc  Encoding
		want []byte
	}{
		{"utf8", "añb", UTF8, []byte("añb")},
		{"utf16", "añb", UTF16LE, []byte{'a', 0, 0xf1, 0, 'b', 0}},
		{"latin1", "añb", Latin1, []byte{'a', 0xf1, 'b'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewString(tt.text).Bytes(tt.enc)
			if err != nil {
				t.Fatalf("Bytes: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("Bytes = %x, want %x", got, tt.want)
			}

			back := Encoded(got, tt.enc)
			if back.Encoding() != tt.enc {
				t.Errorf("Encoding() = %v", back.Encoding())
			}
			if back.Text() != tt.text {
				t.Errorf("Text() = %q, want %q", back.Text(), tt.text)
			}
		})
	}
}

func TestString_Unrepresentable(t *testing.T) {
	_, err := NewString("日本").Bytes(Latin1)
	if !errors.Is(err, errors.ErrMarshal) {
		t.Fatalf("expected marshal error, got %v", err)
	}
}

func TestString_Lazy(t *testing.T) {
	src := &countingSource{text: "lazy"}
	s := Lazy(src, UTF16LE)

	if !s.IsLazy() {
		t.Fatal("expected lazy string")
	}
	if s.Encoding() != UTF16LE {
		t.Errorf("Encoding() = %v", s.Encoding())
	}
	if src.reads != 0 {
		t.Fatal("lazy string read eagerly")
	}

	b, err := s.Bytes(UTF8)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "lazy" {
		t.Errorf("Bytes = %q", b)
	}
	if src.reads != 1 {
		t.Errorf("reads = %d, want 1", src.reads)
	}

	if !s.Equal(NewString("lazy")) {
		t.Error("lazy string should equal eager one")
	}
}

func TestString_AppendTo(t *testing.T) {
	dst := []byte("x=")
	dst, err := NewString("é").AppendTo(dst, Latin1)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dst, []byte{'x', '=', 0xe9}) {
		t.Errorf("AppendTo = %x", dst)
	}
}

func TestPooled(t *testing.T) {
	p, err := NewString("short").Pooled(UTF16LE)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Pooled() {
		t.Error("short value should use pooled buffer")
	}
	if len(p.Bytes()) != 10 {
		t.Errorf("len = %d, want 10", len(p.Bytes()))
	}
	p.Release()
	if len(p.Bytes()) != 0 {
		t.Error("Bytes after Release should be empty")
	}

	long := strings.Repeat("z", pooledSize+1)
	p, err = NewString(long).Pooled(UTF8)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()
	if p.Pooled() {
		t.Error("long value should not use pooled buffer")
	}
	if string(p.Bytes()) != long {
		t.Error("long value mismatch")
	}

	p2, err := NewString(strings.Repeat("é", pooledSize)).Pooled(UTF16LE)
	if err != nil {
		t.Fatal(err)
	}
	if p2.Pooled() || len(p2.Bytes()) != pooledSize*2 {
		t.Errorf("overflowing transcode: pooled=%v len=%d", p2.Pooled(), len(p2.Bytes()))
	}
	p2.Release()

	if _, err := NewString("日").Pooled(Latin1); !errors.Is(err, errors.ErrMarshal) {
		t.Errorf("expected marshal error, got %v", err)
	}
}

func TestIdentifier(t *testing.T) {
	a := Intern("value")
	b := Intern(strings.Clone("value"))
	if a != b {
		t.Fatal("identifiers with equal text must compare equal")
	}
	if a.String() != "value" {
		t.Errorf("String() = %q", a.String())
	}
	if a == Intern("other") {
		t.Error("different names compared equal")
	}
	if !(Identifier{}).IsZero() || a.IsZero() {
		t.Error("IsZero wrong")
	}

	c, err := InternString(Encoded([]byte{'v', 0, 'a', 0, 'l', 0, 'u', 0, 'e', 0}, UTF16LE))
	if err != nil {
		t.Fatal(err)
	}
	if c != a {
		t.Error("InternString of utf-16 text should match")
	}
}
