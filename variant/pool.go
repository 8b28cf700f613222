package variant

import (
	"sync"

	"golang.org/x/text/transform"

	"github.com/wippyai/script-bridge/errors"
)

const (
	// pooledSize bounds the pooled buffers; longer values go to the heap
	pooledSize = 128
)

var pooledBufs = sync.Pool{
	New: func() any {
		return new([pooledSize]byte)
	},
}

func getPooled() *[pooledSize]byte {
	return pooledBufs.Get().(*[pooledSize]byte)
}

func putPooled(buf *[pooledSize]byte) {
	if buf == nil {
		return
	}
	pooledBufs.Put(buf)
}

// PooledString is a short-lived encoded view. Bytes is valid until Release.
type PooledString struct {
	buf  *[pooledSize]byte
	heap []byte
	n    int
}

// Bytes returns the encoded bytes.
func (p *PooledString) Bytes() []byte {
	if p.buf == nil {
		return p.heap
	}
	return p.buf[:p.n]
}

// Pooled reports whether the bytes live in a pooled buffer.
func (p *PooledString) Pooled() bool {
	return p.buf != nil
}

// Release returns the buffer to the pool. Bytes must not be used after.
func (p *PooledString) Release() {
	if p.buf != nil {
		putPooled(p.buf)
		p.buf = nil
	}
	p.heap = nil
	p.n = 0
}

// Pooled encodes s as enc into a pooled fixed-size buffer, falling back to
// a heap allocation when the result does not fit.
func (s String) Pooled(enc Encoding) (*PooledString, error) {
	text := s.Text()
	buf := getPooled()

	if enc == UTF8 {
		if len(text) <= pooledSize {
			return &PooledString{buf: buf, n: copy(buf[:], text)}, nil
		}
		putPooled(buf)
		return &PooledString{heap: []byte(text)}, nil
	}

	nDst, _, err := enc.codec().NewEncoder().Transform(buf[:], []byte(text), true)
	if err == nil {
		return &PooledString{buf: buf, n: nDst}, nil
	}
	putPooled(buf)
	if err != transform.ErrShortDst {
		// unrepresentable input; let the full encoder produce the error
		return nil, encodeErr(text, enc)
	}
	b, err := encodeText(text, enc)
	if err != nil {
		return nil, err
	}
	return &PooledString{heap: b}, nil
}

func encodeErr(text string, enc Encoding) error {
	if _, err := encodeText(text, enc); err != nil {
		return err
	}
	return errors.New(errors.PhaseMarshal, errors.KindMarshal).
		NativeType(enc.String()).
		Detail("transcode failed").
		Build()
}
