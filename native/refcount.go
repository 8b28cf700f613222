package native

import "sync/atomic"

// RefCount is an embeddable reference counter. The zero value holds no
// references. It may be shared by contexts on different goroutines.
type RefCount struct {
	n atomic.Int64
}

func (r *RefCount) AddRef() {
	r.n.Add(1)
}

func (r *RefCount) Release() {
	if r.n.Add(-1) < 0 {
		r.n.Store(0)
	}
}

// Refs returns the current reference count.
func (r *RefCount) Refs() int64 {
	return r.n.Load()
}
