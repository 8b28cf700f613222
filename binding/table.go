package binding

// Table is an arena of bindings indexed by generation-checked handles.
type Table struct {
	entries   []entry
	freeList  []uint32
	observers []Observer
	live      int
	closed    bool
}

type entry struct {
	value any
	gen   uint32
	kind  Kind
	valid bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries:  make([]entry, 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

// Insert stores a value and returns its handle, or 0 when closed.
func (t *Table) Insert(kind Kind, value any) Handle {
	if t.closed {
		return 0
	}

	var slot uint32
	if n := len(t.freeList); n > 0 {
		slot = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
	} else {
		t.entries = append(t.entries, entry{})
		slot = uint32(len(t.entries) - 1)
	}

	e := &t.entries[slot]
	e.value = value
	e.kind = kind
	e.valid = true
	t.live++

	h := makeHandle(slot, e.gen)
	t.notify(Event{Type: EventCreated, Handle: h, Kind: kind, Value: value})
	return h
}

func (t *Table) lookup(h Handle) *entry {
	slot, ok := h.slot()
	if !ok || int(slot) >= len(t.entries) {
		return nil
	}
	e := &t.entries[slot]
	if !e.valid || e.gen != h.generation() {
		return nil
	}
	return e
}

// Get retrieves a value by handle.
func (t *Table) Get(h Handle) (any, bool) {
	e := t.lookup(h)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// GetKind retrieves a value only if it has the expected kind.
func (t *Table) GetKind(h Handle, kind Kind) (any, bool) {
	e := t.lookup(h)
	if e == nil || e.kind != kind {
		return nil, false
	}
	return e.value, true
}

// Valid reports whether h refers to a live binding.
func (t *Table) Valid(h Handle) bool {
	return t.lookup(h) != nil
}

// Remove drops a binding, calling Drop on values that implement Dropper.
func (t *Table) Remove(h Handle) (any, bool) {
	value, ok := t.Detach(h)
	if !ok {
		return nil, false
	}
	if d, ok := value.(Dropper); ok {
		d.Drop()
	}
	return value, true
}

// Detach frees the slot without calling Drop. The caller owns any
// release the value still needs.
func (t *Table) Detach(h Handle) (any, bool) {
	e := t.lookup(h)
	if e == nil {
		return nil, false
	}

	slot, _ := h.slot()
	value, kind := e.value, e.kind
	e.value = nil
	e.valid = false
	e.gen++
	t.live--
	t.freeList = append(t.freeList, slot)

	t.notify(Event{Type: EventDropped, Handle: h, Kind: kind, Value: value})
	return value, true
}

// Len returns the number of live bindings.
func (t *Table) Len() int {
	return t.live
}

// Count returns the number of live bindings of one kind.
func (t *Table) Count(kind Kind) int {
	n := 0
	for i := range t.entries {
		if t.entries[i].valid && t.entries[i].kind == kind {
			n++
		}
	}
	return n
}

// Each iterates over live bindings until fn returns false.
func (t *Table) Each(fn func(Handle, Kind, any) bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if !e.valid {
			continue
		}
		if !fn(makeHandle(uint32(i), e.gen), e.kind, e.value) {
			return
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Clear removes every binding.
func (t *Table) Clear() {
	// Collect handles first so Drop callbacks may touch the table
	var handles []Handle
	t.Each(func(h Handle, _ Kind, _ any) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
}

// Close clears the table and stops accepting inserts.
func (t *Table) Close() error {
	if t.closed {
		return nil
	}
	t.Clear()
	t.closed = true
	return nil
}

func (t *Table) notify(e Event) {
	for _, o := range t.observers {
		o.OnBindingEvent(e)
	}
}
