package binding

// Handle is an opaque, generation-checked reference to a binding.
// Handle 0 is reserved and always invalid.
type Handle uint64

func makeHandle(slot, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(slot+1))
}

func (h Handle) slot() (uint32, bool) {
	idx := uint32(h)
	if idx == 0 {
		return 0, false
	}
	return idx - 1, true
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

// Kind tells which direction a binding crosses.
type Kind uint8

const (
	// KindProxy binds a native object to its script proxy
	KindProxy Kind = iota + 1
	// KindScriptObject binds a script object to its native wrapper
	KindScriptObject
)

func (k Kind) String() string {
	switch k {
	case KindProxy:
		return "proxy"
	case KindScriptObject:
		return "script_object"
	}
	return "unknown"
}

// Event types for binding lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

func (t EventType) String() string {
	if t == EventDropped {
		return "dropped"
	}
	return "created"
}

// Event represents a binding lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Kind   Kind
	Type   EventType
}

// Observer receives notifications about binding lifecycle events.
type Observer interface {
	OnBindingEvent(Event)
}

// Dropper is optionally implemented by binding values that release
// native state when removed.
type Dropper interface {
	Drop()
}
