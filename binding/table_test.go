package binding

import (
	"testing"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnBindingEvent(e Event) {
	o.events = append(o.events, e)
}

type dropCounter struct {
	count int
}

func (d *dropCounter) Drop() {
	d.count++
}

func TestTable_Basic(t *testing.T) {
	table := NewTable()

	h := table.Insert(KindProxy, "test")
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}

	val, ok := table.Get(h)
	if !ok {
		t.Fatal("Get failed")
	}
	if val != "test" {
		t.Fatalf("Expected 'test', got %v", val)
	}

	if _, ok := table.GetKind(h, KindProxy); !ok {
		t.Fatal("GetKind with correct kind failed")
	}
	if _, ok := table.GetKind(h, KindScriptObject); ok {
		t.Fatal("GetKind with wrong kind should fail")
	}

	val, ok = table.Remove(h)
	if !ok || val != "test" {
		t.Fatalf("Remove = %v, %v", val, ok)
	}
	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Remove")
	}
	if _, ok := table.Remove(h); ok {
		t.Fatal("second Remove should fail")
	}
}

func TestTable_StaleHandle(t *testing.T) {
	table := NewTable()

	h1 := table.Insert(KindProxy, "a")
	table.Remove(h1)

	h2 := table.Insert(KindProxy, "b")
	if h1 == h2 {
		t.Fatal("reused slot must produce a new handle")
	}
	if h1.generation() == h2.generation() {
		t.Fatal("generation should advance on reuse")
	}
	s1, _ := h1.slot()
	s2, _ := h2.slot()
	if s1 != s2 {
		t.Fatalf("expected slot reuse, got %d and %d", s1, s2)
	}

	if _, ok := table.Get(h1); ok {
		t.Fatal("stale handle must not resolve")
	}
	if table.Valid(h1) || !table.Valid(h2) {
		t.Fatal("Valid mismatch")
	}
	if _, ok := table.Detach(h1); ok {
		t.Fatal("Detach with stale handle must fail")
	}
	if v, _ := table.Get(h2); v != "b" {
		t.Fatalf("Get(h2) = %v", v)
	}
}

func TestTable_InvalidHandles(t *testing.T) {
	table := NewTable()
	for _, h := range []Handle{0, 1, makeHandle(100, 0)} {
		if _, ok := table.Get(h); ok {
			t.Errorf("Get(%d) should fail", h)
		}
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	h := table.Insert(KindScriptObject, "test")
	if len(obs.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(obs.events))
	}
	if obs.events[0].Type != EventCreated || obs.events[0].Handle != h {
		t.Fatalf("unexpected event %+v", obs.events[0])
	}
	if obs.events[0].Kind != KindScriptObject {
		t.Fatalf("event kind = %v", obs.events[0].Kind)
	}

	table.Detach(h)
	if len(obs.events) != 2 || obs.events[1].Type != EventDropped {
		t.Fatal("Expected EventDropped")
	}

	table.Unsubscribe(obs)
	table.Insert(KindProxy, "test2")
	if len(obs.events) != 2 {
		t.Fatal("Should not receive events after Unsubscribe")
	}
}

func TestTable_DropperInterface(t *testing.T) {
	table := NewTable()
	d := &dropCounter{}

	h := table.Insert(KindProxy, d)
	table.Remove(h)
	if d.count != 1 {
		t.Fatalf("Expected Drop() to be called once, called %d times", d.count)
	}

	h = table.Insert(KindProxy, d)
	table.Detach(h)
	if d.count != 1 {
		t.Fatal("Detach must not call Drop")
	}
}

func TestTable_EachCount(t *testing.T) {
	table := NewTable()
	table.Insert(KindProxy, "a")
	h := table.Insert(KindScriptObject, "b")
	table.Insert(KindProxy, "c")
	table.Remove(h)

	var seen []any
	table.Each(func(_ Handle, _ Kind, v any) bool {
		seen = append(seen, v)
		return true
	})
	if len(seen) != 2 {
		t.Fatalf("Each visited %d, want 2", len(seen))
	}
	if table.Count(KindProxy) != 2 || table.Count(KindScriptObject) != 0 {
		t.Fatal("Count mismatch")
	}

	n := 0
	table.Each(func(Handle, Kind, any) bool {
		n++
		return false
	})
	if n != 1 {
		t.Fatal("Each should stop when fn returns false")
	}
}

func TestTable_ClearClose(t *testing.T) {
	table := NewTable()
	d := &dropCounter{}

	table.Insert(KindProxy, d)
	table.Insert(KindProxy, d)
	table.Insert(KindProxy, "c")
	if table.Len() != 3 {
		t.Fatal("Expected Len() == 3")
	}

	table.Clear()
	if table.Len() != 0 || d.count != 2 {
		t.Fatalf("after Clear: len=%d drops=%d", table.Len(), d.count)
	}

	table.Insert(KindProxy, "x")
	if err := table.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if table.Len() != 0 {
		t.Fatal("Close should clear")
	}
	if h := table.Insert(KindProxy, "y"); h != 0 {
		t.Fatal("Expected Insert to fail after Close")
	}
}
