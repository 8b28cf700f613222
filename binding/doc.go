// Package binding provides the per-realm table of cross-boundary bindings.
//
// Every native object exposed to script gets a proxy binding, and every
// script object handed to native code gets a script-object binding. The
// table stores them in an arena slice with a free list; handles carry a
// generation so a handle to a reused slot is rejected:
//
//	table := binding.NewTable()
//
//	h := table.Insert(binding.KindProxy, b)
//	value, ok := table.Get(h)
//
//	// Remove runs the value's Drop, Detach leaves it to the caller
//	value, ok = table.Remove(h)
//	value, ok = table.Detach(h)
//
// # Handles
//
// A Handle packs the slot index (plus one) in the low 32 bits and the slot
// generation in the high 32 bits. Handle 0 is always invalid. A slot's
// generation increments every time it is freed.
//
// # Observers
//
// Observers receive EventCreated and EventDropped notifications:
//
//	table.Subscribe(observer)
//
// # Threading
//
// A Table has no internal locking. It belongs to one realm and is only
// touched from the goroutine that owns that realm.
package binding
