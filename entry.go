package statemap

// Entry is a handle to a single slot of a StateMap, returned by GetMut and
// GetMutOrDefault.
//
// Go cannot hand out the address of a map element, so Entry routes every read
// and write to the slot it was created for. Writes through an Entry are seen by
// Get with the same key and vice versa. An Entry is only valid while the map
// is not accessed concurrently.
type Entry[E any] struct {
	m    *StateMap[E]
	slot slot
}

// Key returns the logical key of the entry.
func (e Entry[E]) Key() Key {
	return e.slot.Key()
}

// Value returns the current value of the slot. The second result is false if
// the slot has been cleared since the Entry was obtained, or if e is the zero
// Entry.
func (e Entry[E]) Value() (E, bool) {
	if e.m == nil {
		var zero E
		return zero, false
	}
	return e.m.lookup(e.slot)
}

// Set stores v in the slot, re-creating it if it was cleared.
func (e Entry[E]) Set(v E) {
	if e.m == nil {
		return
	}
	e.m.store(e.slot, v)
}

// Update calls fn with a pointer to a copy of the current value (or the zero
// value if the slot is empty) and stores the result back.
func (e Entry[E]) Update(fn func(v *E)) {
	if e.m == nil {
		return
	}
	v, _ := e.m.lookup(e.slot)
	fn(&v)
	e.m.store(e.slot, v)
}
