package statemap

// AddOrRemove inserts v at (t, s) unless it conflicts with the stored value.
//
//   - No stored value: v is inserted and (zero, false) is returned.
//   - Stored value equal to v: nothing changes and (zero, false) is returned.
//   - Stored value differs: the stored value is removed, the slot is left
//     empty, and the removed value is returned with true.
//
// A conflicting v is never stored; callers that want the slot populated after
// a conflict must insert explicitly.
func AddOrRemove[E comparable](m *StateMap[E], t, s string, v E) (E, bool) {
	return addOrRemove(m, classify(t, s), v, func(a, b E) bool { return a == b })
}

// AddOrRemoveFunc is like AddOrRemove but compares values with eq.
func AddOrRemoveFunc[E any](m *StateMap[E], t, s string, v E, eq func(a, b E) bool) (E, bool) {
	return addOrRemove(m, classify(t, s), v, eq)
}

func addOrRemove[E any](m *StateMap[E], sl slot, v E, eq func(a, b E) bool) (E, bool) {
	var zero E
	existing, ok := m.lookup(sl)
	if !ok {
		m.store(sl, v)
		return zero, false
	}
	if eq(existing, v) {
		return zero, false
	}
	return m.remove(sl)
}

// Equal reports whether a and b hold the same entries. Empty inner maps left
// behind by AddOrRemove do not affect the result.
func Equal[E comparable](a, b *StateMap[E]) bool {
	return EqualFunc(a, b, func(x, y E) bool { return x == y })
}

// EqualFunc is like Equal but compares values with eq.
func EqualFunc[E any](a, b *StateMap[E], eq func(x, y E) bool) bool {
	if a.Len() != b.Len() {
		return false
	}
	for k, av := range a.All() {
		bv, ok := b.Get(k.Type, k.StateKey)
		if !ok || !eq(av, bv) {
			return false
		}
	}
	return true
}
