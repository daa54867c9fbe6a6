package statemap

import "iter"

// FromSeq builds a StateMap by inserting every pair of seq in order. Later
// pairs replace earlier ones with the same key.
func FromSeq[E any](seq iter.Seq2[Key, E]) *StateMap[E] {
	m := New[E]()
	m.Extend(seq)
	return m
}

// FromMap builds a StateMap holding the entries of src.
func FromMap[E any](src map[Key]E) *StateMap[E] {
	m := New[E]()
	m.ExtendMap(src)
	return m
}

// Extend inserts every pair of seq in order, with the same semantics as
// calling Insert for each.
func (m *StateMap[E]) Extend(seq iter.Seq2[Key, E]) {
	for k, v := range seq {
		m.Insert(k.Type, k.StateKey, v)
	}
}

// ExtendMap inserts every entry of src.
func (m *StateMap[E]) ExtendMap(src map[Key]E) {
	for k, v := range src {
		m.Insert(k.Type, k.StateKey, v)
	}
}

// Pair is a key/value pair, for building maps from slices.
type Pair[E any] struct {
	Key   Key
	Value E
}

// Pairs adapts a slice of pairs to an iterator for FromSeq and Extend.
func Pairs[E any](pairs ...Pair[E]) iter.Seq2[Key, E] {
	return func(yield func(Key, E) bool) {
		for _, p := range pairs {
			if !yield(p.Key, p.Value) {
				return
			}
		}
	}
}
