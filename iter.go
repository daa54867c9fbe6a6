package statemap

import "iter"

// All returns an iterator over every entry. Buckets are visited in the order
// well known, membership, aliases, invites, others; order within a bucket is
// unspecified.
func (m *StateMap[E]) All() iter.Seq2[Key, E] {
	return func(yield func(Key, E) bool) {
		_ = m.yieldWellKnown(yield) &&
			yieldBucket(m.membership, TypeMembership, yield) &&
			m.yieldRest(yield)
	}
}

// Keys returns an iterator over the keys of every entry.
func (m *StateMap[E]) Keys() iter.Seq[Key] {
	return func(yield func(Key) bool) {
		for k := range m.All() {
			if !yield(k) {
				return
			}
		}
	}
}

// Values returns an iterator over the values of every entry.
func (m *StateMap[E]) Values() iter.Seq[E] {
	return func(yield func(E) bool) {
		for _, v := range m.All() {
			if !yield(v) {
				return
			}
		}
	}
}

// Members returns an iterator over the m.room.member entries, yielding the
// state key (user ID) and value.
func (m *StateMap[E]) Members() iter.Seq2[string, E] {
	return func(yield func(string, E) bool) {
		for user, v := range m.membership {
			if !yield(user, v) {
				return
			}
		}
	}
}

// JoinRules returns an iterator over the m.room.join_rules entries, yielding
// the state key and value.
//
// Unlike the other accessors this also yields join rules with a non-empty
// state key, which are stored in the other bucket. Only v1 state resolution
// needs those.
func (m *StateMap[E]) JoinRules() iter.Seq2[string, E] {
	return func(yield func(string, E) bool) {
		if m.hasWellKnown(JoinRules) {
			if !yield("", m.wellKnown[JoinRules]) {
				return
			}
		}
		for s, v := range m.others[TypeJoinRules] {
			if !yield(s, v) {
				return
			}
		}
	}
}

// NonMembers returns an iterator over every entry whose type is not
// m.room.member.
func (m *StateMap[E]) NonMembers() iter.Seq2[Key, E] {
	return func(yield func(Key, E) bool) {
		_ = m.yieldWellKnown(yield) && m.yieldRest(yield)
	}
}

func (m *StateMap[E]) yieldWellKnown(yield func(Key, E) bool) bool {
	if m.wellKnownSet == 0 {
		return true
	}
	for i := range wellKnownCount {
		w := WellKnownType(i)
		if !m.hasWellKnown(w) {
			continue
		}
		if !yield(Key{Type: w.String()}, m.wellKnown[i]) {
			return false
		}
	}
	return true
}

// yieldRest yields the alias, invite and other buckets.
func (m *StateMap[E]) yieldRest(yield func(Key, E) bool) bool {
	if !yieldBucket(m.aliases, TypeAliases, yield) {
		return false
	}
	if !yieldBucket(m.invites, TypeThirdPartyInvite, yield) {
		return false
	}
	for t, inner := range m.others {
		if !yieldBucket(inner, t, yield) {
			return false
		}
	}
	return true
}

func yieldBucket[E any](bucket map[string]E, t string, yield func(Key, E) bool) bool {
	for s, v := range bucket {
		if !yield(Key{Type: t, StateKey: s}, v) {
			return false
		}
	}
	return true
}
