package statemap

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"
)

// StateMap maps (type, state_key) pairs to values of type E.
//
// The zero value is an empty map ready to use. A StateMap must not be copied
// after first use; use Clone instead.
type StateMap[E any] struct {
	// Well known entries are stored by WellKnownType index. wellKnownSet has
	// bit i set when wellKnown[i] holds a value.
	wellKnown    [wellKnownCount]E
	wellKnownSet uint16

	membership map[string]E
	aliases    map[string]E
	invites    map[string]E

	// Inner maps are created on first insert for a type and are never
	// pruned, even once empty.
	others map[string]map[string]E
}

// New creates an empty StateMap.
func New[E any]() *StateMap[E] {
	return &StateMap[E]{}
}

// Get returns the value stored for (t, s).
func (m *StateMap[E]) Get(t, s string) (E, bool) {
	return m.lookup(classify(t, s))
}

// GetMut returns a handle to the existing entry for (t, s).
// The second result is false if there is no such entry.
func (m *StateMap[E]) GetMut(t, s string) (Entry[E], bool) {
	sl := classify(t, s)
	if _, ok := m.lookup(sl); !ok {
		return Entry[E]{}, false
	}
	return Entry[E]{m: m, slot: sl}, true
}

// GetMutOrDefault returns a handle to the entry for (t, s), first storing the
// zero value of E if the entry does not exist.
func (m *StateMap[E]) GetMutOrDefault(t, s string) Entry[E] {
	sl := classify(t, s)
	if _, ok := m.lookup(sl); !ok {
		var zero E
		m.store(sl, zero)
	}
	return Entry[E]{m: m, slot: sl}
}

// Insert stores value at (t, s), replacing any existing value.
func (m *StateMap[E]) Insert(t, s string, value E) {
	m.store(classify(t, s), value)
}

// InsertWellKnown stores value for the well known type w with an empty state
// key. It is equivalent to Insert(w.String(), "", value). Invalid variants are
// ignored.
func (m *StateMap[E]) InsertWellKnown(w WellKnownType, value E) {
	if !w.Valid() {
		return
	}
	m.store(wellKnownSlot(w), value)
}

// ContainsKey reports whether an entry exists for (t, s).
func (m *StateMap[E]) ContainsKey(t, s string) bool {
	_, ok := m.Get(t, s)
	return ok
}

// GetWellKnown returns the value for the well known type w with an empty
// state key.
func (m *StateMap[E]) GetWellKnown(w WellKnownType) (E, bool) {
	if !w.Valid() {
		var zero E
		return zero, false
	}
	return m.lookup(wellKnownSlot(w))
}

// GetMembership returns the m.room.member entry for user.
func (m *StateMap[E]) GetMembership(user string) (E, bool) {
	v, ok := m.membership[user]
	return v, ok
}

// GetAliases returns the m.room.aliases entry for server.
func (m *StateMap[E]) GetAliases(server string) (E, bool) {
	v, ok := m.aliases[server]
	return v, ok
}

// GetThirdPartyInvites returns the m.room.third_party_invite entry for token.
func (m *StateMap[E]) GetThirdPartyInvites(token string) (E, bool) {
	v, ok := m.invites[token]
	return v, ok
}

// Len returns the number of entries across all buckets.
func (m *StateMap[E]) Len() int {
	n := m.wellKnownLen() + len(m.membership) + len(m.aliases) + len(m.invites)
	for _, inner := range m.others {
		n += len(inner)
	}
	return n
}

// IsEmpty reports whether the map holds no entries.
func (m *StateMap[E]) IsEmpty() bool {
	return m.Len() == 0
}

// Stats holds per-bucket entry counts.
type Stats struct {
	WellKnown  int `json:"well_known" yaml:"well_known"`
	Membership int `json:"membership" yaml:"membership"`
	Aliases    int `json:"aliases" yaml:"aliases"`
	Invites    int `json:"invites" yaml:"invites"`
	Others     int `json:"others" yaml:"others"`
	// OtherTypes counts inner maps in the other bucket, including empty ones.
	OtherTypes int `json:"other_types" yaml:"other_types"`
}

// Total returns the number of entries counted by s.
func (s Stats) Total() int {
	return s.WellKnown + s.Membership + s.Aliases + s.Invites + s.Others
}

// Stats returns the number of entries in each bucket.
func (m *StateMap[E]) Stats() Stats {
	st := Stats{
		WellKnown:  m.wellKnownLen(),
		Membership: len(m.membership),
		Aliases:    len(m.aliases),
		Invites:    len(m.invites),
		OtherTypes: len(m.others),
	}
	for _, inner := range m.others {
		st.Others += len(inner)
	}
	return st
}

// Clone returns an independent copy of m. Values are copied by assignment, so
// pointer or slice values still share their referents.
func (m *StateMap[E]) Clone() *StateMap[E] {
	c := &StateMap[E]{
		wellKnown:    m.wellKnown,
		wellKnownSet: m.wellKnownSet,
		membership:   cloneMap(m.membership),
		aliases:      cloneMap(m.aliases),
		invites:      cloneMap(m.invites),
	}
	if m.others != nil {
		c.others = make(map[string]map[string]E, len(m.others))
		for t, inner := range m.others {
			if len(inner) == 0 {
				continue
			}
			c.others[t] = cloneMap(inner)
		}
	}
	return c
}

// String renders the entries sorted by key, for debugging.
func (m *StateMap[E]) String() string {
	keys := make([]Key, 0, m.Len())
	for k := range m.Keys() {
		keys = append(keys, k)
	}
	SortKeys(keys)

	var b strings.Builder
	b.WriteString("StateMap{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		v, _ := m.Get(k.Type, k.StateKey)
		fmt.Fprintf(&b, "(%q, %q): %v", k.Type, k.StateKey, v)
	}
	b.WriteString("}")
	return b.String()
}

// SortKeys sorts keys by type, then state key.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].StateKey < keys[j].StateKey
	})
}

func (m *StateMap[E]) wellKnownLen() int {
	return bits.OnesCount16(m.wellKnownSet)
}

func (m *StateMap[E]) hasWellKnown(w WellKnownType) bool {
	return m.wellKnownSet&(1<<w) != 0
}

// lookup returns the value at sl.
func (m *StateMap[E]) lookup(sl slot) (E, bool) {
	var (
		v  E
		ok bool
	)
	switch sl.bucket {
	case BucketWellKnown:
		if m.hasWellKnown(sl.wellKnown) {
			v, ok = m.wellKnown[sl.wellKnown], true
		}
	case BucketMembership:
		v, ok = m.membership[sl.key]
	case BucketAliases:
		v, ok = m.aliases[sl.key]
	case BucketInvites:
		v, ok = m.invites[sl.key]
	default:
		v, ok = m.others[sl.typ][sl.key]
	}
	return v, ok
}

// store writes value at sl, allocating bucket maps as needed.
func (m *StateMap[E]) store(sl slot, value E) {
	switch sl.bucket {
	case BucketWellKnown:
		m.wellKnown[sl.wellKnown] = value
		m.wellKnownSet |= 1 << sl.wellKnown
	case BucketMembership:
		if m.membership == nil {
			m.membership = make(map[string]E)
		}
		m.membership[sl.key] = value
	case BucketAliases:
		if m.aliases == nil {
			m.aliases = make(map[string]E)
		}
		m.aliases[sl.key] = value
	case BucketInvites:
		if m.invites == nil {
			m.invites = make(map[string]E)
		}
		m.invites[sl.key] = value
	default:
		if m.others == nil {
			m.others = make(map[string]map[string]E)
		}
		inner, ok := m.others[sl.typ]
		if !ok {
			inner = make(map[string]E)
			m.others[sl.typ] = inner
		}
		inner[sl.key] = value
	}
}

// remove clears sl and returns the value it held. Empty inner maps in the
// other bucket are left in place.
func (m *StateMap[E]) remove(sl slot) (E, bool) {
	v, ok := m.lookup(sl)
	if !ok {
		return v, false
	}
	switch sl.bucket {
	case BucketWellKnown:
		var zero E
		m.wellKnown[sl.wellKnown] = zero
		m.wellKnownSet &^= 1 << sl.wellKnown
	case BucketMembership:
		delete(m.membership, sl.key)
	case BucketAliases:
		delete(m.aliases, sl.key)
	case BucketInvites:
		delete(m.invites, sl.key)
	default:
		delete(m.others[sl.typ], sl.key)
	}
	return v, true
}

func cloneMap[E any](src map[string]E) map[string]E {
	if src == nil {
		return nil
	}
	dst := make(map[string]E, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
