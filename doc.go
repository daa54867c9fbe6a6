// Package statemap provides StateMap, a specialised container for Matrix room
// state.
//
// A room state map is a mapping from a (type, state_key) pair to an event or
// event ID. Most entries use a handful of well known types, and most of those
// have an empty state key, so StateMap stores them in dedicated buckets
// instead of keying everything by a pair of strings.
//
// # Buckets
//
// Every key is routed to exactly one of five buckets:
//
//	(well known type, "")         -> well-known bucket
//	("m.room.member", user)       -> membership bucket
//	("m.room.aliases", server)    -> alias bucket
//	("m.room.third_party_invite") -> invite bucket
//	anything else                 -> other bucket, keyed by type then state key
//
// The first rule wins, so ("m.room.join_rules", "") is always well known while
// ("m.room.join_rules", "x") lands in the other bucket.
//
// # Usage
//
//	m := statemap.New[string]()
//	m.Insert(statemap.TypePowerLevels, "", "$pl")
//	m.Insert(statemap.TypeMembership, "@alice:example.org", "$join")
//
//	id, ok := m.Get(statemap.TypePowerLevels, "")
//
//	for key, id := range m.All() {
//	    fmt.Println(key.Type, key.StateKey, id)
//	}
//
// # Conflicts
//
// AddOrRemove inserts a value only when it does not disagree with what is
// already stored. On disagreement the stored value is removed and returned:
//
//	if prev, conflict := statemap.AddOrRemove(m, t, s, id); conflict {
//	    // slot is now empty, prev is the value that was there
//	}
//
// # Concurrency
//
// StateMap is not safe for concurrent use. Callers sharing a map between
// goroutines must guard it with their own mutex.
package statemap
