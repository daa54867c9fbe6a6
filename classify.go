package statemap

// Bucket identifies which internal storage partition a key is routed to.
type Bucket uint8

const (
	BucketWellKnown Bucket = iota
	BucketMembership
	BucketAliases
	BucketInvites
	BucketOthers
)

func (b Bucket) String() string {
	switch b {
	case BucketWellKnown:
		return "well_known"
	case BucketMembership:
		return "membership"
	case BucketAliases:
		return "aliases"
	case BucketInvites:
		return "invites"
	case BucketOthers:
		return "others"
	}
	return "unknown"
}

// Key is the logical (type, state_key) pair of a state entry.
type Key struct {
	Type     string
	StateKey string
}

func (k Key) String() string {
	return k.Type + "|" + k.StateKey
}

// Classify returns the bucket a (type, state key) pair is stored in.
//
// Rules are applied in order and the first match wins:
//  1. empty state key and a well known type
//  2. m.room.member
//  3. m.room.aliases
//  4. m.room.third_party_invite
//  5. everything else
func Classify(t, s string) Bucket {
	return classify(t, s).bucket
}

// slot is a classified key: the bucket plus the key within that bucket.
// For BucketOthers both typ and key are used; for BucketWellKnown only
// wellKnown is.
type slot struct {
	bucket    Bucket
	wellKnown WellKnownType
	typ       string
	key       string
}

func classify(t, s string) slot {
	if s == "" {
		if w, ok := ParseWellKnownType(t); ok {
			return slot{bucket: BucketWellKnown, wellKnown: w}
		}
	}

	switch t {
	case TypeMembership:
		return slot{bucket: BucketMembership, key: s}
	case TypeAliases:
		return slot{bucket: BucketAliases, key: s}
	case TypeThirdPartyInvite:
		return slot{bucket: BucketInvites, key: s}
	}
	return slot{bucket: BucketOthers, typ: t, key: s}
}

func wellKnownSlot(w WellKnownType) slot {
	return slot{bucket: BucketWellKnown, wellKnown: w}
}

// Key converts the slot back to its logical key.
func (s slot) Key() Key {
	switch s.bucket {
	case BucketWellKnown:
		return Key{Type: s.wellKnown.String()}
	case BucketMembership:
		return Key{Type: TypeMembership, StateKey: s.key}
	case BucketAliases:
		return Key{Type: TypeAliases, StateKey: s.key}
	case BucketInvites:
		return Key{Type: TypeThirdPartyInvite, StateKey: s.key}
	}
	return Key{Type: s.typ, StateKey: s.key}
}
