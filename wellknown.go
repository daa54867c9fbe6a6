package statemap

// Event types that get dedicated storage when paired with an empty state key.
const (
	TypeCreate            = "m.room.create"
	TypePowerLevels       = "m.room.power_levels"
	TypeJoinRules         = "m.room.join_rules"
	TypeHistoryVisibility = "m.room.history_visibility"
	TypeName              = "m.room.name"
	TypeTopic             = "m.room.topic"
	TypeAvatar            = "m.room.avatar"
	TypeGuestAccess       = "m.room.guest_access"
	TypeCanonicalAliases  = "m.room.canonical_alias"
	TypeRelatedGroups     = "m.room.related_groups"
	TypeEncryption        = "m.room.encryption"
)

// Event types with their own bucket keyed by state key.
const (
	// TypeMembership is keyed by user ID. It is not a well known type, so
	// ("m.room.member", "") is stored in the membership bucket.
	TypeMembership       = "m.room.member"
	TypeAliases          = "m.room.aliases"
	TypeThirdPartyInvite = "m.room.third_party_invite"
)

// WellKnownType enumerates the event types that are commonly used for state
// with an empty state key.
type WellKnownType uint8

const (
	Create WellKnownType = iota
	PowerLevels
	JoinRules
	HistoryVisibility
	Name
	Topic
	Avatar
	GuestAccess
	CanonicalAliases
	RelatedGroups
	Encryption

	wellKnownCount = int(iota)
)

// WellKnownTypes returns every WellKnownType in declaration order.
func WellKnownTypes() []WellKnownType {
	types := make([]WellKnownType, wellKnownCount)
	for i := range types {
		types[i] = WellKnownType(i)
	}
	return types
}

// String returns the event type, e.g. "m.room.create".
// Values outside the enumeration return "".
func (w WellKnownType) String() string {
	switch w {
	case Create:
		return TypeCreate
	case PowerLevels:
		return TypePowerLevels
	case JoinRules:
		return TypeJoinRules
	case HistoryVisibility:
		return TypeHistoryVisibility
	case Name:
		return TypeName
	case Topic:
		return TypeTopic
	case Avatar:
		return TypeAvatar
	case GuestAccess:
		return TypeGuestAccess
	case CanonicalAliases:
		return TypeCanonicalAliases
	case RelatedGroups:
		return TypeRelatedGroups
	case Encryption:
		return TypeEncryption
	}
	return ""
}

// Valid reports whether w is one of the declared variants.
func (w WellKnownType) Valid() bool {
	return int(w) < wellKnownCount
}

// ParseWellKnownType converts an event type to its WellKnownType.
// Matching is exact; no case or whitespace normalisation is done.
func ParseWellKnownType(t string) (WellKnownType, bool) {
	switch t {
	case TypeCreate:
		return Create, true
	case TypePowerLevels:
		return PowerLevels, true
	case TypeJoinRules:
		return JoinRules, true
	case TypeHistoryVisibility:
		return HistoryVisibility, true
	case TypeName:
		return Name, true
	case TypeTopic:
		return Topic, true
	case TypeAvatar:
		return Avatar, true
	case TypeGuestAccess:
		return GuestAccess, true
	case TypeCanonicalAliases:
		return CanonicalAliases, true
	case TypeRelatedGroups:
		return RelatedGroups, true
	case TypeEncryption:
		return Encryption, true
	}
	return 0, false
}
