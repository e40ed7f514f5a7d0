// Package domain defines shared domain constants and types.
package domain

// Tier is the access level a command requires.
type Tier int

const (
	// TierPublic commands are open to every caller.
	TierPublic Tier = iota
	// TierAuthorized commands require membership in the authorized set.
	TierAuthorized
	// TierAdmin commands require membership in the admin set.
	TierAdmin
)

// String returns the lowercase tier name used in logs and metrics.
func (t Tier) String() string {
	switch t {
	case TierPublic:
		return "public"
	case TierAuthorized:
		return "authorized"
	case TierAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// TierFor returns the highest tier a caller with the given memberships holds.
func TierFor(authorized, admin bool) Tier {
	switch {
	case admin:
		return TierAdmin
	case authorized:
		return TierAuthorized
	default:
		return TierPublic
	}
}

// Allows reports whether a caller holding t may invoke a command requiring required.
func (t Tier) Allows(required Tier) bool {
	return t >= required
}
