package auth

// Scope represents a permission level checked against a caller/resource
// pair. READ, WRITE, DELETE and CHANGE_MEMBERSHIP form an ascending order;
// NON_PUBLIC_READ sits outside it and is checked on its own.
type Scope string

const (
	ScopeRead             Scope = "read"
	ScopeWrite            Scope = "write"
	ScopeDelete           Scope = "delete"
	ScopeChangeMembership Scope = "change_membership"
	ScopeNonPublicRead    Scope = "non_public_read"
)

// scopeRank orders the escalating scopes. NON_PUBLIC_READ is deliberately
// absent: it never participates in escalation.
var scopeRank = map[Scope]int{
	ScopeRead:             0,
	ScopeWrite:            1,
	ScopeDelete:           2,
	ScopeChangeMembership: 3,
}

// Ordered reports whether the scope participates in the escalation order.
func (s Scope) Ordered() bool {
	_, ok := scopeRank[s]
	return ok
}

// AtLeast reports whether s grants at least the level of other. Comparing
// an unordered scope is only true on exact match.
func (s Scope) AtLeast(other Scope) bool {
	if s == other {
		return true
	}
	a, okA := scopeRank[s]
	b, okB := scopeRank[other]
	return okA && okB && a >= b
}

// MaxScope returns the higher of two ordered scopes. Unordered scopes are
// returned unchanged only when both arguments are equal; otherwise the
// ordered argument wins.
func MaxScope(a, b Scope) Scope {
	if a.AtLeast(b) {
		return a
	}
	return b
}
