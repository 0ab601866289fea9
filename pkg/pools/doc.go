// Package pools manages resource pools, resource classes, quotas and the
// pool-access records of users.
//
// Two system invariants are enforced here: at most one resource pool is the
// default, and each pool has at most one default class. Both are checked
// inside the mutating transaction and additionally backed by partial unique
// indexes, so concurrent inserts cannot slip past the application check.
//
// A user flagged no_default_access can never be associated with the default
// pool; the guard runs in both grant directions (pools to a user, users to
// a pool) and the listing filter excludes the default pool for such users.
package pools
