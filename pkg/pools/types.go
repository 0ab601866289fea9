package pools

// Quota is the resource ceiling associated 1:1 with a resource pool.
// Memory and storage values are in gigabytes.
type Quota struct {
	CPU     float64 `json:"cpu"`
	Memory  int64   `json:"memory"`
	GPU     int64   `json:"gpu"`
	Storage *int64  `json:"storage,omitempty"`
}

// NodeAffinity is one scheduling affinity carried by a resource class,
// keyed by node label key.
type NodeAffinity struct {
	Key                      string `json:"key"`
	RequiredDuringScheduling bool   `json:"required_during_scheduling"`
}

// ResourceClass is one concrete resource shape belonging to exactly one
// resource pool. At most one class per pool has Default set.
type ResourceClass struct {
	ID             int64          `json:"id"`
	PoolID         int64          `json:"pool_id"`
	Name           string         `json:"name"`
	CPU            float64        `json:"cpu"`
	Memory         int64          `json:"memory"`
	GPU            int64          `json:"gpu"`
	MaxStorage     int64          `json:"max_storage"`
	DefaultStorage int64          `json:"default_storage"`
	Default        bool           `json:"default"`
	NodeAffinities []NodeAffinity `json:"node_affinities,omitempty"`
	Tolerations    []string       `json:"tolerations,omitempty"`
}

// ResourcePool is a named bundle of resource classes. At most one pool
// system-wide has Default set; the default pool cannot be deleted.
type ResourcePool struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Default bool            `json:"default"`
	Public  bool            `json:"public"`
	Quota   *Quota          `json:"quota,omitempty"`
	Classes []ResourceClass `json:"classes"`
}

// PoolUser links a caller identity to resource pools. A user with
// NoDefaultAccess set must never be associated with the default pool.
type PoolUser struct {
	KeycloakID      string `json:"keycloak_id"`
	NoDefaultAccess bool   `json:"no_default_access"`
}

// QuotaPatch updates individual quota fields; nil fields are left unchanged.
type QuotaPatch struct {
	CPU     *float64 `json:"cpu,omitempty"`
	Memory  *int64   `json:"memory,omitempty"`
	GPU     *int64   `json:"gpu,omitempty"`
	Storage *int64   `json:"storage,omitempty"`
}

// PoolPatch updates a resource pool. The default flag is deliberately not
// patchable: the default pool is chosen at creation time.
type PoolPatch struct {
	Name   *string     `json:"name,omitempty"`
	Public *bool       `json:"public,omitempty"`
	Quota  *QuotaPatch `json:"quota,omitempty"`
}

// ClassPatch updates a resource class. NodeAffinities merge by key: an
// incoming affinity whose key matches an existing one updates its
// required_during_scheduling flag, otherwise it is appended.
type ClassPatch struct {
	Name           *string        `json:"name,omitempty"`
	CPU            *float64       `json:"cpu,omitempty"`
	Memory         *int64         `json:"memory,omitempty"`
	GPU            *int64         `json:"gpu,omitempty"`
	MaxStorage     *int64         `json:"max_storage,omitempty"`
	DefaultStorage *int64         `json:"default_storage,omitempty"`
	NodeAffinities []NodeAffinity `json:"node_affinities,omitempty"`
	Tolerations    []string       `json:"tolerations,omitempty"`
}

// Requirements is a numeric resource request evaluated against classes.
type Requirements struct {
	CPU        float64 `json:"cpu"`
	Memory     int64   `json:"memory"`
	GPU        int64   `json:"gpu"`
	MaxStorage int64   `json:"max_storage"`
}

// ClassMatch pairs a class with whether it satisfies a requirement tuple.
type ClassMatch struct {
	Class    ResourceClass `json:"class"`
	Matching bool          `json:"matching"`
}

// PoolMatches groups match results under their owning pool.
type PoolMatches struct {
	Pool    ResourcePool `json:"pool"`
	Classes []ClassMatch `json:"classes"`
}

// mergeNodeAffinities applies the merge-by-key update rule.
func mergeNodeAffinities(existing, incoming []NodeAffinity) []NodeAffinity {
	merged := make([]NodeAffinity, len(existing))
	copy(merged, existing)
	for _, in := range incoming {
		found := false
		for i := range merged {
			if merged[i].Key == in.Key {
				merged[i].RequiredDuringScheduling = in.RequiredDuringScheduling
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, in)
		}
	}
	return merged
}
