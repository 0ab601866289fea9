// Package projects implements the project entity: a slug-addressed,
// namespace-owned resource protected by the authorization oracle, with
// etag-gated mutations.
package projects

import (
	"strings"
	"time"

	"github.com/basinhq/basin/pkg/access"
)

// Visibility controls who can discover a project without an explicit grant.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is a known visibility value.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Project is a slug-addressed workspace owned by a namespace. Etag is an
// opaque version token recomputed on every mutation.
type Project struct {
	ID          string     `json:"id"`
	Namespace   string     `json:"namespace"`
	Slug        string     `json:"slug"`
	Visibility  Visibility `json:"visibility"`
	Description string     `json:"description,omitempty"`
	Keywords    []string   `json:"keywords,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Etag        string     `json:"etag"`
}

// ProjectPatch is a partial update. Nil fields are left unchanged; a nil
// Keywords slice leaves keywords unchanged while an empty one clears them.
type ProjectPatch struct {
	Namespace   *string     `json:"namespace,omitempty"`
	Slug        *string     `json:"slug,omitempty"`
	Visibility  *Visibility `json:"visibility,omitempty"`
	Description *string     `json:"description,omitempty"`
	Keywords    []string    `json:"keywords,omitempty"`
}

// computeEtag derives the project's version token from its mutable fields.
// Keywords reuse the field separator so element boundaries survive the join.
func computeEtag(p *Project) string {
	return access.ComputeEtag(p.Namespace, p.Slug, string(p.Visibility), p.Description, strings.Join(p.Keywords, "\x1f"))
}

// namespaceRoot returns the first segment of a namespace path. Project
// ownership escalation compares roots, not full paths, because moving a
// project within the same root group keeps the same owners.
func namespaceRoot(namespace string) string {
	if idx := strings.Index(namespace, "/"); idx >= 0 {
		return namespace[:idx]
	}
	return namespace
}

// escalationView maps the project onto the scope escalator's inputs.
func escalationView(p *Project) access.EntityView {
	return access.EntityView{
		Visibility: string(p.Visibility),
		Namespace:  namespaceRoot(p.Namespace),
		Slug:       p.Slug,
	}
}

func patchView(patch ProjectPatch) access.PatchView {
	view := access.PatchView{Slug: patch.Slug}
	if patch.Visibility != nil {
		visibility := string(*patch.Visibility)
		view.Visibility = &visibility
	}
	if patch.Namespace != nil {
		root := namespaceRoot(*patch.Namespace)
		view.Namespace = &root
	}
	return view
}
