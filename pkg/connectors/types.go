// Package connectors implements data connectors: slug-addressed pointers to
// external storage, attached under a parent path and protected by the
// authorization oracle with etag-gated mutations.
package connectors

import (
	"strings"
	"time"

	"github.com/basinhq/basin/pkg/access"
)

// Visibility controls who can discover a connector without a grant.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Storage describes the external storage a connector points at.
type Storage struct {
	Type     string `json:"type"`
	Readonly bool   `json:"readonly"`
}

// DataConnector points project users at a shared storage location.
// Namespace is the full parent path; unlike projects, moving a connector
// anywhere under a different parent changes its owners.
type DataConnector struct {
	ID          string     `json:"id"`
	Namespace   string     `json:"namespace"`
	Slug        string     `json:"slug"`
	Visibility  Visibility `json:"visibility"`
	Description string     `json:"description,omitempty"`
	Keywords    []string   `json:"keywords,omitempty"`
	Storage     Storage    `json:"storage"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Etag        string     `json:"etag"`
}

// ConnectorPatch is a partial update. Nil fields are left unchanged.
type ConnectorPatch struct {
	Namespace   *string     `json:"namespace,omitempty"`
	Slug        *string     `json:"slug,omitempty"`
	Visibility  *Visibility `json:"visibility,omitempty"`
	Description *string     `json:"description,omitempty"`
	Keywords    []string    `json:"keywords,omitempty"`
	StorageType *string     `json:"storage_type,omitempty"`
	Readonly    *bool       `json:"readonly,omitempty"`
}

// Keywords reuse the field separator so element boundaries survive the join.
func computeEtag(c *DataConnector) string {
	return access.ComputeEtag(c.Namespace, c.Slug, string(c.Visibility), c.Description,
		strings.Join(c.Keywords, "\x1f"), c.Storage.Type, c.Storage.Readonly)
}

// escalationView maps the connector onto the scope escalator's inputs. The
// full namespace path is compared, so any re-parenting escalates.
func escalationView(c *DataConnector) access.EntityView {
	return access.EntityView{
		Visibility: string(c.Visibility),
		Namespace:  c.Namespace,
		Slug:       c.Slug,
	}
}

func patchView(patch ConnectorPatch) access.PatchView {
	view := access.PatchView{Namespace: patch.Namespace, Slug: patch.Slug}
	if patch.Visibility != nil {
		visibility := string(*patch.Visibility)
		view.Visibility = &visibility
	}
	return view
}
