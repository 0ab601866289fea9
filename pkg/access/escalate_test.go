package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basinhq/basin/pkg/apperrors"
	"github.com/basinhq/basin/pkg/auth"
	"github.com/basinhq/basin/pkg/authz"
)

func strptr(s string) *string { return &s }

func TestRequiredScope(t *testing.T) {
	current := EntityView{Visibility: "private", Namespace: "team-a", Slug: "analysis"}

	tests := []struct {
		name  string
		patch PatchView
		want  auth.Scope
	}{
		{"empty patch", PatchView{}, auth.ScopeWrite},
		{"description-only equivalent", PatchView{Visibility: strptr("private")}, auth.ScopeWrite},
		{"visibility change", PatchView{Visibility: strptr("public")}, auth.ScopeDelete},
		{"namespace change", PatchView{Namespace: strptr("team-b")}, auth.ScopeDelete},
		{"slug change", PatchView{Slug: strptr("analysis-v2")}, auth.ScopeDelete},
		{"same slug supplied", PatchView{Slug: strptr("analysis")}, auth.ScopeWrite},
		{
			"all identity fields change",
			PatchView{Visibility: strptr("public"), Namespace: strptr("team-b"), Slug: strptr("new")},
			auth.ScopeDelete,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RequiredScope(current, tt.patch))
		})
	}
}

func TestRequirePermission_MasksDenialAsNotFound(t *testing.T) {
	az := authz.NewStatic()
	caller := auth.NewCaller("user-1")

	err := RequirePermission(context.Background(), az, caller, "project", authz.ResourceTypeProject, "proj-1", auth.ScopeWrite)
	require.Error(t, err)
	assert.True(t, apperrors.IsMissingResource(err))
	assert.NotContains(t, err.Error(), "forbidden")
}

func TestRequirePermission_Granted(t *testing.T) {
	az := authz.NewStatic()
	az.Grant("user-1", authz.ResourceTypeProject, "proj-1", auth.ScopeWrite)

	err := RequirePermission(context.Background(), az, auth.NewCaller("user-1"), "project", authz.ResourceTypeProject, "proj-1", auth.ScopeWrite)
	assert.NoError(t, err)
}

func TestRequirePermission_AdminBypass(t *testing.T) {
	az := authz.NewStatic()

	err := RequirePermission(context.Background(), az, auth.NewAdmin("root"), "project", authz.ResourceTypeProject, "proj-1", auth.ScopeDelete)
	assert.NoError(t, err)
}
