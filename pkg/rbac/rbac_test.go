package rbac_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahasand/site-tracker/pkg/rbac"
)

func TestHasPermission(t *testing.T) {
	assert.True(t, rbac.HasPermission(rbac.RoleViewer, rbac.PermissionReadStudies))
	assert.False(t, rbac.HasPermission(rbac.RoleViewer, rbac.PermissionMoveSites))
	assert.True(t, rbac.HasPermission(rbac.RoleCoordinator, rbac.PermissionMoveSites))
	assert.False(t, rbac.HasPermission(rbac.RoleCoordinator, rbac.PermissionManageStudies))
	assert.True(t, rbac.HasPermission(rbac.RoleAdmin, rbac.PermissionManageStudies))
	assert.False(t, rbac.HasPermission("guest", rbac.PermissionReadStudies))
}

func TestCheckPermission(t *testing.T) {
	require.NoError(t, rbac.CheckPermission("u1", rbac.RoleAdmin, rbac.PermissionImportSites))

	err := rbac.CheckPermission("u2", rbac.RoleViewer, rbac.PermissionImportSites)
	var denied *rbac.PermissionDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "u2", denied.UserID)
	assert.Equal(t, rbac.PermissionImportSites, denied.Permission)
}

func TestIsValidRole(t *testing.T) {
	assert.True(t, rbac.IsValidRole(rbac.RoleCoordinator))
	assert.False(t, rbac.IsValidRole("owner"))
}
