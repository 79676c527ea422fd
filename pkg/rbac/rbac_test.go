package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	assert.True(t, HasPermission(RoleUser, PermissionProposalSubmit))
	assert.False(t, HasPermission(RoleUser, PermissionSettingsWrite))
	assert.True(t, HasPermission(RoleAdmin, PermissionSettingsWrite))
	assert.True(t, HasPermission(RoleAdmin, PermissionProposalSubmit))
	assert.False(t, HasPermission("ghost", PermissionProposalSubmit))
}

func TestCheckPermission(t *testing.T) {
	err := CheckPermission(RoleUser, PermissionOutboxReplay)
	var denied *PermissionDeniedError
	assert.ErrorAs(t, err, &denied)
	assert.Equal(t, PermissionOutboxReplay, denied.Permission)
	assert.NoError(t, CheckPermission(RoleAdmin, PermissionOutboxReplay))
}
