package rbac

const (
	PermissionReadStudies      = "study:read"
	PermissionManageStudies    = "study:manage"
	PermissionManageSites      = "site:manage"
	PermissionUpdateMilestones = "milestone:update"
	PermissionMoveSites        = "site:move"
	PermissionImportSites      = "site:import"
	PermissionReadPortfolio    = "portfolio:read"
	PermissionReplayEvents     = "events:replay"
)

const (
	RoleViewer      = "viewer"
	RoleCoordinator = "coordinator"
	RoleAdmin       = "admin"
)

var rolePermissions = map[string][]string{
	RoleViewer: {
		PermissionReadStudies,
		PermissionReadPortfolio,
	},
	RoleCoordinator: {
		PermissionReadStudies,
		PermissionReadPortfolio,
		PermissionManageSites,
		PermissionUpdateMilestones,
		PermissionMoveSites,
		PermissionImportSites,
	},
	RoleAdmin: {
		PermissionReadStudies,
		PermissionReadPortfolio,
		PermissionManageStudies,
		PermissionManageSites,
		PermissionUpdateMilestones,
		PermissionMoveSites,
		PermissionImportSites,
		PermissionReplayEvents,
	},
}

// IsValidRole reports whether role is one of the known roles.
func IsValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission is HasPermission returning a *PermissionDeniedError.
func CheckPermission(userID, role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

type PermissionDeniedError struct {
	UserID     string
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
