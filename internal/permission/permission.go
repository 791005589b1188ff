package permission

import "shopfloor-service/internal/models"

// Permission is a closed capability enum. The role mapping below is static
// and total; there is no dynamic configuration.
type Permission string

const (
	CreateTicket    Permission = "create_ticket"
	ViewTicket      Permission = "view_ticket"
	ModifyOwnTicket Permission = "modify_own_ticket"
	AddNotes        Permission = "add_notes"
	UploadPhotos    Permission = "upload_photos"
	CloseAnyTicket  Permission = "close_any_ticket"
	DeletePhotos    Permission = "delete_photos"
	ManageEmployees Permission = "manage_employees"
	ManageSettings  Permission = "manage_settings"
	ManageLocations Permission = "manage_locations"
)

// staffPermissions is a strict subset of adminPermissions; staff holds
// nothing unique to itself.
var staffPermissions = []Permission{
	CreateTicket,
	ViewTicket,
	ModifyOwnTicket,
	AddNotes,
	UploadPhotos,
}

var adminPermissions = []Permission{
	CreateTicket,
	ViewTicket,
	ModifyOwnTicket,
	AddNotes,
	UploadPhotos,
	CloseAnyTicket,
	DeletePhotos,
	ManageEmployees,
	ManageSettings,
	ManageLocations,
}

// PermissionsFor returns the capability set held by a role. Unknown roles
// hold nothing.
func PermissionsFor(role models.Role) []Permission {
	switch role {
	case models.RoleStaff:
		return staffPermissions
	case models.RoleAdmin:
		return adminPermissions
	default:
		return nil
	}
}

// Has reports whether the role holds the permission.
func Has(role models.Role, perm Permission) bool {
	for _, p := range PermissionsFor(role) {
		if p == perm {
			return true
		}
	}
	return false
}
