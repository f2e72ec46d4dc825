package models

// UserRole controls access to admin operations.
type UserRole string

const (
	UserRoleUser      UserRole = "user"
	UserRoleModerator UserRole = "moderator"
	UserRoleAdmin     UserRole = "admin"
)

// User is the acting identity supplied by the caller. The store does not
// authenticate it.
type User struct {
	ID          string   `json:"id" yaml:"id"`
	DisplayName string   `json:"displayName" yaml:"display_name"`
	Email       string   `json:"email,omitempty" yaml:"email,omitempty"`
	Role        UserRole `json:"role,omitempty" yaml:"role,omitempty"`
}

// IsAdmin reports whether the user may use admin operations.
func (u *User) IsAdmin() bool {
	return u != nil && (u.Role == UserRoleAdmin || u.Role == UserRoleModerator)
}
