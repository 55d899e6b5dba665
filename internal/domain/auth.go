package domain

import "time"

// Role is the resolved authorization tier carried by a session token.
type Role string

const (
	RoleUser         Role = "USER"
	RoleAdmin        Role = "ADMIN"
	RoleProfessional Role = "PROFESSIONAL"
	RoleDeleted      Role = "DELETED"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleProfessional, RoleDeleted:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// Claims is the decoded payload of a bearer token.
type Claims struct {
	ExpiresAt time.Time
	Scope     string
	UserID    string
	Subject   string
}
