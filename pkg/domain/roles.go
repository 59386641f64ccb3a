package domain

// Role is the capacity in which an actor acts on a credential.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleReviewer Role = "reviewer"
	RoleSystem   Role = "system"
	RoleAdmin    Role = "admin"
)

// Roles lists every role in a stable order.
var Roles = []Role{RoleOwner, RoleReviewer, RoleSystem, RoleAdmin}

func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleReviewer, RoleSystem, RoleAdmin:
		return true
	}
	return false
}

// CanReview reports whether the role may see other owners' credentials.
func (r Role) CanReview() bool {
	return r == RoleReviewer || r == RoleAdmin
}

func (r Role) String() string { return string(r) }
