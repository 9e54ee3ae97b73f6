package models

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleDirector Role = "director"
	RolePMO      Role = "pmo"
	RoleLeader   Role = "leader"
	RoleStaff    Role = "staff"
)

// Roles lists every known role.
var Roles = []Role{RoleAdmin, RoleDirector, RolePMO, RoleLeader, RoleStaff}

func (r Role) Valid() bool {
	for _, known := range Roles {
		if known == r {
			return true
		}
	}
	return false
}

// IsManager reports whether the role carries blanket authority over tasks.
func (r Role) IsManager() bool {
	switch r {
	case RoleAdmin, RoleDirector, RolePMO, RoleLeader:
		return true
	}
	return false
}

// Actor describes the user performing an operation. MemberID is the member
// record used for assignment and is distinct from the account ID.
type Actor struct {
	ID       string `json:"id"`
	Role     Role   `json:"role"`
	MemberID string `json:"memberId"`
}

func (a Actor) IsCreatorOf(t *Task) bool {
	return a.ID != "" && a.ID == t.CreatorID
}

func (a Actor) IsAssigneeOf(t *Task) bool {
	return t.HasAssignee(a.MemberID)
}

func (a Actor) IsManager() bool {
	return a.Role.IsManager()
}
