package domain

// SubjectType differentiates members vs staff tokens.
type SubjectType string

const (
	SubjectTypeMember SubjectType = "MEMBER"
	SubjectTypeStaff  SubjectType = "STAFF"
)

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleModerator StaffRole = "MODERATOR"
	StaffRoleAdmin     StaffRole = "ADMIN"
	// StaffRoleSystem is held by the chat-platform adapter that reports message activity.
	StaffRoleSystem StaffRole = "SYSTEM"
)

// Actor identifies who performs a ticket action.
type Actor struct {
	ID    int64
	Staff bool
}

// MemberActor builds a non-staff actor.
func MemberActor(id int64) Actor {
	return Actor{ID: id}
}

// StaffActor builds an actor holding the staff capability.
func StaffActor(id int64) Actor {
	return Actor{ID: id, Staff: true}
}
