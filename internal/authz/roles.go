package authz

import "strings"

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleTeacher Role = "TEACHER"
	RoleParent  Role = "PARENT"
	RoleStudent Role = "STUDENT"
)

var roleRank = map[Role]int{
	RoleAdmin:   4,
	RoleTeacher: 3,
	RoleParent:  2,
	RoleStudent: 1,
}

// Roles lists every defined role from the highest rank down.
func Roles() []Role {
	return []Role{RoleAdmin, RoleTeacher, RoleParent, RoleStudent}
}

// Rank returns the position of a role in the hierarchy; unknown roles rank 0.
func Rank(r Role) int {
	return roleRank[r]
}

// HasPermission reports whether actual dominates required.
func HasPermission(actual, required Role) bool {
	return Rank(actual) >= Rank(required)
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}
