// Package access resolves a user's role set into the capability set that
// gates the protected areas of the platform.
//
// Roles arrive from the wire as free-form strings, but resolution is done
// over a closed set of role classes evaluated in priority order
// (admin > teacher > student > guest). The highest matching class wins when
// a user carries multiple roles; unrecognized roles fall through to guest.
package access

import (
	"strings"

	"github.com/classpad/sessioncore/util"
)

// Role is a role class carried by a user. Unknown wire values are preserved
// as-is so they can be logged and audited, but they never grant capabilities.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleGuest   Role = "guest"
)

// ParseRole normalizes a wire role string into a Role. Values outside the
// closed set are kept verbatim.
func ParseRole(s string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleTeacher, RoleStudent, RoleGuest:
		return r
	default:
		return Role(strings.TrimSpace(s))
	}
}

// Known reports whether the role is part of the closed role set.
func (r Role) Known() bool {
	return util.Contains([]Role{RoleAdmin, RoleTeacher, RoleStudent, RoleGuest}, r)
}

func (r Role) String() string {
	return string(r)
}

// Capability names a single grant in a CapabilitySet.
type Capability string

const (
	CapManageSystem     Capability = "canManageSystem"
	CapManageUsers      Capability = "canManageUsers"
	CapManageRoles      Capability = "canManageRoles"
	CapViewAllStudents  Capability = "canViewAllStudents"
	CapViewAnalytics    Capability = "canViewAnalytics"
	CapExportReports    Capability = "canExportReports"
	CapManageCourses    Capability = "canManageCourses"
	CapGradeSubmissions Capability = "canGradeSubmissions"
	CapViewOwnProgress  Capability = "canViewOwnProgress"
)

// AllCapabilities lists every known capability.
var AllCapabilities = []Capability{
	CapManageSystem,
	CapManageUsers,
	CapManageRoles,
	CapViewAllStudents,
	CapViewAnalytics,
	CapExportReports,
	CapManageCourses,
	CapGradeSubmissions,
	CapViewOwnProgress,
}

// CapabilitySet maps capabilities to grants. It is derived state, never
// persisted; resolve it from the user's roles on every read.
type CapabilitySet map[Capability]bool

// Has reports whether the capability is granted.
func (s CapabilitySet) Has(c Capability) bool {
	return s[c]
}

// HasAll reports whether every given capability is granted.
func (s CapabilitySet) HasAll(caps ...Capability) bool {
	for _, c := range caps {
		if !s[c] {
			return false
		}
	}

	return true
}

// HasAny reports whether at least one of the given capabilities is granted.
func (s CapabilitySet) HasAny(caps ...Capability) bool {
	for _, c := range caps {
		if s[c] {
			return true
		}
	}

	return false
}

func (s CapabilitySet) clone() CapabilitySet {
	out := make(CapabilitySet, len(s))
	for c, ok := range s {
		out[c] = ok
	}

	return out
}

var (
	adminCapabilities = CapabilitySet{
		CapManageSystem:     true,
		CapManageUsers:      true,
		CapManageRoles:      true,
		CapViewAllStudents:  true,
		CapViewAnalytics:    true,
		CapExportReports:    true,
		CapManageCourses:    true,
		CapGradeSubmissions: true,
		CapViewOwnProgress:  true,
	}

	teacherCapabilities = CapabilitySet{
		CapViewAllStudents:  true,
		CapViewAnalytics:    true,
		CapExportReports:    true,
		CapManageCourses:    true,
		CapGradeSubmissions: true,
		CapViewOwnProgress:  true,
	}

	studentCapabilities = CapabilitySet{
		CapViewOwnProgress: true,
	}

	guestCapabilities = CapabilitySet{}
)

// Resolve maps a role set to its capability set. Priority order, first match
// wins: admin, then teacher, then student; empty or unrecognized role sets
// resolve to guest defaults (nothing granted). Duplicate roles collapse,
// order is irrelevant.
func Resolve(roles []Role) CapabilitySet {
	switch {
	case util.Contains(roles, RoleAdmin):
		return adminCapabilities.clone()
	case util.Contains(roles, RoleTeacher):
		return teacherCapabilities.clone()
	case util.Contains(roles, RoleStudent):
		return studentCapabilities.clone()
	default:
		return guestCapabilities.clone()
	}
}

// Classify reduces a capability set back to the role class it behaves as.
func Classify(s CapabilitySet) Role {
	switch {
	case IsAdmin(s):
		return RoleAdmin
	case IsTeacher(s):
		return RoleTeacher
	case IsStudent(s):
		return RoleStudent
	default:
		return RoleGuest
	}
}

// IsAdmin reports whether the capability set behaves as an admin.
//
// The admin/teacher/student predicates are defined over capability
// membership, not over the role strings the capabilities were resolved from;
// the capability table is the single source of truth. Note the teacher
// predicate requires the absence of CapManageUsers: a role granting both
// CapViewAllStudents and CapManageUsers without CapManageSystem classifies
// as neither teacher nor admin.
func IsAdmin(s CapabilitySet) bool {
	return s.Has(CapManageSystem)
}

// IsTeacher reports whether the capability set behaves as a teacher.
func IsTeacher(s CapabilitySet) bool {
	return s.Has(CapViewAllStudents) && !s.Has(CapManageUsers)
}

// IsStudent reports whether the capability set behaves as a student.
func IsStudent(s CapabilitySet) bool {
	return s.Has(CapViewOwnProgress) && !s.Has(CapViewAllStudents)
}
