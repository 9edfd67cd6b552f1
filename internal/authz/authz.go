// Package authz holds every capability check in one place. Each function
// answers a single question about an identity and the resources it touches;
// callers translate a false into a Forbidden error.
package authz

import (
	"github.com/noah-isme/classhub-api/internal/models"
)

// HasRole reports whether the identity holds one of the allowed roles.
func HasRole(id models.Identity, allowed ...models.Role) bool {
	if !id.Role.Valid() {
		return false
	}
	for _, role := range allowed {
		if id.Role == role {
			return true
		}
	}
	return false
}

// CanRequestEnrollment is limited to students.
func CanRequestEnrollment(id models.Identity) bool {
	return id.Is(models.RoleStudent)
}

// CanDecideEnrollment allows the section's CR, its assigned teacher, or an admin.
func CanDecideEnrollment(id models.Identity, section models.ClassSection) bool {
	switch id.Role {
	case models.RoleAdmin:
		return true
	case models.RoleTeacher:
		return section.IsTeacher(id.ID)
	case models.RoleStudent:
		return section.IsCR(id.ID)
	default:
		return false
	}
}

// CanListSectionEnrollments shares the decision rule: whoever decides may see the queue.
func CanListSectionEnrollments(id models.Identity, section models.ClassSection) bool {
	return CanDecideEnrollment(id, section)
}

// CanMarkAttendance is limited to the assigned teacher. Admins are not exempt.
func CanMarkAttendance(id models.Identity, section models.ClassSection) bool {
	return id.Is(models.RoleTeacher) && section.IsTeacher(id.ID)
}

// CanViewAttendanceSheet allows the assigned teacher, the CR and admins.
func CanViewAttendanceSheet(id models.Identity, section models.ClassSection) bool {
	if id.Is(models.RoleAdmin) {
		return true
	}
	return section.IsTeacher(id.ID) || section.IsCR(id.ID)
}

// CanViewStats lets students read their own figures, teachers read the
// students they teach and admins read anyone's.
func CanViewStats(id models.Identity, studentID string, teachesStudent bool) bool {
	switch id.Role {
	case models.RoleAdmin:
		return true
	case models.RoleTeacher:
		return teachesStudent
	case models.RoleStudent:
		return id.ID == studentID
	default:
		return false
	}
}

// CanManageCR is admin only.
func CanManageCR(id models.Identity) bool {
	return id.Is(models.RoleAdmin)
}

// CanManageSections is admin only.
func CanManageSections(id models.Identity) bool {
	return id.Is(models.RoleAdmin)
}

// CanPostGlobalNotice is admin only.
func CanPostGlobalNotice(id models.Identity) bool {
	return id.Is(models.RoleAdmin)
}

// CanPostSectionNotice allows the section's teacher or CR.
func CanPostSectionNotice(id models.Identity, section models.ClassSection) bool {
	switch id.Role {
	case models.RoleTeacher:
		return section.IsTeacher(id.ID)
	case models.RoleStudent:
		return section.IsCR(id.ID)
	default:
		return false
	}
}

// SeesAllNotices short-circuits visibility filtering.
func SeesAllNotices(id models.Identity) bool {
	return id.Is(models.RoleAdmin)
}

// CanViewNotice evaluates visibility for one notice. section is only consulted
// for class-scoped notices; approved tells whether the identity holds an
// approved enrollment in that section.
func CanViewNotice(id models.Identity, notice models.Notice, section *models.ClassSection, approved bool) bool {
	scope := notice.Scope()
	if scope.IsGlobal() || SeesAllNotices(id) {
		return true
	}
	if approved {
		return true
	}
	if section == nil || section.ID != scope.ClassSectionID {
		return false
	}
	return section.IsTeacher(id.ID) || section.IsCR(id.ID)
}
