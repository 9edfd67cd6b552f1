package models

import "time"

// ClassSection is one offering of a course for a department, session and section letter.
type ClassSection struct {
	ID             string    `db:"id" json:"id"`
	CourseID       string    `db:"course_id" json:"course_id"`
	DepartmentCode string    `db:"department_code" json:"department_code"`
	Session        string    `db:"session" json:"session"`
	SectionLabel   string    `db:"section_label" json:"section_label"`
	TeacherID      *string   `db:"teacher_id" json:"assigned_teacher_id,omitempty"`
	CRStudentID    *string   `db:"cr_student_id" json:"cr_student_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// IsTeacher reports whether userID is the assigned teacher.
func (s ClassSection) IsTeacher(userID string) bool {
	return s.TeacherID != nil && userID != "" && *s.TeacherID == userID
}

// IsCR reports whether userID is the class representative.
func (s ClassSection) IsCR(userID string) bool {
	return s.CRStudentID != nil && userID != "" && *s.CRStudentID == userID
}

// ClassSectionFilter defines filter criteria for listing sections.
type ClassSectionFilter struct {
	DepartmentCode string
	Session        string
	TeacherID      string
	Page           int
	PageSize       int
}
