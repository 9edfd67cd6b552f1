package models

import "time"

// AttendanceStatus represents the status of one session mark.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate:
		return true
	default:
		return false
	}
}

// AttendanceRecord is the mark of one student for one section session date.
type AttendanceRecord struct {
	ID             string           `db:"id" json:"id"`
	ClassSectionID string           `db:"class_section_id" json:"class_section_id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	Date           time.Time        `db:"date" json:"date"`
	Status         AttendanceStatus `db:"status" json:"status"`
	MarkedBy       string           `db:"marked_by" json:"marked_by"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceCounts holds raw per-status tallies.
type AttendanceCounts struct {
	Present int `db:"present" json:"present"`
	Absent  int `db:"absent" json:"absent"`
	Late    int `db:"late" json:"late"`
}

// Total returns the number of marked sessions.
func (c AttendanceCounts) Total() int {
	return c.Present + c.Absent + c.Late
}

// AttendanceStats summarises a student's attendance.
type AttendanceStats struct {
	StudentID      string  `json:"student_id"`
	ClassSectionID *string `json:"class_section_id,omitempty"`
	Present        int     `json:"present"`
	Absent         int     `json:"absent"`
	Late           int     `json:"late"`
	Total          int     `json:"total"`
	Percentage     int     `json:"percentage"`
}

// AttendanceSheetRow is one line of a section's attendance sheet for a date.
type AttendanceSheetRow struct {
	StudentID   string           `db:"student_id" json:"student_id"`
	StudentName string           `db:"student_name" json:"student_name"`
	Status      AttendanceStatus `db:"status" json:"status"`
	MarkedBy    string           `db:"marked_by" json:"marked_by"`
}

// AttendanceSummaryFilter bounds a section summary. Nil dates are open ends.
type AttendanceSummaryFilter struct {
	ClassSectionID string
	From           *time.Time
	To             *time.Time
}

// AttendanceSummaryRow aggregates one student's marks within a section.
type AttendanceSummaryRow struct {
	StudentID   string `db:"student_id" json:"student_id"`
	StudentName string `db:"student_name" json:"student_name"`
	AttendanceCounts
	Total      int `db:"-" json:"total"`
	Percentage int `db:"-" json:"percentage"`
}

// AttendanceSummary is the section-wide roll-up over a date range.
type AttendanceSummary struct {
	ClassSectionID string                 `json:"class_section_id"`
	SessionDays    int                    `json:"session_days"`
	Totals         AttendanceCounts       `json:"totals"`
	Students       []AttendanceSummaryRow `json:"students"`
}
