package models

import (
	"strings"
	"time"
)

// EnrollmentStatus is the lifecycle state of an enrollment request.
type EnrollmentStatus string

const (
	EnrollmentStatusPending  EnrollmentStatus = "PENDING"
	EnrollmentStatusApproved EnrollmentStatus = "APPROVED"
	EnrollmentStatusRejected EnrollmentStatus = "REJECTED"
)

// Valid returns true when the status is a supported value.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusPending, EnrollmentStatusApproved, EnrollmentStatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed.
func (s EnrollmentStatus) Terminal() bool {
	return s == EnrollmentStatusApproved || s == EnrollmentStatusRejected
}

// EnrollmentDecision is the verdict applied to a pending request.
type EnrollmentDecision string

const (
	DecisionApprove EnrollmentDecision = "APPROVE"
	DecisionReject  EnrollmentDecision = "REJECT"
)

// ParseDecision normalises raw, returning false for unknown input.
func ParseDecision(raw string) (EnrollmentDecision, bool) {
	d := EnrollmentDecision(strings.ToUpper(strings.TrimSpace(raw)))
	return d, d == DecisionApprove || d == DecisionReject
}

// Status maps the decision onto the resulting request status.
func (d EnrollmentDecision) Status() EnrollmentStatus {
	if d == DecisionApprove {
		return EnrollmentStatusApproved
	}
	return EnrollmentStatusRejected
}

// EnrollmentRequest is a student's request to join a class section.
type EnrollmentRequest struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	ClassSectionID string           `db:"class_section_id" json:"class_section_id"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	RequestedAt    time.Time        `db:"requested_at" json:"requested_at"`
	DecidedAt      *time.Time       `db:"decided_at" json:"decided_at,omitempty"`
	DecidedBy      *string          `db:"decided_by" json:"decided_by,omitempty"`
}

// EnrollmentFilter provides filters for listing enrollment requests.
type EnrollmentFilter struct {
	StudentID      string
	ClassSectionID string
	Status         EnrollmentStatus
	Page           int
	PageSize       int
}
