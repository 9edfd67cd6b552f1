package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/classhub-api/internal/models"
)

const attendanceColumns = `id, class_section_id, student_id, date, status, marked_by, created_at, updated_at`

// AttendanceMark is one student's status inside a marking batch.
type AttendanceMark struct {
	StudentID string
	Status    models.AttendanceStatus
}

// AttendanceRepository persists attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// UpsertBatch writes every mark for (section, date) in one transaction. Each
// row is keyed on (class_section_id, student_id, date), so a resubmitted
// batch overwrites in place.
func (r *AttendanceRepository) UpsertBatch(ctx context.Context, classSectionID string, date time.Time, markedBy string, marks []AttendanceMark) (records []models.AttendanceRecord, err error) {
	if len(marks) == 0 {
		return []models.AttendanceRecord{}, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin attendance batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Stable order keeps lock acquisition consistent across concurrent batches.
	sorted := make([]AttendanceMark, len(marks))
	copy(sorted, marks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StudentID < sorted[j].StudentID })

	query := `INSERT INTO attendance_records (id, class_section_id, student_id, date, status, marked_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (class_section_id, student_id, date)
DO UPDATE SET status = EXCLUDED.status, marked_by = EXCLUDED.marked_by, updated_at = EXCLUDED.updated_at
RETURNING ` + attendanceColumns

	now := time.Now().UTC()
	records = make([]models.AttendanceRecord, 0, len(sorted))
	for _, mark := range sorted {
		var stored models.AttendanceRecord
		if err = tx.GetContext(ctx, &stored, query, uuid.NewString(), classSectionID, mark.StudentID, date, mark.Status, markedBy, now); err != nil {
			return nil, fmt.Errorf("upsert attendance for %s: %w", mark.StudentID, err)
		}
		records = append(records, stored)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit attendance batch: %w", err)
	}
	return records, nil
}

// CountByStudent tallies a student's marks, optionally within one section.
func (r *AttendanceRepository) CountByStudent(ctx context.Context, studentID string, classSectionID *string) (models.AttendanceCounts, error) {
	query := `SELECT
	COUNT(*) FILTER (WHERE status = 'PRESENT') AS present,
	COUNT(*) FILTER (WHERE status = 'ABSENT') AS absent,
	COUNT(*) FILTER (WHERE status = 'LATE') AS late
FROM attendance_records WHERE student_id = $1`
	args := []interface{}{studentID}
	if classSectionID != nil {
		query += " AND class_section_id = $2"
		args = append(args, *classSectionID)
	}
	var counts models.AttendanceCounts
	if err := r.db.GetContext(ctx, &counts, query, args...); err != nil {
		return models.AttendanceCounts{}, fmt.Errorf("count attendance: %w", err)
	}
	return counts, nil
}

// SectionSheet returns the marks recorded for a section on one date, ordered by student name.
func (r *AttendanceRepository) SectionSheet(ctx context.Context, classSectionID string, date time.Time) ([]models.AttendanceSheetRow, error) {
	const query = `SELECT ar.student_id, u.display_name AS student_name, ar.status, ar.marked_by
FROM attendance_records ar
JOIN users u ON u.id = ar.student_id
WHERE ar.class_section_id = $1 AND ar.date = $2
ORDER BY u.display_name, ar.student_id`
	var rows []models.AttendanceSheetRow
	if err := r.db.SelectContext(ctx, &rows, query, classSectionID, date); err != nil {
		return nil, fmt.Errorf("attendance sheet: %w", err)
	}
	return rows, nil
}
