package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/noah-isme/classhub-api/internal/models"
)

// SectionSummary returns section totals and per-student tallies ordered by name.
func (r *AttendanceRepository) SectionSummary(ctx context.Context, filter models.AttendanceSummaryFilter) (*models.AttendanceSummary, error) {
	if filter.ClassSectionID == "" {
		return nil, fmt.Errorf("class section id is required")
	}
	where, args := buildSummaryConditions(filter)
	whereClause := strings.Join(where, " AND ")

	totalSQL := fmt.Sprintf(`SELECT
    COUNT(DISTINCT ar.date) AS session_days,
    COALESCE(SUM(CASE WHEN ar.status = 'PRESENT' THEN 1 ELSE 0 END), 0) AS present,
    COALESCE(SUM(CASE WHEN ar.status = 'ABSENT' THEN 1 ELSE 0 END), 0) AS absent,
    COALESCE(SUM(CASE WHEN ar.status = 'LATE' THEN 1 ELSE 0 END), 0) AS late
FROM attendance_records ar
WHERE %s`, whereClause)
	totalRow := struct {
		SessionDays int `db:"session_days"`
		models.AttendanceCounts
	}{}
	if err := r.db.GetContext(ctx, &totalRow, totalSQL, args...); err != nil {
		return nil, fmt.Errorf("attendance summary totals: %w", err)
	}

	studentsSQL := fmt.Sprintf(`SELECT
    ar.student_id,
    u.display_name AS student_name,
    SUM(CASE WHEN ar.status = 'PRESENT' THEN 1 ELSE 0 END) AS present,
    SUM(CASE WHEN ar.status = 'ABSENT' THEN 1 ELSE 0 END) AS absent,
    SUM(CASE WHEN ar.status = 'LATE' THEN 1 ELSE 0 END) AS late
FROM attendance_records ar
JOIN users u ON u.id = ar.student_id
WHERE %s
GROUP BY ar.student_id, u.display_name
ORDER BY u.display_name ASC, ar.student_id ASC`, whereClause)
	rows := []models.AttendanceSummaryRow{}
	if err := r.db.SelectContext(ctx, &rows, studentsSQL, args...); err != nil {
		return nil, fmt.Errorf("attendance summary per student: %w", err)
	}

	return &models.AttendanceSummary{
		ClassSectionID: filter.ClassSectionID,
		SessionDays:    totalRow.SessionDays,
		Totals:         totalRow.AttendanceCounts,
		Students:       rows,
	}, nil
}

func buildSummaryConditions(filter models.AttendanceSummaryFilter) ([]string, []interface{}) {
	args := []interface{}{filter.ClassSectionID}
	conditions := []string{"ar.class_section_id = $1"}

	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("ar.date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("ar.date <= $%d", len(args)))
	}
	return conditions, args
}
