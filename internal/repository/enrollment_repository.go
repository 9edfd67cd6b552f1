package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/classhub-api/internal/models"
)

const enrollmentColumns = `id, student_id, class_section_id, status, requested_at, decided_at, decided_by`

// EnrollmentRepository handles persistence of enrollment requests.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns an enrollment request by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollment_requests WHERE id = $1`
	var request models.EnrollmentRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		if err == sql.ErrNoRows || isInvalidID(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find enrollment request: %w", err)
	}
	return &request, nil
}

// FindOpen returns the pending or approved request for the pair, or sql.ErrNoRows.
func (r *EnrollmentRepository) FindOpen(ctx context.Context, studentID, classSectionID string) (*models.EnrollmentRequest, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollment_requests
WHERE student_id = $1 AND class_section_id = $2 AND status IN ('PENDING', 'APPROVED') LIMIT 1`
	var request models.EnrollmentRequest
	if err := r.db.GetContext(ctx, &request, query, studentID, classSectionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find open enrollment request: %w", err)
	}
	return &request, nil
}

// Create inserts a pending request. The partial unique index on open
// requests makes the insert the serialisation point: a concurrent duplicate
// yields ErrUniqueViolation.
func (r *EnrollmentRepository) Create(ctx context.Context, request *models.EnrollmentRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.RequestedAt.IsZero() {
		request.RequestedAt = time.Now().UTC()
	}
	request.Status = models.EnrollmentStatusPending
	const query = `INSERT INTO enrollment_requests (id, student_id, class_section_id, status, requested_at)
VALUES (:id, :student_id, :class_section_id, :status, :requested_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		if isUniqueViolation(err) {
			return ErrUniqueViolation
		}
		return fmt.Errorf("create enrollment request: %w", err)
	}
	return nil
}

// Decide moves a pending request to its terminal status. The WHERE clause
// guards the transition, so a request decided concurrently returns sql.ErrNoRows.
func (r *EnrollmentRepository) Decide(ctx context.Context, id string, status models.EnrollmentStatus, actorID string, decidedAt time.Time) (*models.EnrollmentRequest, error) {
	query := `UPDATE enrollment_requests SET status = $2, decided_at = $3, decided_by = $4
WHERE id = $1 AND status = 'PENDING' RETURNING ` + enrollmentColumns
	var request models.EnrollmentRequest
	if err := r.db.GetContext(ctx, &request, query, id, status, decidedAt, actorID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("decide enrollment request: %w", err)
	}
	return &request, nil
}

// List returns requests filtered by student, section and status, newest first.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentRequest, int, error) {
	var conditions []string
	var args []interface{}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassSectionID != "" {
		conditions = append(conditions, fmt.Sprintf("class_section_id = $%d", len(args)+1))
		args = append(args, filter.ClassSectionID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, size := normalisePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM enrollment_requests%s ORDER BY requested_at DESC, id DESC LIMIT %d OFFSET %d`,
		enrollmentColumns, clause, size, (page-1)*size)

	var requests []models.EnrollmentRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollment requests: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM enrollment_requests"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollment requests: %w", err)
	}
	return requests, total, nil
}

// ApprovedStudentIDs returns which of studentIDs hold an approved enrollment in the section.
func (r *EnrollmentRepository) ApprovedStudentIDs(ctx context.Context, classSectionID string, studentIDs []string) ([]string, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT student_id FROM enrollment_requests
WHERE class_section_id = $1 AND status = 'APPROVED' AND student_id = ANY($2)`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, classSectionID, pq.Array(studentIDs)); err != nil {
		if isInvalidID(err) {
			return nil, ErrInvalidID
		}
		return nil, fmt.Errorf("list approved students: %w", err)
	}
	return ids, nil
}

// ApprovedSectionIDs returns the sections in which the student is approved.
func (r *EnrollmentRepository) ApprovedSectionIDs(ctx context.Context, studentID string) ([]string, error) {
	const query = `SELECT class_section_id FROM enrollment_requests WHERE student_id = $1 AND status = 'APPROVED'`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, studentID); err != nil {
		return nil, fmt.Errorf("list approved sections: %w", err)
	}
	return ids, nil
}

// TaughtBy reports whether teacherID teaches a section in which the student
// is approved. A non-nil classSectionID narrows the check to that section.
func (r *EnrollmentRepository) TaughtBy(ctx context.Context, teacherID, studentID string, classSectionID *string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM enrollment_requests er JOIN class_sections cs ON cs.id = er.class_section_id
WHERE er.student_id = $1 AND er.status = 'APPROVED' AND cs.teacher_id = $2`
	args := []interface{}{studentID, teacherID}
	if classSectionID != nil {
		query += ` AND cs.id = $3`
		args = append(args, *classSectionID)
	}
	query += `)`
	var taught bool
	if err := r.db.GetContext(ctx, &taught, query, args...); err != nil {
		if isInvalidID(err) {
			return false, nil
		}
		return false, fmt.Errorf("check teacher of student: %w", err)
	}
	return taught, nil
}
