package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/classhub-api/internal/models"
)

const classSectionColumns = `id, course_id, department_code, session, section_label, teacher_id, cr_student_id, created_at, updated_at`

// ErrStudentNotApproved is returned by SetCR when the candidate lacks an approved enrollment.
var ErrStudentNotApproved = errors.New("student has no approved enrollment in section")

// ClassSectionRepository handles persistence of class sections and their CR slot.
type ClassSectionRepository struct {
	db *sqlx.DB
}

// NewClassSectionRepository constructs the repository.
func NewClassSectionRepository(db *sqlx.DB) *ClassSectionRepository {
	return &ClassSectionRepository{db: db}
}

// FindByID returns a section or sql.ErrNoRows.
func (r *ClassSectionRepository) FindByID(ctx context.Context, id string) (*models.ClassSection, error) {
	query := `SELECT ` + classSectionColumns + ` FROM class_sections WHERE id = $1`
	var section models.ClassSection
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		if err == sql.ErrNoRows || isInvalidID(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find class section: %w", err)
	}
	return &section, nil
}

// FindByIDs returns the sections matching ids keyed by id.
func (r *ClassSectionRepository) FindByIDs(ctx context.Context, ids []string) (map[string]models.ClassSection, error) {
	result := make(map[string]models.ClassSection, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`SELECT `+classSectionColumns+` FROM class_sections WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build class sections query: %w", err)
	}
	var sections []models.ClassSection
	if err := r.db.SelectContext(ctx, &sections, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find class sections: %w", err)
	}
	for _, s := range sections {
		result[s.ID] = s
	}
	return result, nil
}

// List returns sections filtered by department, session or teacher.
func (r *ClassSectionRepository) List(ctx context.Context, filter models.ClassSectionFilter) ([]models.ClassSection, int, error) {
	var conditions []string
	var args []interface{}
	if filter.DepartmentCode != "" {
		conditions = append(conditions, fmt.Sprintf("department_code = $%d", len(args)+1))
		args = append(args, filter.DepartmentCode)
	}
	if filter.Session != "" {
		conditions = append(conditions, fmt.Sprintf("session = $%d", len(args)+1))
		args = append(args, filter.Session)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, size := normalisePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM class_sections%s ORDER BY course_id, section_label LIMIT %d OFFSET %d`,
		classSectionColumns, clause, size, (page-1)*size)

	var sections []models.ClassSection
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list class sections: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM class_sections"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count class sections: %w", err)
	}
	return sections, total, nil
}

// Create persists a new section. A clashing (course, department, session, label) yields ErrUniqueViolation.
func (r *ClassSectionRepository) Create(ctx context.Context, section *models.ClassSection) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	section.CreatedAt = now
	section.UpdatedAt = now
	const query = `INSERT INTO class_sections (id, course_id, department_code, session, section_label, teacher_id, cr_student_id, created_at, updated_at)
VALUES (:id, :course_id, :department_code, :session, :section_label, :teacher_id, :cr_student_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		if isUniqueViolation(err) {
			return ErrUniqueViolation
		}
		return fmt.Errorf("create class section: %w", err)
	}
	return nil
}

// AssignTeacher sets the assigned teacher and returns the updated row.
func (r *ClassSectionRepository) AssignTeacher(ctx context.Context, sectionID, teacherID string) (*models.ClassSection, error) {
	query := `UPDATE class_sections SET teacher_id = $2, updated_at = $3 WHERE id = $1 RETURNING ` + classSectionColumns
	var section models.ClassSection
	if err := r.db.GetContext(ctx, &section, query, sectionID, teacherID, time.Now().UTC()); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("assign teacher: %w", err)
	}
	return &section, nil
}

// SetCR replaces the section's CR in one transaction. The section row is
// locked first so concurrent promotions serialise, and the approved
// enrollment is checked under the same lock. It returns the updated section
// and the previous CR, if any.
func (r *ClassSectionRepository) SetCR(ctx context.Context, sectionID, studentID string) (section *models.ClassSection, prevCR *string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin cr transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.ClassSection
	lockQuery := `SELECT ` + classSectionColumns + ` FROM class_sections WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, sectionID); err != nil {
		if err == sql.ErrNoRows || isInvalidID(err) {
			err = sql.ErrNoRows
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("lock class section: %w", err)
	}

	var approved bool
	const approvedQuery = `SELECT EXISTS(SELECT 1 FROM enrollment_requests WHERE class_section_id = $1 AND student_id = $2 AND status = 'APPROVED')`
	if err = tx.GetContext(ctx, &approved, approvedQuery, sectionID, studentID); err != nil {
		if isInvalidID(err) {
			err = ErrStudentNotApproved
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("check approved enrollment: %w", err)
	}
	if !approved {
		err = ErrStudentNotApproved
		return nil, nil, err
	}

	var updated models.ClassSection
	updateQuery := `UPDATE class_sections SET cr_student_id = $2, updated_at = $3 WHERE id = $1 RETURNING ` + classSectionColumns
	if err = tx.GetContext(ctx, &updated, updateQuery, sectionID, studentID, time.Now().UTC()); err != nil {
		return nil, nil, fmt.Errorf("update class representative: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit cr transaction: %w", err)
	}
	return &updated, current.CRStudentID, nil
}

// ClearCR unsets the section's CR. Clearing an empty slot is not an error.
func (r *ClassSectionRepository) ClearCR(ctx context.Context, sectionID string) (section *models.ClassSection, prevCR *string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin cr transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.ClassSection
	lockQuery := `SELECT ` + classSectionColumns + ` FROM class_sections WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, sectionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("lock class section: %w", err)
	}
	if current.CRStudentID == nil {
		if err = tx.Commit(); err != nil {
			return nil, nil, fmt.Errorf("commit cr transaction: %w", err)
		}
		return &current, nil, nil
	}

	var updated models.ClassSection
	updateQuery := `UPDATE class_sections SET cr_student_id = NULL, updated_at = $2 WHERE id = $1 RETURNING ` + classSectionColumns
	if err = tx.GetContext(ctx, &updated, updateQuery, sectionID, time.Now().UTC()); err != nil {
		return nil, nil, fmt.Errorf("clear class representative: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit cr transaction: %w", err)
	}
	return &updated, current.CRStudentID, nil
}

func normalisePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
