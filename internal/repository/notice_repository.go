package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/classhub-api/internal/models"
)

const noticeColumns = `n.id, n.title, n.content, n.author_id, n.scope, n.class_section_id, n.created_at`

// NoticeVisibilityFilter narrows notices to what one viewer may read.
type NoticeVisibilityFilter struct {
	// All skips filtering entirely.
	All bool
	// ViewerID matches sections the viewer teaches or represents.
	ViewerID string
	// ApprovedSectionIDs are the sections the viewer is enrolled in.
	ApprovedSectionIDs []string
}

// NoticeRepository provides persistence for notices.
type NoticeRepository struct {
	db *sqlx.DB
}

// NewNoticeRepository creates the repository.
func NewNoticeRepository(db *sqlx.DB) *NoticeRepository {
	return &NoticeRepository{db: db}
}

// Create persists a notice.
func (r *NoticeRepository) Create(ctx context.Context, notice *models.Notice) error {
	if notice.ID == "" {
		notice.ID = uuid.NewString()
	}
	if notice.CreatedAt.IsZero() {
		notice.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notices (id, title, content, author_id, scope, class_section_id, created_at)
VALUES (:id, :title, :content, :author_id, :scope, :class_section_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notice); err != nil {
		return fmt.Errorf("create notice: %w", err)
	}
	return nil
}

// ListVisible returns notices matching the filter, newest first. Ties on
// created_at break on id so repeated calls yield the same order.
func (r *NoticeRepository) ListVisible(ctx context.Context, filter NoticeVisibilityFilter) ([]models.Notice, error) {
	var (
		query string
		args  []interface{}
	)
	if filter.All {
		query = `SELECT ` + noticeColumns + ` FROM notices n ORDER BY n.created_at DESC, n.id DESC`
	} else {
		query = `SELECT ` + noticeColumns + ` FROM notices n
LEFT JOIN class_sections cs ON cs.id = n.class_section_id
WHERE n.scope = 'GLOBAL'
	OR n.class_section_id = ANY($1)
	OR cs.teacher_id = $2
	OR cs.cr_student_id = $2
ORDER BY n.created_at DESC, n.id DESC`
		ids := filter.ApprovedSectionIDs
		if ids == nil {
			ids = []string{}
		}
		args = []interface{}{pq.Array(ids), filter.ViewerID}
	}

	notices := make([]models.Notice, 0)
	if err := r.db.SelectContext(ctx, &notices, query, args...); err != nil {
		return nil, fmt.Errorf("list visible notices: %w", err)
	}
	return notices, nil
}
