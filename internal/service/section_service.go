package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/classhub-api/internal/authz"
	"github.com/noah-isme/classhub-api/internal/models"
	"github.com/noah-isme/classhub-api/internal/repository"
	appErrors "github.com/noah-isme/classhub-api/pkg/errors"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type sectionReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassSection, error)
}

type sectionStore interface {
	sectionReader
	List(ctx context.Context, filter models.ClassSectionFilter) ([]models.ClassSection, int, error)
	Create(ctx context.Context, section *models.ClassSection) error
	AssignTeacher(ctx context.Context, sectionID, teacherID string) (*models.ClassSection, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreateSectionRequest is the payload for opening a class section.
type CreateSectionRequest struct {
	CourseID       string  `json:"course_id" validate:"required,max=64"`
	DepartmentCode string  `json:"department_code" validate:"required,max=16"`
	Session        string  `json:"session" validate:"required,max=16"`
	SectionLabel   string  `json:"section_label" validate:"required,max=8"`
	TeacherID      *string `json:"assigned_teacher_id" validate:"omitempty,uuid"`
}

// AssignTeacherRequest binds a teacher to a section.
type AssignTeacherRequest struct {
	TeacherID string `json:"teacher_id" validate:"required"`
}

// ClassSectionService manages class sections.
type ClassSectionService struct {
	repo      sectionStore
	users     userReader
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassSectionService constructs the service.
func NewClassSectionService(repo sectionStore, users userReader, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *ClassSectionService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassSectionService{repo: repo, users: users, audit: audit, validator: validate, logger: logger}
}

// Get returns a section by id.
func (s *ClassSectionService) Get(ctx context.Context, id string) (*models.ClassSection, error) {
	return loadSection(ctx, s.repo, id)
}

// List returns sections with pagination metadata.
func (s *ClassSectionService) List(ctx context.Context, filter models.ClassSectionFilter) ([]models.ClassSection, *models.Pagination, error) {
	sections, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Storage(err, "failed to list class sections")
	}
	page, size := pageDefaults(filter.Page, filter.PageSize)
	return sections, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Create opens a new section. Admin only.
func (s *ClassSectionService) Create(ctx context.Context, actor models.Identity, req CreateSectionRequest) (*models.ClassSection, error) {
	if !authz.CanManageSections(actor) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid class section payload")
	}
	if req.TeacherID != nil {
		if err := s.ensureTeacher(ctx, *req.TeacherID); err != nil {
			return nil, err
		}
	}

	section := &models.ClassSection{
		CourseID:       req.CourseID,
		DepartmentCode: req.DepartmentCode,
		Session:        req.Session,
		SectionLabel:   req.SectionLabel,
		TeacherID:      req.TeacherID,
	}
	if err := s.repo.Create(ctx, section); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "class section already exists for course, department, session and label")
		}
		return nil, appErrors.Storage(err, "failed to create class section")
	}
	s.logger.Info("class section created", zap.String("section_id", section.ID), zap.String("actor_id", actor.ID))
	return section, nil
}

// AssignTeacher binds teacherID to the section. Admin only.
func (s *ClassSectionService) AssignTeacher(ctx context.Context, actor models.Identity, sectionID string, req AssignTeacherRequest) (*models.ClassSection, error) {
	if !authz.CanManageSections(actor) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid teacher assignment payload")
	}
	before, err := loadSection(ctx, s.repo, sectionID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureTeacher(ctx, req.TeacherID); err != nil {
		return nil, err
	}

	section, err := s.repo.AssignTeacher(ctx, sectionID, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class section not found")
		}
		return nil, appErrors.Storage(err, "failed to assign teacher")
	}

	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionTeacherAssign, section.ID,
		map[string]interface{}{"teacher_id": before.TeacherID},
		map[string]interface{}{"teacher_id": section.TeacherID})
	return section, nil
}

func (s *ClassSectionService) ensureTeacher(ctx context.Context, teacherID string) error {
	user, err := s.users.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Storage(err, "failed to load teacher")
	}
	if user.Role != models.RoleTeacher || !user.Active {
		return appErrors.Clone(appErrors.ErrValidation, "assigned user must be an active teacher")
	}
	return nil
}

func loadSection(ctx context.Context, repo sectionReader, id string) (*models.ClassSection, error) {
	section, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class section not found")
		}
		return nil, appErrors.Storage(err, "failed to load class section")
	}
	return section, nil
}

// recordAudit writes an audit row. Failures are logged and never surface.
func recordAudit(ctx context.Context, audit auditLogger, logger *zap.Logger, actor models.Identity, action, resourceID string, oldValues, newValues interface{}) {
	if audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &actor.ID,
		Action:     action,
		Resource:   "class_section",
		ResourceID: &resourceID,
	}
	if action == models.AuditActionEnrollmentDecision {
		entry.Resource = "enrollment_request"
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	if err := audit.CreateAuditLog(ctx, entry); err != nil {
		logger.Warn("failed to record audit log", zap.String("action", action), zap.String("resource_id", resourceID), zap.Error(err))
	}
}

func pageDefaults(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
