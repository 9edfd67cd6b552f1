package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/classhub-api/internal/authz"
	"github.com/noah-isme/classhub-api/internal/models"
	"github.com/noah-isme/classhub-api/internal/repository"
	appErrors "github.com/noah-isme/classhub-api/pkg/errors"
)

type enrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.EnrollmentRequest, error)
	FindOpen(ctx context.Context, studentID, classSectionID string) (*models.EnrollmentRequest, error)
	Create(ctx context.Context, request *models.EnrollmentRequest) error
	Decide(ctx context.Context, id string, status models.EnrollmentStatus, actorID string, decidedAt time.Time) (*models.EnrollmentRequest, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentRequest, int, error)
}

// DecideEnrollmentRequest carries the verdict for a pending request.
type DecideEnrollmentRequest struct {
	Decision string `json:"decision" validate:"required,enrollment_decision"`
}

// EnrollmentService runs the enrollment request lifecycle:
// PENDING moves once to APPROVED or REJECTED and stays there.
type EnrollmentService struct {
	repo      enrollmentRepository
	sections  sectionReader
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEnrollmentService creates an enrollment service.
func NewEnrollmentService(repo enrollmentRepository, sections sectionReader, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, sections: sections, audit: audit, metrics: metrics, validator: validate, logger: logger, now: time.Now}
}

// Request files a pending enrollment for the calling student.
func (s *EnrollmentService) Request(ctx context.Context, actor models.Identity, classSectionID string) (*models.EnrollmentRequest, error) {
	if !authz.CanRequestEnrollment(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may request enrollment")
	}
	if _, err := loadSection(ctx, s.sections, classSectionID); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindOpen(ctx, actor.ID, classSectionID)
	switch {
	case err == nil:
		return nil, s.openConflict(existing)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Storage(err, "failed to check existing enrollment")
	}

	request := &models.EnrollmentRequest{
		StudentID:      actor.ID,
		ClassSectionID: classSectionID,
		RequestedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(ctx, request); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			// Lost the race to a concurrent request for the same pair.
			winner, findErr := s.repo.FindOpen(ctx, actor.ID, classSectionID)
			if findErr != nil {
				s.metrics.RecordEnrollmentRequest(appErrors.ErrDuplicatePending.Code)
				return nil, appErrors.ErrDuplicatePending
			}
			return nil, s.openConflict(winner)
		}
		return nil, appErrors.Storage(err, "failed to create enrollment request")
	}

	s.metrics.RecordEnrollmentRequest("CREATED")
	s.logger.Info("enrollment requested",
		zap.String("request_id", request.ID),
		zap.String("student_id", actor.ID),
		zap.String("section_id", classSectionID))
	return request, nil
}

func (s *EnrollmentService) openConflict(existing *models.EnrollmentRequest) error {
	if existing.Status == models.EnrollmentStatusApproved {
		s.metrics.RecordEnrollmentRequest(appErrors.ErrAlreadyEnrolled.Code)
		return appErrors.ErrAlreadyEnrolled
	}
	s.metrics.RecordEnrollmentRequest(appErrors.ErrDuplicatePending.Code)
	return appErrors.ErrDuplicatePending
}

// Decide applies a verdict. The actor must be the section's CR, its
// assigned teacher or an admin, and the request must still be pending.
func (s *EnrollmentService) Decide(ctx context.Context, actor models.Identity, requestID string, req DecideEnrollmentRequest) (*models.EnrollmentRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "decision must be APPROVE or REJECT")
	}
	decision, _ := models.ParseDecision(req.Decision)

	current, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment request not found")
		}
		return nil, appErrors.Storage(err, "failed to load enrollment request")
	}
	section, err := loadSection(ctx, s.sections, current.ClassSectionID)
	if err != nil {
		return nil, err
	}
	if !authz.CanDecideEnrollment(actor, *section) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the section's CR, teacher or an admin may decide")
	}
	if current.Status != models.EnrollmentStatusPending {
		return nil, appErrors.ErrInvalidState
	}

	decided, err := s.repo.Decide(ctx, requestID, decision.Status(), actor.ID, s.now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidState
		}
		return nil, appErrors.Storage(err, "failed to record decision")
	}

	s.metrics.RecordEnrollmentDecision(decision)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionEnrollmentDecision, decided.ID,
		map[string]interface{}{"status": current.Status},
		map[string]interface{}{"status": decided.Status, "section_id": decided.ClassSectionID, "student_id": decided.StudentID})
	s.logger.Info("enrollment decided",
		zap.String("request_id", decided.ID),
		zap.String("status", string(decided.Status)),
		zap.String("actor_id", actor.ID))
	return decided, nil
}

// ListForSection returns the section's requests to those who may decide them.
func (s *EnrollmentService) ListForSection(ctx context.Context, actor models.Identity, filter models.EnrollmentFilter) ([]models.EnrollmentRequest, *models.Pagination, error) {
	section, err := loadSection(ctx, s.sections, filter.ClassSectionID)
	if err != nil {
		return nil, nil, err
	}
	if !authz.CanListSectionEnrollments(actor, *section) {
		return nil, nil, appErrors.ErrForbidden
	}
	filter.StudentID = ""
	return s.list(ctx, filter)
}

// ListMine returns the caller's own requests.
func (s *EnrollmentService) ListMine(ctx context.Context, actor models.Identity, filter models.EnrollmentFilter) ([]models.EnrollmentRequest, *models.Pagination, error) {
	filter.StudentID = actor.ID
	filter.ClassSectionID = ""
	return s.list(ctx, filter)
}

func (s *EnrollmentService) list(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentRequest, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown enrollment status")
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Storage(err, "failed to list enrollment requests")
	}
	page, size := pageDefaults(filter.Page, filter.PageSize)
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}
