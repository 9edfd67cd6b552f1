package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/classhub-api/internal/authz"
	"github.com/noah-isme/classhub-api/internal/models"
	"github.com/noah-isme/classhub-api/internal/repository"
	appErrors "github.com/noah-isme/classhub-api/pkg/errors"
)

type noticeRepository interface {
	Create(ctx context.Context, notice *models.Notice) error
	ListVisible(ctx context.Context, filter repository.NoticeVisibilityFilter) ([]models.Notice, error)
}

type noticeSectionReader interface {
	sectionReader
	FindByIDs(ctx context.Context, ids []string) (map[string]models.ClassSection, error)
}

type approvedSectionLister interface {
	ApprovedSectionIDs(ctx context.Context, studentID string) ([]string, error)
}

// PostNoticeRequest is the payload for a new notice.
type PostNoticeRequest struct {
	Scope   models.NoticeScope `json:"scope"`
	Title   string             `json:"title" validate:"required,max=200"`
	Content string             `json:"content" validate:"required"`
}

// NoticeService resolves who may read and post notices.
type NoticeService struct {
	repo        noticeRepository
	sections    noticeSectionReader
	enrollments approvedSectionLister
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewNoticeService constructs the service.
func NewNoticeService(repo noticeRepository, sections noticeSectionReader, enrollments approvedSectionLister, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *NoticeService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoticeService{repo: repo, sections: sections, enrollments: enrollments, metrics: metrics, validator: validate, logger: logger}
}

// ListVisible returns every notice the viewer may read, newest first. Each
// call recomputes the list from storage.
func (s *NoticeService) ListVisible(ctx context.Context, viewer models.Identity) ([]models.Notice, error) {
	if authz.SeesAllNotices(viewer) {
		notices, err := s.repo.ListVisible(ctx, repository.NoticeVisibilityFilter{All: true})
		if err != nil {
			return nil, appErrors.Storage(err, "failed to list notices")
		}
		return notices, nil
	}

	approvedIDs, err := s.enrollments.ApprovedSectionIDs(ctx, viewer.ID)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to load enrollments")
	}
	candidates, err := s.repo.ListVisible(ctx, repository.NoticeVisibilityFilter{
		ViewerID:           viewer.ID,
		ApprovedSectionIDs: approvedIDs,
	})
	if err != nil {
		return nil, appErrors.Storage(err, "failed to list notices")
	}

	approved := make(map[string]bool, len(approvedIDs))
	for _, id := range approvedIDs {
		approved[id] = true
	}
	var sectionIDs []string
	for _, n := range candidates {
		if scope := n.Scope(); !scope.IsGlobal() && !approved[scope.ClassSectionID] {
			sectionIDs = append(sectionIDs, scope.ClassSectionID)
		}
	}
	sections, err := s.sections.FindByIDs(ctx, sectionIDs)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to load class sections")
	}

	visible := make([]models.Notice, 0, len(candidates))
	for _, n := range candidates {
		scope := n.Scope()
		var section *models.ClassSection
		if sec, ok := sections[scope.ClassSectionID]; ok {
			section = &sec
		}
		if authz.CanViewNotice(viewer, n, section, approved[scope.ClassSectionID]) {
			visible = append(visible, n)
		}
	}
	return visible, nil
}

// Post publishes a notice. Global notices need an admin; section notices
// need that section's teacher or CR.
func (s *NoticeService) Post(ctx context.Context, author models.Identity, req PostNoticeRequest) (*models.Notice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid notice payload")
	}
	if !req.Scope.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scope must be GLOBAL or CLASS_SECTION with a class_section_id")
	}

	notice := &models.Notice{
		Title:     req.Title,
		Content:   req.Content,
		AuthorID:  author.ID,
		ScopeKind: req.Scope.Kind,
	}
	if req.Scope.IsGlobal() {
		if !authz.CanPostGlobalNotice(author) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may post global notices")
		}
	} else {
		section, err := loadSection(ctx, s.sections, req.Scope.ClassSectionID)
		if err != nil {
			return nil, err
		}
		if !authz.CanPostSectionNotice(author, *section) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only the section's teacher or CR may post to it")
		}
		sectionID := section.ID
		notice.ClassSectionID = &sectionID
	}

	if err := s.repo.Create(ctx, notice); err != nil {
		return nil, appErrors.Storage(err, "failed to post notice")
	}
	s.metrics.RecordNoticePosted(notice.ScopeKind)
	s.logger.Info("notice posted",
		zap.String("notice_id", notice.ID),
		zap.String("scope", string(notice.ScopeKind)),
		zap.String("author_id", author.ID))
	return notice, nil
}
