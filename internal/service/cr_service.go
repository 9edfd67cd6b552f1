package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/classhub-api/internal/authz"
	"github.com/noah-isme/classhub-api/internal/models"
	"github.com/noah-isme/classhub-api/internal/repository"
	appErrors "github.com/noah-isme/classhub-api/pkg/errors"
)

type crStore interface {
	SetCR(ctx context.Context, sectionID, studentID string) (*models.ClassSection, *string, error)
	ClearCR(ctx context.Context, sectionID string) (*models.ClassSection, *string, error)
}

// CRService manages the single class representative slot of each section.
// The swap itself runs inside one repository transaction.
type CRService struct {
	repo    crStore
	audit   auditLogger
	metrics *MetricsService
	logger  *zap.Logger
}

// NewCRService constructs the service.
func NewCRService(repo crStore, audit auditLogger, metrics *MetricsService, logger *zap.Logger) *CRService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CRService{repo: repo, audit: audit, metrics: metrics, logger: logger}
}

// Promote makes studentID the CR of the section, replacing any current CR.
func (s *CRService) Promote(ctx context.Context, actor models.Identity, sectionID, studentID string) (*models.ClassSection, error) {
	if !authz.CanManageCR(actor) {
		return nil, appErrors.ErrForbidden
	}
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}

	section, prev, err := s.repo.SetCR(ctx, sectionID, studentID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class section not found")
		case errors.Is(err, repository.ErrStudentNotApproved):
			return nil, appErrors.Clone(appErrors.ErrValidation, "student must hold an approved enrollment in the section")
		default:
			return nil, appErrors.Storage(err, "failed to promote class representative")
		}
	}

	s.metrics.RecordCRChange("promote")
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionCRPromote, section.ID,
		map[string]interface{}{"cr_student_id": prev},
		map[string]interface{}{"cr_student_id": section.CRStudentID})
	s.logger.Info("class representative promoted",
		zap.String("section_id", section.ID),
		zap.String("student_id", studentID),
		zap.Stringp("previous_cr", prev))
	return section, nil
}

// Demote clears the section's CR. Clearing an empty slot succeeds.
func (s *CRService) Demote(ctx context.Context, actor models.Identity, sectionID string) (*models.ClassSection, error) {
	if !authz.CanManageCR(actor) {
		return nil, appErrors.ErrForbidden
	}

	section, prev, err := s.repo.ClearCR(ctx, sectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class section not found")
		}
		return nil, appErrors.Storage(err, "failed to demote class representative")
	}
	if prev == nil {
		return section, nil
	}

	s.metrics.RecordCRChange("demote")
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionCRDemote, section.ID,
		map[string]interface{}{"cr_student_id": prev},
		map[string]interface{}{"cr_student_id": nil})
	s.logger.Info("class representative demoted", zap.String("section_id", section.ID), zap.Stringp("previous_cr", prev))
	return section, nil
}
