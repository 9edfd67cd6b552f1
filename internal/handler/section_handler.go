package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/classhub-api/internal/models"
	"github.com/noah-isme/classhub-api/internal/service"
	"github.com/noah-isme/classhub-api/pkg/response"
)

type sectionService interface {
	Get(ctx context.Context, id string) (*models.ClassSection, error)
	List(ctx context.Context, filter models.ClassSectionFilter) ([]models.ClassSection, *models.Pagination, error)
	Create(ctx context.Context, actor models.Identity, req service.CreateSectionRequest) (*models.ClassSection, error)
	AssignTeacher(ctx context.Context, actor models.Identity, sectionID string, req service.AssignTeacherRequest) (*models.ClassSection, error)
}

type crManager interface {
	Promote(ctx context.Context, actor models.Identity, sectionID, studentID string) (*models.ClassSection, error)
	Demote(ctx context.Context, actor models.Identity, sectionID string) (*models.ClassSection, error)
}

// PromoteCRRequest names the student to designate.
type PromoteCRRequest struct {
	StudentID string `json:"student_id" binding:"required"`
}

// SectionHandler exposes class section and CR endpoints.
type SectionHandler struct {
	sections sectionService
	crs      crManager
}

// NewSectionHandler constructs a section handler.
func NewSectionHandler(sections sectionService, crs crManager) *SectionHandler {
	return &SectionHandler{sections: sections, crs: crs}
}

// List godoc
// @Summary List class sections
// @Tags Sections
// @Produce json
// @Security BearerAuth
// @Param department query string false "Department code"
// @Param session query string false "Session"
// @Param teacher_id query string false "Assigned teacher"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sections [get]
func (h *SectionHandler) List(c *gin.Context) {
	filter := models.ClassSectionFilter{
		DepartmentCode: c.Query("department"),
		Session:        c.Query("session"),
		TeacherID:      c.Query("teacher_id"),
	}
	filter.Page, filter.PageSize = pageParams(c)

	sections, pagination, err := h.sections.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sections, pagination)
}

// Get godoc
// @Summary Get class section
// @Tags Sections
// @Produce json
// @Security BearerAuth
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sections/{id} [get]
func (h *SectionHandler) Get(c *gin.Context) {
	section, err := h.sections.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, section, nil)
}

// Create godoc
// @Summary Create class section
// @Tags Sections
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateSectionRequest true "Section payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /sections [post]
func (h *SectionHandler) Create(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		return
	}
	var req service.CreateSectionRequest
	if !bindJSON(c, &req) {
		return
	}
	section, err := h.sections.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, section)
}

// AssignTeacher godoc
// @Summary Assign section teacher
// @Tags Sections
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Section ID"
// @Param payload body service.AssignTeacherRequest true "Teacher"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/teacher [put]
func (h *SectionHandler) AssignTeacher(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		return
	}
	var req service.AssignTeacherRequest
	if !bindJSON(c, &req) {
		return
	}
	section, err := h.sections.AssignTeacher(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, section, nil)
}

// PromoteCR godoc
// @Summary Designate class representative
// @Description Replaces any existing CR. The student must hold an approved enrollment.
// @Tags Sections
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Section ID"
// @Param payload body PromoteCRRequest true "Student"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /sections/{id}/cr [put]
func (h *SectionHandler) PromoteCR(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		return
	}
	var req PromoteCRRequest
	if !bindJSON(c, &req) {
		return
	}
	section, err := h.crs.Promote(c.Request.Context(), actor, c.Param("id"), req.StudentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, section, nil)
}

// DemoteCR godoc
// @Summary Clear class representative
// @Tags Sections
// @Produce json
// @Security BearerAuth
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/cr [delete]
func (h *SectionHandler) DemoteCR(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		return
	}
	section, err := h.crs.Demote(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, section, nil)
}
