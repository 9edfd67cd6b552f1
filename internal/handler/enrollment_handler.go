package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/classhub-api/internal/models"
	"github.com/noah-isme/classhub-api/internal/service"
	"github.com/noah-isme/classhub-api/pkg/response"
)

type enrollmentService interface {
	Request(ctx context.Context, actor models.Identity, classSectionID string) (*models.EnrollmentRequest, error)
	Decide(ctx context.Context, actor models.Identity, requestID string, req service.DecideEnrollmentRequest) (*models.EnrollmentRequest, error)
	ListForSection(ctx context.Context, actor models.Identity, filter models.EnrollmentFilter) ([]models.EnrollmentRequest, *models.Pagination, error)
	ListMine(ctx context.Context, actor models.Identity, filter models.EnrollmentFilter) ([]models.EnrollmentRequest, *models.Pagination, error)
}

// EnrollmentHandler manages enrollment request endpoints.
type EnrollmentHandler struct {
	service enrollmentService
}

// NewEnrollmentHandler constructs the handler.
func NewEnrollmentHandler(svc enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// Request godoc
// @Summary Request enrollment
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Section ID"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sections/{id}/enrollments [post]
func (h *EnrollmentHandler) Request(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		return
	}
	request, err := h.service.Request(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// ListForSection godoc
// @Summary List section enrollment requests
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Section ID"
// @Param status query string false "PENDING, APPROVED or REJECTED"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/enrollments [get]
func (h *EnrollmentHandler) ListForSection(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		return
	}
	filter := models.EnrollmentFilter{
		ClassSectionID: c.Param("id"),
		Status:         models.EnrollmentStatus(strings.ToUpper(c.Query("status"))),
	}
	filter.Page, filter.PageSize = pageParams(c)

	requests, pagination, err := h.service.ListForSection(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// ListMine godoc
// @Summary List my enrollment requests
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param status query string false "PENDING, APPROVED or REJECTED"
// @Success 200 {object} response.Envelope
// @Router /me/enrollments [get]
func (h *EnrollmentHandler) ListMine(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		return
	}
	filter := models.EnrollmentFilter{Status: models.EnrollmentStatus(strings.ToUpper(c.Query("status")))}
	filter.Page, filter.PageSize = pageParams(c)

	requests, pagination, err := h.service.ListMine(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Decide godoc
// @Summary Approve or reject an enrollment request
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Param payload body service.DecideEnrollmentRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{id}/decision [post]
func (h *EnrollmentHandler) Decide(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		return
	}
	var req service.DecideEnrollmentRequest
	if !bindJSON(c, &req) {
		return
	}
	request, err := h.service.Decide(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}
