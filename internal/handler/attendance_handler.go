package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/classhub-api/internal/models"
	"github.com/noah-isme/classhub-api/internal/service"
	appErrors "github.com/noah-isme/classhub-api/pkg/errors"
	"github.com/noah-isme/classhub-api/pkg/export"
	"github.com/noah-isme/classhub-api/pkg/response"
)

type attendanceService interface {
	Mark(ctx context.Context, actor models.Identity, classSectionID string, req service.MarkAttendanceRequest) ([]models.AttendanceRecord, error)
	Sheet(ctx context.Context, viewer models.Identity, classSectionID, rawDate string) (*models.ClassSection, time.Time, []models.AttendanceSheetRow, error)
	Export(ctx context.Context, viewer models.Identity, classSectionID, rawDate string, format export.Format) ([]byte, string, error)
	Summary(ctx context.Context, viewer models.Identity, classSectionID, rawFrom, rawTo string) (*models.AttendanceSummary, error)
	StatsFor(ctx context.Context, viewer models.Identity, studentID string, classSectionID *string) (*models.AttendanceStats, error)
}

// AttendanceSheet is the section roll for one date.
type AttendanceSheet struct {
	ClassSectionID string                      `json:"class_section_id"`
	Date           string                      `json:"date"`
	Rows           []models.AttendanceSheetRow `json:"rows"`
}

// AttendanceHandler exposes marking, sheet and statistics endpoints.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(svc attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// Mark godoc
// @Summary Mark attendance
// @Description Upserts one status per student for the date. Re-submitting overwrites.
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Section ID"
// @Param payload body service.MarkAttendanceRequest true "Marks"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /sections/{id}/attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	actor, ok := identityFromContext(c)
	if !ok {
		return
	}
	var req service.MarkAttendanceRequest
	if !bindJSON(c, &req) {
		return
	}
	records, err := h.service.Mark(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Sheet godoc
// @Summary Section attendance sheet
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param id path string true "Section ID"
// @Param date query string true "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/attendance [get]
func (h *AttendanceHandler) Sheet(c *gin.Context) {
	viewer, ok := identityFromContext(c)
	if !ok {
		return
	}
	section, date, rows, err := h.service.Sheet(c.Request.Context(), viewer, c.Param("id"), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if rows == nil {
		rows = []models.AttendanceSheetRow{}
	}
	response.JSON(c, http.StatusOK, AttendanceSheet{
		ClassSectionID: section.ID,
		Date:           date.Format("2006-01-02"),
		Rows:           rows,
	}, nil)
}

// Summary godoc
// @Summary Section attendance summary
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param id path string true "Section ID"
// @Param from query string false "YYYY-MM-DD"
// @Param to query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/attendance/summary [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	viewer, ok := identityFromContext(c)
	if !ok {
		return
	}
	summary, err := h.service.Summary(c.Request.Context(), viewer, c.Param("id"), c.Query("from"), c.Query("to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Export godoc
// @Summary Export attendance sheet
// @Tags Attendance
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Section ID"
// @Param date query string true "YYYY-MM-DD"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /sections/{id}/attendance/export [get]
func (h *AttendanceHandler) Export(c *gin.Context) {
	viewer, ok := identityFromContext(c)
	if !ok {
		return
	}
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "format must be csv or pdf"))
		return
	}
	body, filename, err := h.service.Export(c.Request.Context(), viewer, c.Param("id"), c.Query("date"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, format.ContentType(), filename, body)
}

// Stats godoc
// @Summary Attendance statistics
// @Description Students may only read their own statistics.
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param sectionId query string false "Restrict to one section"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /students/{id}/attendance/stats [get]
func (h *AttendanceHandler) Stats(c *gin.Context) {
	viewer, ok := identityFromContext(c)
	if !ok {
		return
	}
	var sectionID *string
	if raw := c.Query("sectionId"); raw != "" {
		sectionID = &raw
	}
	stats, err := h.service.StatsFor(c.Request.Context(), viewer, c.Param("id"), sectionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
