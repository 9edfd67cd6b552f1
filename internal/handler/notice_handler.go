package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/classhub-api/internal/models"
	"github.com/noah-isme/classhub-api/internal/service"
	"github.com/noah-isme/classhub-api/pkg/response"
)

type noticeService interface {
	ListVisible(ctx context.Context, viewer models.Identity) ([]models.Notice, error)
	Post(ctx context.Context, author models.Identity, req service.PostNoticeRequest) (*models.Notice, error)
}

// NoticeHandler exposes the notice board.
type NoticeHandler struct {
	service noticeService
}

// NewNoticeHandler constructs the handler.
func NewNoticeHandler(svc noticeService) *NoticeHandler {
	return &NoticeHandler{service: svc}
}

// List godoc
// @Summary Visible notices
// @Description Newest first. Global notices plus those for sections the caller belongs to.
// @Tags Notices
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /notices [get]
func (h *NoticeHandler) List(c *gin.Context) {
	viewer, ok := identityFromContext(c)
	if !ok {
		return
	}
	notices, err := h.service.ListVisible(c.Request.Context(), viewer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notices, nil)
}

// Post godoc
// @Summary Post notice
// @Tags Notices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.PostNoticeRequest true "Notice"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /notices [post]
func (h *NoticeHandler) Post(c *gin.Context) {
	author, ok := identityFromContext(c)
	if !ok {
		return
	}
	var req service.PostNoticeRequest
	if !bindJSON(c, &req) {
		return
	}
	notice, err := h.service.Post(c.Request.Context(), author, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, notice)
}
