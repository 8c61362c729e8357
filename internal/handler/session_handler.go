package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendify-api/internal/models"
	"github.com/noah-isme/attendify-api/internal/service"
	appErrors "github.com/noah-isme/attendify-api/pkg/errors"
	"github.com/noah-isme/attendify-api/pkg/qr"
	"github.com/noah-isme/attendify-api/pkg/response"
)

type sessionService interface {
	Schedule(ctx context.Context, principal models.Principal, req service.ScheduleSessionRequest) (*models.SessionView, error)
	Reschedule(ctx context.Context, principal models.Principal, sessionID string, input service.SessionScheduleInput) (*models.SessionView, error)
	Get(ctx context.Context, principal models.Principal, sessionID string) (*models.SessionView, error)
	ListForOwner(ctx context.Context, principal models.Principal, req service.ListSessionsRequest) ([]models.SessionView, *models.Pagination, error)
}

type tokenIssuer interface {
	IssueToken(ctx context.Context, principal models.Principal, sessionID string) (*models.IssuedToken, error)
}

// SessionHandler exposes class session endpoints.
type SessionHandler struct {
	sessions sessionService
	tokens   tokenIssuer
}

// NewSessionHandler constructs the session handler.
func NewSessionHandler(sessions sessionService, tokens tokenIssuer) *SessionHandler {
	return &SessionHandler{sessions: sessions, tokens: tokens}
}

// Create godoc
// @Summary Schedule a class session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.ScheduleSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	var req service.ScheduleSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidBody(err, "invalid session payload"))
		return
	}
	view, err := h.sessions.Schedule(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// List godoc
// @Summary List the caller's class sessions
// @Tags Sessions
// @Produce json
// @Param date query string false "Schedule date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	var req service.ListSessionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, invalidBody(err, "invalid query parameters"))
		return
	}
	views, pagination, err := h.sessions.ListForOwner(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, pagination)
}

// Get godoc
// @Summary Get a class session with its current status
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	view, err := h.sessions.Get(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Update godoc
// @Summary Reschedule a class session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.SessionScheduleInput true "Schedule payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id} [put]
func (h *SessionHandler) Update(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	var input service.SessionScheduleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, invalidBody(err, "invalid session payload"))
		return
	}
	view, err := h.sessions.Reschedule(c.Request.Context(), principal, c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// IssueToken godoc
// @Summary Issue the QR token for an ongoing session
// @Description Returns JSON by default, or a PNG QR code with format=qr. The secret is only shown here.
// @Tags Sessions
// @Produce json
// @Produce png
// @Param id path string true "Session ID"
// @Param format query string false "json or qr"
// @Param size query int false "PNG edge length in pixels"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/token [post]
func (h *SessionHandler) IssueToken(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	issued, err := h.tokens.IssueToken(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	if c.Query("format") != "qr" {
		response.Created(c, issued)
		return
	}

	size, _ := strconv.Atoi(c.Query("size"))
	if size > 1024 {
		size = 1024
	}
	png, err := qr.PNG(qr.Payload{Token: issued.Secret, SessionID: issued.SessionID, ExpiresAt: issued.ExpiresAt}, size)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "unable to render QR code"))
		return
	}
	response.Image(c, http.StatusCreated, "image/png", png, map[string]string{
		"X-Token-Expires-At": issued.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
