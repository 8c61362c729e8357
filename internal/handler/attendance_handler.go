package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendify-api/internal/models"
	"github.com/noah-isme/attendify-api/internal/service"
	"github.com/noah-isme/attendify-api/pkg/response"
)

type attendanceService interface {
	RedeemToken(ctx context.Context, principal models.Principal, req service.RedeemTokenRequest) (*models.Redemption, error)
	MarkManually(ctx context.Context, principal models.Principal, req service.MarkManuallyRequest) (*models.AttendanceRecord, error)
	ListSessionAttendance(ctx context.Context, principal models.Principal, sessionID string) ([]models.AttendanceRecord, error)
	ListStudentAttendance(ctx context.Context, principal models.Principal, studentID string) ([]models.StudentAttendanceRow, error)
	SessionSummary(ctx context.Context, principal models.Principal, sessionID string) (*models.SessionAttendanceSummary, error)
}

// AttendanceHandler exposes scan, manual marking and attendance listing endpoints.
type AttendanceHandler struct {
	attendance attendanceService
}

// NewAttendanceHandler constructs the attendance handler.
func NewAttendanceHandler(attendance attendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// Redeem godoc
// @Summary Redeem a scanned QR token
// @Description Location is optional and never blocks the scan; it only sets location_valid.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.RedeemTokenRequest true "Scan payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /attendance/redeem [post]
func (h *AttendanceHandler) Redeem(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	var req service.RedeemTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidBody(err, "invalid scan payload"))
		return
	}
	result, err := h.attendance.RedeemToken(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Mark godoc
// @Summary Mark a student's attendance manually
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param studentId path string true "Student ID"
// @Param payload body service.MarkManuallyRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /sessions/{id}/attendance/{studentId} [put]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	var req service.MarkManuallyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidBody(err, "invalid attendance payload"))
		return
	}
	req.SessionID = c.Param("id")
	req.StudentID = c.Param("studentId")

	record, err := h.attendance.MarkManually(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// ListBySession godoc
// @Summary List attendance recorded for a session
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/attendance [get]
func (h *AttendanceHandler) ListBySession(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	records, err := h.attendance.ListSessionAttendance(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// SessionSummary godoc
// @Summary Summarise attendance for a session
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/summary [get]
func (h *AttendanceHandler) SessionSummary(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	summary, err := h.attendance.SessionSummary(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// ListByStudent godoc
// @Summary List a student's attendance history
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/attendance [get]
func (h *AttendanceHandler) ListByStudent(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	rows, err := h.attendance.ListStudentAttendance(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}
