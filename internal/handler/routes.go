package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/attendify-api/internal/middleware"
	"github.com/noah-isme/attendify-api/internal/models"
)

// Routes bundles the handlers and guards mounted under the API prefix.
type Routes struct {
	Auth       middleware.TokenVerifier
	Limiter    middleware.Limiter
	Sessions   *SessionHandler
	Attendance *AttendanceHandler
	Summaries  *SummaryHandler
	Logger     *zap.Logger
}

// Register mounts the attendance API on group. Role gates reject callers
// early; ownership and enrolment are checked by the services.
func (rt Routes) Register(group *gin.RouterGroup) {
	lecturer := middleware.RequireRoles(models.RoleLecturer)
	student := middleware.RequireRoles(models.RoleStudent)
	staff := middleware.RequireRoles(models.RoleLecturer, models.RoleAdmin)

	api := group.Group("")
	api.Use(middleware.JWT(rt.Auth))
	api.Use(middleware.WithResponseMeta())

	sessions := api.Group("/sessions")
	sessions.POST("", lecturer, rt.Sessions.Create)
	sessions.GET("", lecturer, rt.Sessions.List)
	sessions.GET("/:id", rt.Sessions.Get)
	sessions.PUT("/:id", lecturer, rt.Sessions.Update)
	sessions.POST("/:id/token", lecturer, rt.Sessions.IssueToken)
	sessions.PUT("/:id/attendance/:studentId", lecturer, rt.Attendance.Mark)
	sessions.GET("/:id/attendance", staff, rt.Attendance.ListBySession)
	sessions.GET("/:id/summary", staff, rt.Attendance.SessionSummary)

	api.POST("/attendance/redeem", student, middleware.RateLimit(rt.Limiter, rt.Logger), rt.Attendance.Redeem)

	students := api.Group("/students/:id")
	students.Use(middleware.RBAC(string(models.RoleLecturer), string(models.RoleAdmin), "SELF"))
	students.GET("/attendance", rt.Attendance.ListByStudent)
	students.GET("/offerings/:offeringId/summary", rt.Summaries.Get)
}
