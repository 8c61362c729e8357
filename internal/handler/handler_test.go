package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendify-api/internal/middleware"
	"github.com/noah-isme/attendify-api/internal/models"
	"github.com/noah-isme/attendify-api/internal/service"
	appErrors "github.com/noah-isme/attendify-api/pkg/errors"
)

const (
	testSessionID = "44444444-4444-4444-8444-111111111111"
	testStudentID = "22222222-2222-4222-8222-111111111111"
)

type sessionServiceMock struct {
	scheduleReq   service.ScheduleSessionRequest
	rescheduleID  string
	listReq       service.ListSessionsRequest
	view          *models.SessionView
	err           error
	issued        *models.IssuedToken
	issueErr      error
	lastPrincipal models.Principal
}

func (m *sessionServiceMock) Schedule(ctx context.Context, principal models.Principal, req service.ScheduleSessionRequest) (*models.SessionView, error) {
	m.lastPrincipal = principal
	m.scheduleReq = req
	return m.view, m.err
}

func (m *sessionServiceMock) Reschedule(ctx context.Context, principal models.Principal, sessionID string, input service.SessionScheduleInput) (*models.SessionView, error) {
	m.rescheduleID = sessionID
	return m.view, m.err
}

func (m *sessionServiceMock) Get(ctx context.Context, principal models.Principal, sessionID string) (*models.SessionView, error) {
	return m.view, m.err
}

func (m *sessionServiceMock) ListForOwner(ctx context.Context, principal models.Principal, req service.ListSessionsRequest) ([]models.SessionView, *models.Pagination, error) {
	m.listReq = req
	if m.err != nil {
		return nil, nil, m.err
	}
	return []models.SessionView{*m.view}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (m *sessionServiceMock) IssueToken(ctx context.Context, principal models.Principal, sessionID string) (*models.IssuedToken, error) {
	m.lastPrincipal = principal
	return m.issued, m.issueErr
}

type attendanceServiceMock struct {
	redeemReq service.RedeemTokenRequest
	markReq   service.MarkManuallyRequest
	result    *models.Redemption
	record    *models.AttendanceRecord
	err       error
}

func (m *attendanceServiceMock) RedeemToken(ctx context.Context, principal models.Principal, req service.RedeemTokenRequest) (*models.Redemption, error) {
	m.redeemReq = req
	return m.result, m.err
}

func (m *attendanceServiceMock) MarkManually(ctx context.Context, principal models.Principal, req service.MarkManuallyRequest) (*models.AttendanceRecord, error) {
	m.markReq = req
	return m.record, m.err
}

func (m *attendanceServiceMock) ListSessionAttendance(ctx context.Context, principal models.Principal, sessionID string) ([]models.AttendanceRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []models.AttendanceRecord{*m.record}, nil
}

func (m *attendanceServiceMock) ListStudentAttendance(ctx context.Context, principal models.Principal, studentID string) ([]models.StudentAttendanceRow, error) {
	return nil, m.err
}

func (m *attendanceServiceMock) SessionSummary(ctx context.Context, principal models.Principal, sessionID string) (*models.SessionAttendanceSummary, error) {
	return &models.SessionAttendanceSummary{SessionID: sessionID, Enrolled: 3}, m.err
}

type summaryServiceMock struct {
	cached bool
	err    error
}

func (m *summaryServiceMock) GetSummary(ctx context.Context, principal models.Principal, studentID, offeringID string) (*models.AttendanceSummary, bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	return &models.AttendanceSummary{StudentID: studentID, OfferingID: offeringID, Percentage: 66.67}, m.cached, nil
}

func newContext(method, target string, body []byte, principal *models.Principal) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if principal != nil {
		c.Set(middleware.ContextPrincipalKey, *principal)
	}
	return c, w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestSessionHandlerRequiresPrincipal(t *testing.T) {
	h := NewSessionHandler(&sessionServiceMock{}, &sessionServiceMock{})
	c, w := newContext(http.MethodGet, "/sessions", nil, nil)
	h.List(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionHandlerCreate(t *testing.T) {
	lecturer := models.LecturerPrincipal("l-1")
	mock := &sessionServiceMock{view: &models.SessionView{Status: models.SessionStatusUpcoming}}
	h := NewSessionHandler(mock, mock)

	payload := []byte(`{"offering_id":"o-1","date":"2026-03-02","start_time":"09:00","end_time":"10:00","venue":"LT1"}`)
	c, w := newContext(http.MethodPost, "/sessions", payload, &lecturer)
	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "o-1", mock.scheduleReq.OfferingID)
	assert.Equal(t, "09:00", mock.scheduleReq.StartTime)
	assert.Equal(t, lecturer, mock.lastPrincipal)

	c, w = newContext(http.MethodPost, "/sessions", []byte(`{"offering_id":`), &lecturer)
	h.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionHandlerListAndUpdate(t *testing.T) {
	lecturer := models.LecturerPrincipal("l-1")
	mock := &sessionServiceMock{view: &models.SessionView{Status: models.SessionStatusOngoing}}
	h := NewSessionHandler(mock, mock)

	c, w := newContext(http.MethodGet, "/sessions?date=2026-03-02&page=2", nil, &lecturer)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2026-03-02", mock.listReq.Date)
	assert.Equal(t, 2, mock.listReq.Page)
	assert.Contains(t, w.Body.String(), `"pagination"`)

	mock.err = appErrors.ErrSessionLocked
	c, w = newContext(http.MethodPut, "/sessions/"+testSessionID, []byte(`{"date":"2026-03-03"}`), &lecturer)
	c.Params = gin.Params{{Key: "id", Value: testSessionID}}
	h.Update(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, testSessionID, mock.rescheduleID)
	assert.Equal(t, appErrors.ErrSessionLocked.Code, decodeError(t, w))
}

func TestSessionHandlerIssueTokenJSONAndQR(t *testing.T) {
	lecturer := models.LecturerPrincipal("l-1")
	expires := time.Date(2026, 3, 2, 9, 35, 0, 0, time.UTC)
	mock := &sessionServiceMock{issued: &models.IssuedToken{TokenID: "t-1", SessionID: testSessionID, Secret: "s3cret", ExpiresAt: expires}}
	h := NewSessionHandler(mock, mock)

	c, w := newContext(http.MethodPost, "/sessions/"+testSessionID+"/token", nil, &lecturer)
	c.Params = gin.Params{{Key: "id", Value: testSessionID}}
	h.IssueToken(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"token":"s3cret"`)

	c, w = newContext(http.MethodPost, "/sessions/"+testSessionID+"/token?format=qr&size=256", nil, &lecturer)
	c.Params = gin.Params{{Key: "id", Value: testSessionID}}
	h.IssueToken(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "2026-03-02T09:35:00Z", w.Header().Get("X-Token-Expires-At"))
	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())

	mock.issueErr = appErrors.ErrSessionNotOngoing
	c, w = newContext(http.MethodPost, "/sessions/"+testSessionID+"/token?format=qr", nil, &lecturer)
	h.IssueToken(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, appErrors.ErrSessionNotOngoing.Code, decodeError(t, w))
}

func TestAttendanceHandlerRedeem(t *testing.T) {
	student := models.StudentPrincipal(testStudentID)
	mock := &attendanceServiceMock{result: &models.Redemption{AttendanceID: "a-1", LocationValid: true}}
	h := NewAttendanceHandler(mock)

	payload := []byte(`{"token":"abc","session_id":"` + testSessionID + `","latitude":-1.29,"longitude":36.82}`)
	c, w := newContext(http.MethodPost, "/attendance/redeem", payload, &student)
	h.Redeem(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "abc", mock.redeemReq.Token)
	require.NotNil(t, mock.redeemReq.Latitude)
	assert.Equal(t, -1.29, *mock.redeemReq.Latitude)
	assert.Contains(t, w.Body.String(), `"location_valid":true`)

	errorCases := []struct {
		err    *appErrors.Error
		status int
	}{
		{appErrors.ErrTokenExpired, http.StatusGone},
		{appErrors.ErrTokenNotFound, http.StatusNotFound},
		{appErrors.ErrNotEnrolled, http.StatusForbidden},
		{appErrors.ErrAlreadyMarked, http.StatusConflict},
		{appErrors.ErrInvalidLocation, http.StatusBadRequest},
		{appErrors.Storage(assert.AnError), http.StatusServiceUnavailable},
	}
	for _, tc := range errorCases {
		mock.err = tc.err
		c, w := newContext(http.MethodPost, "/attendance/redeem", payload, &student)
		h.Redeem(c)
		assert.Equal(t, tc.status, w.Code, tc.err.Code)
		assert.Equal(t, tc.err.Code, decodeError(t, w))
		assert.NotContains(t, w.Body.String(), assert.AnError.Error())
	}
}

func TestAttendanceHandlerMarkUsesPathIDs(t *testing.T) {
	lecturer := models.LecturerPrincipal("l-1")
	mock := &attendanceServiceMock{record: &models.AttendanceRecord{ID: "a-1", Status: models.AttendanceStatusAbsent}}
	h := NewAttendanceHandler(mock)

	payload := []byte(`{"status":"ABSENT","note":"sick","session_id":"ignored","student_id":"ignored"}`)
	c, w := newContext(http.MethodPut, "/sessions/"+testSessionID+"/attendance/"+testStudentID, payload, &lecturer)
	c.Params = gin.Params{{Key: "id", Value: testSessionID}, {Key: "studentId", Value: testStudentID}}
	h.Mark(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testSessionID, mock.markReq.SessionID)
	assert.Equal(t, testStudentID, mock.markReq.StudentID)
	assert.Equal(t, "ABSENT", mock.markReq.Status)
}

func TestAttendanceHandlerListings(t *testing.T) {
	lecturer := models.LecturerPrincipal("l-1")
	mock := &attendanceServiceMock{record: &models.AttendanceRecord{ID: "a-1"}}
	h := NewAttendanceHandler(mock)

	c, w := newContext(http.MethodGet, "/sessions/"+testSessionID+"/attendance", nil, &lecturer)
	c.Params = gin.Params{{Key: "id", Value: testSessionID}}
	h.ListBySession(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newContext(http.MethodGet, "/sessions/"+testSessionID+"/summary", nil, &lecturer)
	c.Params = gin.Params{{Key: "id", Value: testSessionID}}
	h.SessionSummary(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"enrolled":3`)

	mock.err = appErrors.ErrForbidden
	c, w = newContext(http.MethodGet, "/students/"+testStudentID+"/attendance", nil, &lecturer)
	c.Params = gin.Params{{Key: "id", Value: testStudentID}}
	h.ListByStudent(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSummaryHandlerReportsCacheHit(t *testing.T) {
	student := models.StudentPrincipal(testStudentID)
	h := NewSummaryHandler(&summaryServiceMock{cached: true})

	c, w := newContext(http.MethodGet, "/students/"+testStudentID+"/offerings/o-1/summary", nil, &student)
	c.Params = gin.Params{{Key: "id", Value: testStudentID}, {Key: "offeringId", Value: "o-1"}}
	h.Get(c)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Percentage float64 `json:"attendance_percentage"`
		} `json:"data"`
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 66.67, body.Data.Percentage)
	assert.Equal(t, true, body.Meta["cache_hit"])

	h = NewSummaryHandler(&summaryServiceMock{err: appErrors.ErrForbidden})
	c, w = newContext(http.MethodGet, "/students/x/offerings/o-1/summary", nil, &student)
	h.Get(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

type pingerStub struct{ err error }

func (p pingerStub) PingContext(ctx context.Context) error { return p.err }

func TestMetricsHandlerHealthAndReady(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), pingerStub{})
	c, w := newContext(http.MethodGet, "/ready", nil, nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	h = NewMetricsHandler(nil, pingerStub{err: assert.AnError})
	c, w = newContext(http.MethodGet, "/ready", nil, nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	c, w = newContext(http.MethodGet, "/metrics", nil, nil)
	h.Prometheus(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	c, w = newContext(http.MethodGet, "/health", nil, nil)
	h.Health(c)
	assert.Equal(t, http.StatusOK, w.Code)
}
