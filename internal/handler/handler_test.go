package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classhub-api/internal/middleware"
	"github.com/noah-isme/classhub-api/internal/models"
	"github.com/noah-isme/classhub-api/internal/service"
	appErrors "github.com/noah-isme/classhub-api/pkg/errors"
	"github.com/noah-isme/classhub-api/pkg/export"
)

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Error *appErrors.Error `json:"error"`
}

func newContext(method, path string, body interface{}, identity *models.Identity) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if identity != nil {
		c.Set(middleware.ContextUserKey, identity)
	}
	return c, w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type enrollmentServiceStub struct {
	requestErr error
	decided    service.DecideEnrollmentRequest
	filter     models.EnrollmentFilter
}

func (s *enrollmentServiceStub) Request(ctx context.Context, actor models.Identity, classSectionID string) (*models.EnrollmentRequest, error) {
	if s.requestErr != nil {
		return nil, s.requestErr
	}
	return &models.EnrollmentRequest{ID: "req-1", StudentID: actor.ID, ClassSectionID: classSectionID, Status: models.EnrollmentStatusPending}, nil
}

func (s *enrollmentServiceStub) Decide(ctx context.Context, actor models.Identity, requestID string, req service.DecideEnrollmentRequest) (*models.EnrollmentRequest, error) {
	s.decided = req
	return &models.EnrollmentRequest{ID: requestID, Status: models.EnrollmentStatusApproved}, nil
}

func (s *enrollmentServiceStub) ListForSection(ctx context.Context, actor models.Identity, filter models.EnrollmentFilter) ([]models.EnrollmentRequest, *models.Pagination, error) {
	s.filter = filter
	return []models.EnrollmentRequest{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (s *enrollmentServiceStub) ListMine(ctx context.Context, actor models.Identity, filter models.EnrollmentFilter) ([]models.EnrollmentRequest, *models.Pagination, error) {
	s.filter = filter
	return []models.EnrollmentRequest{}, nil, nil
}

var student = &models.Identity{ID: "stu-1", Role: models.RoleStudent}

func TestEnrollmentHandlerRequestCreated(t *testing.T) {
	h := NewEnrollmentHandler(&enrollmentServiceStub{})
	c, w := newContext(http.MethodPost, "/sections/sec-1/enrollments", nil, student)
	c.Params = gin.Params{{Key: "id", Value: "sec-1"}}

	h.Request(c)

	require.Equal(t, http.StatusCreated, w.Code)
	var got models.EnrollmentRequest
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, "stu-1", got.StudentID)
	assert.Equal(t, models.EnrollmentStatusPending, got.Status)
}

func TestEnrollmentHandlerRequestConflict(t *testing.T) {
	h := NewEnrollmentHandler(&enrollmentServiceStub{requestErr: appErrors.ErrDuplicatePending})
	c, w := newContext(http.MethodPost, "/sections/sec-1/enrollments", nil, student)
	c.Params = gin.Params{{Key: "id", Value: "sec-1"}}

	h.Request(c)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_PENDING", decode(t, w).Error.Code)
}

func TestEnrollmentHandlerRequiresIdentity(t *testing.T) {
	h := NewEnrollmentHandler(&enrollmentServiceStub{})
	c, w := newContext(http.MethodPost, "/sections/sec-1/enrollments", nil, nil)

	h.Request(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEnrollmentHandlerDecideInvalidBody(t *testing.T) {
	h := NewEnrollmentHandler(&enrollmentServiceStub{})
	c, w := newContext(http.MethodPost, "/enrollments/req-1/decision", "nope", student)

	h.Decide(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnrollmentHandlerListForSectionFilters(t *testing.T) {
	stub := &enrollmentServiceStub{}
	h := NewEnrollmentHandler(stub)
	c, w := newContext(http.MethodGet, "/sections/sec-1/enrollments?status=pending&page=2&limit=5", nil, student)
	c.Params = gin.Params{{Key: "id", Value: "sec-1"}}

	h.ListForSection(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sec-1", stub.filter.ClassSectionID)
	assert.Equal(t, models.EnrollmentStatusPending, stub.filter.Status)
	assert.Equal(t, 2, stub.filter.Page)
	assert.Equal(t, 5, stub.filter.PageSize)
}

type attendanceServiceStub struct {
	sectionID *string
	format    export.Format
}

func (s *attendanceServiceStub) Mark(ctx context.Context, actor models.Identity, classSectionID string, req service.MarkAttendanceRequest) ([]models.AttendanceRecord, error) {
	return []models.AttendanceRecord{}, nil
}

func (s *attendanceServiceStub) Sheet(ctx context.Context, viewer models.Identity, classSectionID, rawDate string) (*models.ClassSection, time.Time, []models.AttendanceSheetRow, error) {
	date, _ := time.Parse("2006-01-02", rawDate)
	return &models.ClassSection{ID: classSectionID}, date, nil, nil
}

func (s *attendanceServiceStub) Export(ctx context.Context, viewer models.Identity, classSectionID, rawDate string, format export.Format) ([]byte, string, error) {
	s.format = format
	return []byte("Student ID,Student,Status\n"), "attendance-CSE101-A-" + rawDate + "." + string(format), nil
}

func (s *attendanceServiceStub) Summary(ctx context.Context, viewer models.Identity, classSectionID, rawFrom, rawTo string) (*models.AttendanceSummary, error) {
	return &models.AttendanceSummary{ClassSectionID: classSectionID, Students: []models.AttendanceSummaryRow{}}, nil
}

func (s *attendanceServiceStub) StatsFor(ctx context.Context, viewer models.Identity, studentID string, classSectionID *string) (*models.AttendanceStats, error) {
	s.sectionID = classSectionID
	if viewer.Is(models.RoleStudent) && viewer.ID != studentID {
		return nil, appErrors.ErrForbidden
	}
	return &models.AttendanceStats{StudentID: studentID, ClassSectionID: classSectionID}, nil
}

func TestAttendanceHandlerSheetReturnsEmptyRows(t *testing.T) {
	h := NewAttendanceHandler(&attendanceServiceStub{})
	c, w := newContext(http.MethodGet, "/sections/sec-1/attendance?date=2024-03-01", nil, student)
	c.Params = gin.Params{{Key: "id", Value: "sec-1"}}

	h.Sheet(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"class_section_id":"sec-1","date":"2024-03-01","rows":[]}`, string(decode(t, w).Data))
}

func TestAttendanceHandlerExportSetsAttachment(t *testing.T) {
	stub := &attendanceServiceStub{}
	h := NewAttendanceHandler(stub)
	c, w := newContext(http.MethodGet, "/sections/sec-1/attendance/export?date=2024-03-01", nil, student)
	c.Params = gin.Params{{Key: "id", Value: "sec-1"}}

	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.FormatCSV, stub.format)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Equal(t, `attachment; filename="attendance-CSE101-A-2024-03-01.csv"`, w.Header().Get("Content-Disposition"))
}

func TestAttendanceHandlerExportRejectsUnknownFormat(t *testing.T) {
	h := NewAttendanceHandler(&attendanceServiceStub{})
	c, w := newContext(http.MethodGet, "/sections/sec-1/attendance/export?date=2024-03-01&format=xlsx", nil, student)

	h.Export(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerStats(t *testing.T) {
	stub := &attendanceServiceStub{}
	h := NewAttendanceHandler(stub)

	c, w := newContext(http.MethodGet, "/students/stu-1/attendance/stats?sectionId=sec-1", nil, student)
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}}
	h.Stats(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, stub.sectionID)
	assert.Equal(t, "sec-1", *stub.sectionID)

	c, w = newContext(http.MethodGet, "/students/stu-2/attendance/stats", nil, student)
	c.Params = gin.Params{{Key: "id", Value: "stu-2"}}
	h.Stats(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Nil(t, stub.sectionID)
}

type noticeServiceStub struct {
	posted service.PostNoticeRequest
}

func (s *noticeServiceStub) ListVisible(ctx context.Context, viewer models.Identity) ([]models.Notice, error) {
	return []models.Notice{{ID: "n-1", Title: "Exam moved", ScopeKind: models.NoticeScopeGlobal}}, nil
}

func (s *noticeServiceStub) Post(ctx context.Context, author models.Identity, req service.PostNoticeRequest) (*models.Notice, error) {
	s.posted = req
	return &models.Notice{ID: "n-2", Title: req.Title, AuthorID: author.ID, ScopeKind: req.Scope.Kind}, nil
}

func TestNoticeHandlerPostBindsScope(t *testing.T) {
	stub := &noticeServiceStub{}
	h := NewNoticeHandler(stub)
	body := `{"scope":{"kind":"CLASS_SECTION","class_section_id":"sec-1"},"title":"Lab closed","content":"Room 204"}`
	c, w := newContext(http.MethodPost, "/notices", body, &models.Identity{ID: "t-1", Role: models.RoleTeacher})

	h.Post(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.NoticeScopeClassSection, stub.posted.Scope.Kind)
	assert.Equal(t, "sec-1", stub.posted.Scope.ClassSectionID)
}

func TestAuthHandlerMe(t *testing.T) {
	h := NewAuthHandler(nil)
	c, w := newContext(http.MethodGet, "/me", nil, student)

	h.Me(c)

	require.Equal(t, http.StatusOK, w.Code)
	var got models.Identity
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &got))
	assert.Equal(t, "stu-1", got.ID)
}

func TestReadyReportsDegradedDependency(t *testing.T) {
	h := NewMetricsHandler(nil, map[string]Pinger{
		"postgres": PingerFunc(func(ctx context.Context) error { return nil }),
		"redis":    PingerFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
	})
	c, w := newContext(http.MethodGet, "/ready", nil, nil)

	h.Ready(c)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"postgres":"ok","redis":"connection refused"}}`, w.Body.String())
}
