package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/classhub-api/internal/models"
	"github.com/noah-isme/classhub-api/internal/repository"
)

// memStore mimics the storage constraints the services rely on: one open
// enrollment per pair, one attendance row per (section, student, date) and a
// locked CR swap.
type memStore struct {
	mu          sync.Mutex
	users       map[string]*models.User
	sections    map[string]*models.ClassSection
	enrollments map[string]*models.EnrollmentRequest
	attendance  map[string]*models.AttendanceRecord
	notices     []models.Notice
	audits      []*models.AuditLog
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[string]*models.User{},
		sections:    map[string]*models.ClassSection{},
		enrollments: map[string]*models.EnrollmentRequest{},
		attendance:  map[string]*models.AttendanceRecord{},
	}
}

func strPtr(v string) *string { return &v }

func (m *memStore) addUser(id string, role models.Role) models.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &models.User{ID: id, Email: id + "@uni.edu", DisplayName: "User " + id, Role: role, Active: true}
	return m.users[id].Identity()
}

func (m *memStore) addSection(id string, teacherID *string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sections[id] = &models.ClassSection{ID: id, CourseID: "CSE101", DepartmentCode: "CSE", Session: "2022", SectionLabel: "A", TeacherID: teacherID}
}

func (m *memStore) approve(studentID, sectionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.enrollments[id] = &models.EnrollmentRequest{ID: id, StudentID: studentID, ClassSectionID: sectionID, Status: models.EnrollmentStatusApproved, RequestedAt: time.Now()}
}

// users

type memUsers struct{ *memStore }

func (u memUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (u memUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (u memUsers) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.audits = append(u.audits, log)
	return nil
}

// sections

type memSections struct{ *memStore }

func (s memSections) FindByID(ctx context.Context, id string) (*models.ClassSection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	section, ok := s.sections[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *section
	return &clone, nil
}

func (s memSections) FindByIDs(ctx context.Context, ids []string) (map[string]models.ClassSection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]models.ClassSection{}
	for _, id := range ids {
		if section, ok := s.sections[id]; ok {
			out[id] = *section
		}
	}
	return out, nil
}

func (s memSections) List(ctx context.Context, filter models.ClassSectionFilter) ([]models.ClassSection, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ClassSection
	for _, section := range s.sections {
		if filter.DepartmentCode == "" || section.DepartmentCode == filter.DepartmentCode {
			out = append(out, *section)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (s memSections) Create(ctx context.Context, section *models.ClassSection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sections {
		if existing.CourseID == section.CourseID && existing.DepartmentCode == section.DepartmentCode &&
			existing.Session == section.Session && existing.SectionLabel == section.SectionLabel {
			return repository.ErrUniqueViolation
		}
	}
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	clone := *section
	s.sections[section.ID] = &clone
	return nil
}

func (s memSections) AssignTeacher(ctx context.Context, sectionID, teacherID string) (*models.ClassSection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	section, ok := s.sections[sectionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	section.TeacherID = strPtr(teacherID)
	clone := *section
	return &clone, nil
}

func (s memSections) SetCR(ctx context.Context, sectionID, studentID string) (*models.ClassSection, *string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	section, ok := s.sections[sectionID]
	if !ok {
		return nil, nil, sql.ErrNoRows
	}
	if !s.approvedLocked(studentID, sectionID) {
		return nil, nil, repository.ErrStudentNotApproved
	}
	prev := section.CRStudentID
	section.CRStudentID = strPtr(studentID)
	clone := *section
	return &clone, prev, nil
}

func (s memSections) ClearCR(ctx context.Context, sectionID string) (*models.ClassSection, *string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	section, ok := s.sections[sectionID]
	if !ok {
		return nil, nil, sql.ErrNoRows
	}
	prev := section.CRStudentID
	section.CRStudentID = nil
	clone := *section
	return &clone, prev, nil
}

func (m *memStore) approvedLocked(studentID, sectionID string) bool {
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.ClassSectionID == sectionID && e.Status == models.EnrollmentStatusApproved {
			return true
		}
	}
	return false
}

// enrollments

type memEnrollments struct{ *memStore }

func (e memEnrollments) FindByID(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	req, ok := e.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *req
	return &clone, nil
}

func (e memEnrollments) FindOpen(ctx context.Context, studentID, sectionID string) (*models.EnrollmentRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, req := range e.enrollments {
		if req.StudentID == studentID && req.ClassSectionID == sectionID && req.Status != models.EnrollmentStatusRejected {
			clone := *req
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (e memEnrollments) Create(ctx context.Context, request *models.EnrollmentRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, req := range e.enrollments {
		if req.StudentID == request.StudentID && req.ClassSectionID == request.ClassSectionID && req.Status != models.EnrollmentStatusRejected {
			return repository.ErrUniqueViolation
		}
	}
	request.ID = uuid.NewString()
	request.Status = models.EnrollmentStatusPending
	clone := *request
	e.enrollments[request.ID] = &clone
	return nil
}

func (e memEnrollments) Decide(ctx context.Context, id string, status models.EnrollmentStatus, actorID string, decidedAt time.Time) (*models.EnrollmentRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	req, ok := e.enrollments[id]
	if !ok || req.Status != models.EnrollmentStatusPending {
		return nil, sql.ErrNoRows
	}
	req.Status = status
	req.DecidedAt = &decidedAt
	req.DecidedBy = strPtr(actorID)
	clone := *req
	return &clone, nil
}

func (e memEnrollments) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentRequest, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []models.EnrollmentRequest
	for _, req := range e.enrollments {
		if filter.StudentID != "" && req.StudentID != filter.StudentID {
			continue
		}
		if filter.ClassSectionID != "" && req.ClassSectionID != filter.ClassSectionID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, *req)
	}
	return out, len(out), nil
}

func (e memEnrollments) ApprovedStudentIDs(ctx context.Context, sectionID string, studentIDs []string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, id := range studentIDs {
		if e.approvedLocked(id, sectionID) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (e memEnrollments) ApprovedSectionIDs(ctx context.Context, studentID string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, req := range e.enrollments {
		if req.StudentID == studentID && req.Status == models.EnrollmentStatusApproved {
			out = append(out, req.ClassSectionID)
		}
	}
	return out, nil
}

// attendance

type memAttendance struct{ *memStore }

func (a memAttendance) UpsertBatch(ctx context.Context, sectionID string, date time.Time, markedBy string, marks []repository.AttendanceMark) ([]models.AttendanceRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.AttendanceRecord
	for _, mark := range marks {
		key := fmt.Sprintf("%s|%s|%s", sectionID, mark.StudentID, date.Format(dateLayout))
		rec, ok := a.attendance[key]
		if !ok {
			rec = &models.AttendanceRecord{ID: uuid.NewString(), ClassSectionID: sectionID, StudentID: mark.StudentID, Date: date}
			a.attendance[key] = rec
		}
		rec.Status = mark.Status
		rec.MarkedBy = markedBy
		out = append(out, *rec)
	}
	return out, nil
}

func (a memAttendance) CountByStudent(ctx context.Context, studentID string, sectionID *string) (models.AttendanceCounts, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var counts models.AttendanceCounts
	for _, rec := range a.attendance {
		if rec.StudentID != studentID || (sectionID != nil && rec.ClassSectionID != *sectionID) {
			continue
		}
		switch rec.Status {
		case models.AttendanceStatusPresent:
			counts.Present++
		case models.AttendanceStatusAbsent:
			counts.Absent++
		case models.AttendanceStatusLate:
			counts.Late++
		}
	}
	return counts, nil
}

func (a memAttendance) SectionSheet(ctx context.Context, sectionID string, date time.Time) ([]models.AttendanceSheetRow, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var rows []models.AttendanceSheetRow
	for _, rec := range a.attendance {
		if rec.ClassSectionID == sectionID && rec.Date.Format(dateLayout) == date.Format(dateLayout) {
			rows = append(rows, models.AttendanceSheetRow{StudentID: rec.StudentID, StudentName: a.users[rec.StudentID].DisplayName, Status: rec.Status, MarkedBy: rec.MarkedBy})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].StudentName < rows[j].StudentName })
	return rows, nil
}

func (a memAttendance) SectionSummary(ctx context.Context, filter models.AttendanceSummaryFilter) (*models.AttendanceSummary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	summary := &models.AttendanceSummary{ClassSectionID: filter.ClassSectionID, Students: []models.AttendanceSummaryRow{}}
	days := map[string]bool{}
	rows := map[string]*models.AttendanceSummaryRow{}
	for _, rec := range a.attendance {
		if rec.ClassSectionID != filter.ClassSectionID {
			continue
		}
		if (filter.From != nil && rec.Date.Before(*filter.From)) || (filter.To != nil && rec.Date.After(*filter.To)) {
			continue
		}
		days[rec.Date.Format(dateLayout)] = true
		row, ok := rows[rec.StudentID]
		if !ok {
			row = &models.AttendanceSummaryRow{StudentID: rec.StudentID, StudentName: a.users[rec.StudentID].DisplayName}
			rows[rec.StudentID] = row
		}
		switch rec.Status {
		case models.AttendanceStatusPresent:
			row.Present++
			summary.Totals.Present++
		case models.AttendanceStatusAbsent:
			row.Absent++
			summary.Totals.Absent++
		case models.AttendanceStatusLate:
			row.Late++
			summary.Totals.Late++
		}
	}
	summary.SessionDays = len(days)
	for _, row := range rows {
		summary.Students = append(summary.Students, *row)
	}
	sort.Slice(summary.Students, func(i, j int) bool { return summary.Students[i].StudentName < summary.Students[j].StudentName })
	return summary, nil
}

func (a memAttendance) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.attendance)
}

// notices

type memNotices struct{ *memStore }

func (n memNotices) Create(ctx context.Context, notice *models.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	notice.ID = uuid.NewString()
	if notice.CreatedAt.IsZero() {
		notice.CreatedAt = time.Now().Add(time.Duration(len(n.notices)) * time.Second)
	}
	n.notices = append(n.notices, *notice)
	return nil
}

func (n memNotices) ListVisible(ctx context.Context, filter repository.NoticeVisibilityFilter) ([]models.Notice, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	approved := map[string]bool{}
	for _, id := range filter.ApprovedSectionIDs {
		approved[id] = true
	}
	out := []models.Notice{}
	for _, notice := range n.notices {
		scope := notice.Scope()
		if filter.All || scope.IsGlobal() || approved[scope.ClassSectionID] {
			out = append(out, notice)
			continue
		}
		if section, ok := n.sections[scope.ClassSectionID]; ok && (section.IsTeacher(filter.ViewerID) || section.IsCR(filter.ViewerID)) {
			out = append(out, notice)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (e memEnrollments) TaughtBy(ctx context.Context, teacherID, studentID string, sectionID *string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, req := range e.enrollments {
		if req.StudentID != studentID || req.Status != models.EnrollmentStatusApproved {
			continue
		}
		if sectionID != nil && req.ClassSectionID != *sectionID {
			continue
		}
		if section, ok := e.sections[req.ClassSectionID]; ok && section.IsTeacher(teacherID) {
			return true, nil
		}
	}
	return false, nil
}
