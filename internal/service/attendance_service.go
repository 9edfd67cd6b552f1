package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/classhub-api/internal/authz"
	"github.com/noah-isme/classhub-api/internal/models"
	"github.com/noah-isme/classhub-api/internal/repository"
	"github.com/noah-isme/classhub-api/pkg/config"
	appErrors "github.com/noah-isme/classhub-api/pkg/errors"
	"github.com/noah-isme/classhub-api/pkg/export"
)

const dateLayout = "2006-01-02"

type attendanceRepository interface {
	UpsertBatch(ctx context.Context, classSectionID string, date time.Time, markedBy string, marks []repository.AttendanceMark) ([]models.AttendanceRecord, error)
	CountByStudent(ctx context.Context, studentID string, classSectionID *string) (models.AttendanceCounts, error)
	SectionSheet(ctx context.Context, classSectionID string, date time.Time) ([]models.AttendanceSheetRow, error)
	SectionSummary(ctx context.Context, filter models.AttendanceSummaryFilter) (*models.AttendanceSummary, error)
}

type approvedEnrollmentChecker interface {
	ApprovedStudentIDs(ctx context.Context, classSectionID string, studentIDs []string) ([]string, error)
	TaughtBy(ctx context.Context, teacherID, studentID string, classSectionID *string) (bool, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
	Generation(ctx context.Context, key string) (int64, error)
	Bump(ctx context.Context, key string) (int64, error)
}

// AttendancePolicy holds the tunable attendance rules.
type AttendancePolicy struct {
	// LateWeight is the fraction of a present mark a late mark earns.
	LateWeight float64
	// EditWindow rejects marks for dates older than the window. Zero disables it.
	EditWindow time.Duration
	// Location decides which calendar day "today" is.
	Location *time.Location
	// StatsTTL bounds how long computed stats stay cached.
	StatsTTL time.Duration
}

// PolicyFromConfig maps configuration onto a policy.
func PolicyFromConfig(cfg config.AttendanceConfig, cache config.CacheConfig) (AttendancePolicy, error) {
	loc := time.UTC
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return AttendancePolicy{}, fmt.Errorf("load attendance timezone %q: %w", tz, err)
		}
		loc = l
	}
	return AttendancePolicy{
		LateWeight: cfg.LateWeight,
		EditWindow: cfg.EditWindow,
		Location:   loc,
		StatsTTL:   cache.StatsTTL,
	}, nil
}

// MarkAttendanceRequest is one teacher submission for a section and date.
type MarkAttendanceRequest struct {
	Date    string                             `json:"date" validate:"required,datetime=2006-01-02"`
	Entries map[string]models.AttendanceStatus `json:"entries" validate:"dive,keys,required,endkeys,attendance_status"`
}

// AttendanceService records attendance and aggregates it into statistics.
type AttendanceService struct {
	repo        attendanceRepository
	sections    sectionReader
	enrollments approvedEnrollmentChecker
	cache       statsCache
	metrics     *MetricsService
	policy      AttendancePolicy
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewAttendanceService constructs the service. cache may be nil.
func NewAttendanceService(
	repo attendanceRepository,
	sections sectionReader,
	enrollments approvedEnrollmentChecker,
	cache statsCache,
	metrics *MetricsService,
	policy AttendancePolicy,
	validate *validator.Validate,
	logger *zap.Logger,
) *AttendanceService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	if policy.LateWeight < 0 || policy.LateWeight > 1 {
		policy.LateWeight = config.DefaultLateWeight
	}
	return &AttendanceService{
		repo:        repo,
		sections:    sections,
		enrollments: enrollments,
		cache:       cache,
		metrics:     metrics,
		policy:      policy,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// Mark upserts one status per student for the section and date. Only the
// assigned teacher may mark; every student must be approved in the section.
func (s *AttendanceService) Mark(ctx context.Context, actor models.Identity, classSectionID string, req MarkAttendanceRequest) ([]models.AttendanceRecord, error) {
	section, err := loadSection(ctx, s.sections, classSectionID)
	if err != nil {
		return nil, err
	}
	if !authz.CanMarkAttendance(actor, *section) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigned teacher may mark attendance")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid attendance payload")
	}
	date, err := s.sessionDate(req.Date)
	if err != nil {
		return nil, err
	}

	studentIDs := make([]string, 0, len(req.Entries))
	marks := make([]repository.AttendanceMark, 0, len(req.Entries))
	for studentID, status := range req.Entries {
		studentIDs = append(studentIDs, studentID)
		marks = append(marks, repository.AttendanceMark{StudentID: studentID, Status: status})
	}
	if len(marks) == 0 {
		return []models.AttendanceRecord{}, nil
	}

	approved, err := s.enrollments.ApprovedStudentIDs(ctx, classSectionID, studentIDs)
	if errors.Is(err, repository.ErrInvalidID) {
		return nil, unenrolledError(malformedIDs(studentIDs))
	}
	if err != nil {
		return nil, appErrors.Storage(err, "failed to verify enrollments")
	}
	if missing := difference(studentIDs, approved); len(missing) > 0 {
		return nil, unenrolledError(missing)
	}

	records, err := s.repo.UpsertBatch(ctx, classSectionID, date, actor.ID, marks)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to mark attendance")
	}

	for _, studentID := range studentIDs {
		s.invalidateStats(ctx, studentID)
	}
	s.metrics.RecordAttendanceMarks(records)
	s.logger.Info("attendance marked",
		zap.String("section_id", classSectionID),
		zap.String("date", date.Format(dateLayout)),
		zap.Int("entries", len(records)),
		zap.String("teacher_id", actor.ID))
	return records, nil
}

// sessionDate parses a civil date and rejects future or frozen dates.
func (s *AttendanceService) sessionDate(raw string) (time.Time, error) {
	parsed, err := time.ParseInLocation(dateLayout, raw, s.policy.Location)
	if err != nil {
		return time.Time{}, validationError(err, "date must be formatted as YYYY-MM-DD")
	}
	today := startOfDay(s.now().In(s.policy.Location))
	if parsed.After(today) {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "attendance cannot be marked for a future date")
	}
	if s.policy.EditWindow > 0 && today.Sub(parsed) > s.policy.EditWindow {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "attendance for this date is no longer editable")
	}
	return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), nil
}

// ComputeStats aggregates a student's attendance, optionally within one section.
func (s *AttendanceService) ComputeStats(ctx context.Context, studentID string, classSectionID *string) (*models.AttendanceStats, error) {
	key, cacheable := s.statsKey(ctx, studentID, classSectionID)
	if cacheable {
		var cached models.AttendanceStats
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	counts, err := s.repo.CountByStudent(ctx, studentID, classSectionID)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to compute attendance stats")
	}
	stats := &models.AttendanceStats{
		StudentID:      studentID,
		ClassSectionID: classSectionID,
		Present:        counts.Present,
		Absent:         counts.Absent,
		Late:           counts.Late,
		Total:          counts.Total(),
		Percentage:     AttendancePercentage(counts, s.policy.LateWeight),
	}

	if cacheable {
		_ = s.cache.Set(ctx, key, stats, s.policy.StatsTTL)
	}
	return stats, nil
}

// StatsFor is ComputeStats behind the viewer check. A teacher must teach
// the student in an approved section, or in classSectionID when given.
func (s *AttendanceService) StatsFor(ctx context.Context, viewer models.Identity, studentID string, classSectionID *string) (*models.AttendanceStats, error) {
	teaches := false
	if viewer.Is(models.RoleTeacher) {
		taught, err := s.enrollments.TaughtBy(ctx, viewer.ID, studentID, classSectionID)
		if err != nil {
			return nil, appErrors.Storage(err, "failed to verify teaching assignment")
		}
		teaches = taught
	}
	if !authz.CanViewStats(viewer, studentID, teaches) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "attendance stats are limited to the student, their teachers and admins")
	}
	return s.ComputeStats(ctx, studentID, classSectionID)
}

// Sheet returns the marks recorded for a section on a date.
func (s *AttendanceService) Sheet(ctx context.Context, viewer models.Identity, classSectionID, rawDate string) (*models.ClassSection, time.Time, []models.AttendanceSheetRow, error) {
	section, err := loadSection(ctx, s.sections, classSectionID)
	if err != nil {
		return nil, time.Time{}, nil, err
	}
	if !authz.CanViewAttendanceSheet(viewer, *section) {
		return nil, time.Time{}, nil, appErrors.ErrForbidden
	}
	parsed, err := time.Parse(dateLayout, rawDate)
	if err != nil {
		return nil, time.Time{}, nil, validationError(err, "date must be formatted as YYYY-MM-DD")
	}
	rows, err := s.repo.SectionSheet(ctx, classSectionID, parsed)
	if err != nil {
		return nil, time.Time{}, nil, appErrors.Storage(err, "failed to load attendance sheet")
	}
	return section, parsed, rows, nil
}

// Summary rolls up a section's attendance between two optional dates.
func (s *AttendanceService) Summary(ctx context.Context, viewer models.Identity, classSectionID, rawFrom, rawTo string) (*models.AttendanceSummary, error) {
	section, err := loadSection(ctx, s.sections, classSectionID)
	if err != nil {
		return nil, err
	}
	if !authz.CanViewAttendanceSheet(viewer, *section) {
		return nil, appErrors.ErrForbidden
	}
	filter := models.AttendanceSummaryFilter{ClassSectionID: section.ID}
	if filter.From, err = optionalDate(rawFrom); err != nil {
		return nil, err
	}
	if filter.To, err = optionalDate(rawTo); err != nil {
		return nil, err
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
	}

	summary, err := s.repo.SectionSummary(ctx, filter)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to summarise attendance")
	}
	for i := range summary.Students {
		row := &summary.Students[i]
		row.Total = row.AttendanceCounts.Total()
		row.Percentage = AttendancePercentage(row.AttendanceCounts, s.policy.LateWeight)
	}
	return summary, nil
}

// Export renders the sheet in the requested format.
func (s *AttendanceService) Export(ctx context.Context, viewer models.Identity, classSectionID, rawDate string, format export.Format) ([]byte, string, error) {
	section, date, rows, err := s.Sheet(ctx, viewer, classSectionID, rawDate)
	if err != nil {
		return nil, "", err
	}
	dataset := export.Dataset{
		Title:   fmt.Sprintf("Attendance %s-%s", section.CourseID, section.SectionLabel),
		Notes:   []string{"Department: " + section.DepartmentCode, "Session: " + section.Session, "Date: " + date.Format(dateLayout)},
		Headers: []string{"Student ID", "Student", "Status"},
		Rows:    make([]map[string]string, 0, len(rows)),
	}
	for _, row := range rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student ID": row.StudentID,
			"Student":    row.StudentName,
			"Status":     string(row.Status),
		})
	}
	out, err := export.Render(format, dataset)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to render export")
	}
	filename := fmt.Sprintf("attendance-%s-%s-%s.%s", section.CourseID, section.SectionLabel, date.Format(dateLayout), format)
	return out, filename, nil
}

// statsKey versions the stats key by the student's mark generation. A
// computation that overlaps a Mark can only write under a retired key.
// Without a readable generation the stats bypass the cache.
func (s *AttendanceService) statsKey(ctx context.Context, studentID string, classSectionID *string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	gen, err := s.cache.Generation(ctx, statsGenerationKey(studentID))
	if err != nil {
		return "", false
	}
	return statsCacheKey(studentID, gen, classSectionID), true
}

func (s *AttendanceService) invalidateStats(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Bump(ctx, statsGenerationKey(studentID)); err != nil {
		s.logger.Warn("stats generation bump failed", zap.String("student_id", studentID), zap.Error(err))
	}
	_ = s.cache.Invalidate(ctx, fmt.Sprintf("attendance:stats:%s:*", studentID))
}

// AttendancePercentage applies the weighting rule:
// round((present + lateWeight*late) / total * 100), or 0 with no marks.
// The product is formed before dividing so exact inputs stay exact.
func AttendancePercentage(counts models.AttendanceCounts, lateWeight float64) int {
	total := counts.Total()
	if total <= 0 {
		return 0
	}
	weighted := float64(counts.Present) + lateWeight*float64(counts.Late)
	return int(math.Round(weighted * 100 / float64(total)))
}

func optionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, validationError(err, "date must be formatted as YYYY-MM-DD")
	}
	return &parsed, nil
}

func statsCacheKey(studentID string, generation int64, classSectionID *string) string {
	scope := "all"
	if classSectionID != nil {
		scope = *classSectionID
	}
	return fmt.Sprintf("attendance:stats:%s:g%d:%s", studentID, generation, scope)
}

func statsGenerationKey(studentID string) string {
	return "attendance:stats-gen:" + studentID
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func unenrolledError(ids []string) error {
	return appErrors.Clone(appErrors.ErrValidation,
		fmt.Sprintf("students without approved enrollment in section: %s", strings.Join(ids, ", ")))
}

// malformedIDs returns the sorted ids that are not uuids, or every id when
// all of them parse.
func malformedIDs(ids []string) []string {
	var bad []string
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			bad = append(bad, id)
		}
	}
	if len(bad) == 0 {
		bad = append(bad, ids...)
	}
	sort.Strings(bad)
	return bad
}

// difference returns the sorted members of want absent from have.
func difference(want, have []string) []string {
	present := make(map[string]struct{}, len(have))
	for _, id := range have {
		present[id] = struct{}{}
	}
	var missing []string
	for _, id := range want {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}
