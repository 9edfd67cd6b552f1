package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classhub-api/internal/models"
)

var attendanceRowColumns = []string{"id", "class_section_id", "student_id", "date", "status", "marked_by", "created_at", "updated_at"}

func TestAttendanceRepositoryUpsertBatch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	now := time.Now()
	upsert := regexp.QuoteMeta(`ON CONFLICT (class_section_id, student_id, date)
DO UPDATE SET status = EXCLUDED.status, marked_by = EXCLUDED.marked_by, updated_at = EXCLUDED.updated_at`)

	mock.ExpectBegin()
	mock.ExpectQuery(upsert).
		WithArgs(sqlmock.AnyArg(), "sec-1", "stu-a", date, models.AttendanceStatusLate, "t-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(attendanceRowColumns).AddRow("ar-1", "sec-1", "stu-a", date, "LATE", "t-1", now, now))
	mock.ExpectQuery(upsert).
		WithArgs(sqlmock.AnyArg(), "sec-1", "stu-b", date, models.AttendanceStatusPresent, "t-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(attendanceRowColumns).AddRow("ar-2", "sec-1", "stu-b", date, "PRESENT", "t-1", now, now))
	mock.ExpectCommit()

	records, err := repo.UpsertBatch(context.Background(), "sec-1", date, "t-1", []AttendanceMark{
		{StudentID: "stu-b", Status: models.AttendanceStatusPresent},
		{StudentID: "stu-a", Status: models.AttendanceStatusLate},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "stu-a", records[0].StudentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryUpsertBatchRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO attendance_records`)).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err := repo.UpsertBatch(context.Background(), "sec-1", time.Now(), "t-1", []AttendanceMark{{StudentID: "stu-a", Status: models.AttendanceStatusAbsent}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCountByStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	section := "sec-1"
	mock.ExpectQuery(regexp.QuoteMeta(`FROM attendance_records WHERE student_id = $1 AND class_section_id = $2`)).
		WithArgs("stu-1", section).
		WillReturnRows(sqlmock.NewRows([]string{"present", "absent", "late"}).AddRow(3, 1, 1))

	counts, err := repo.CountByStudent(context.Background(), "stu-1", &section)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceCounts{Present: 3, Absent: 1, Late: 1}, counts)
	assert.Equal(t, 5, counts.Total())
	require.NoError(t, mock.ExpectationsWereMet())
}
