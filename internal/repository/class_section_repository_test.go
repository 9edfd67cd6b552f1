package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classhub-api/internal/models"
)

var sectionRowColumns = []string{"id", "course_id", "department_code", "session", "section_label", "teacher_id", "cr_student_id", "created_at", "updated_at"}

const sectionLockQuery = `SELECT ` + classSectionColumns + ` FROM class_sections WHERE id = $1 FOR UPDATE`

func TestClassSectionRepositorySetCRSwapsExisting(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassSectionRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(sectionLockQuery)).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows(sectionRowColumns).AddRow("sec-1", "CSE101", "CSE", "2022", "A", "t-1", "stu-1", now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM enrollment_requests WHERE class_section_id = $1 AND student_id = $2 AND status = 'APPROVED')`)).
		WithArgs("sec-1", "stu-2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE class_sections SET cr_student_id = $2`)).
		WithArgs("sec-1", "stu-2", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(sectionRowColumns).AddRow("sec-1", "CSE101", "CSE", "2022", "A", "t-1", "stu-2", now, now))
	mock.ExpectCommit()

	section, prev, err := repo.SetCR(context.Background(), "sec-1", "stu-2")
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "stu-1", *prev)
	assert.True(t, section.IsCR("stu-2"))
	assert.False(t, section.IsCR("stu-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassSectionRepositorySetCRRequiresApproval(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassSectionRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(sectionLockQuery)).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows(sectionRowColumns).AddRow("sec-1", "CSE101", "CSE", "2022", "A", nil, nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(`)).
		WithArgs("sec-1", "stu-9").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, _, err := repo.SetCR(context.Background(), "sec-1", "stu-9")
	assert.ErrorIs(t, err, ErrStudentNotApproved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassSectionRepositorySetCRMissingSection(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassSectionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(sectionLockQuery)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, _, err := repo.SetCR(context.Background(), "missing", "stu-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassSectionRepositoryClearCRWhenUnset(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassSectionRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(sectionLockQuery)).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows(sectionRowColumns).AddRow("sec-1", "CSE101", "CSE", "2022", "A", "t-1", nil, now, now))
	mock.ExpectCommit()

	section, prev, err := repo.ClearCR(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.Nil(t, prev)
	assert.Nil(t, section.CRStudentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassSectionRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassSectionRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + classSectionColumns + ` FROM class_sections WHERE department_code = $1 ORDER BY course_id, section_label LIMIT 20 OFFSET 0`)).
		WithArgs("CSE").
		WillReturnRows(sqlmock.NewRows(sectionRowColumns).AddRow("sec-1", "CSE101", "CSE", "2022", "A", nil, nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM class_sections WHERE department_code = $1`)).
		WithArgs("CSE").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	sections, total, err := repo.List(context.Background(), models.ClassSectionFilter{DepartmentCode: "CSE"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, sections, 1)
}

func TestClassSectionRepositoryMalformedIDsReadAsMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassSectionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + classSectionColumns + ` FROM class_sections WHERE id = $1`)).
		WithArgs("not-a-uuid").
		WillReturnError(&pq.Error{Code: "22P02"})
	_, err := repo.FindByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(sectionLockQuery)).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows(sectionRowColumns).AddRow("sec-1", "CSE101", "CSE", "2022", "A", nil, nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(`)).
		WithArgs("sec-1", "bogus").
		WillReturnError(&pq.Error{Code: "22P02"})
	mock.ExpectRollback()
	_, _, err = repo.SetCR(context.Background(), "sec-1", "bogus")
	assert.ErrorIs(t, err, ErrStudentNotApproved)
	require.NoError(t, mock.ExpectationsWereMet())
}
