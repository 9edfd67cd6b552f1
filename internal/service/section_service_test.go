package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/classhub-api/internal/models"
	appErrors "github.com/noah-isme/classhub-api/pkg/errors"
)

func TestClassSectionCreateAndAssignTeacher(t *testing.T) {
	store := newMemStore()
	admin := store.addUser("a-1", models.RoleAdmin)
	teacher := store.addUser("t-1", models.RoleTeacher)
	student := store.addUser("s-1", models.RoleStudent)
	svc := NewClassSectionService(memSections{store}, memUsers{store}, memUsers{store}, nil, zap.NewNop())
	ctx := context.Background()

	req := CreateSectionRequest{CourseID: "CSE101", DepartmentCode: "CSE", Session: "2022", SectionLabel: "B"}
	section, err := svc.Create(ctx, admin, req)
	require.NoError(t, err)
	assert.Nil(t, section.TeacherID)

	_, err = svc.Create(ctx, admin, req)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(ctx, teacher, req)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	updated, err := svc.AssignTeacher(ctx, admin, section.ID, AssignTeacherRequest{TeacherID: teacher.ID})
	require.NoError(t, err)
	assert.True(t, updated.IsTeacher(teacher.ID))
	require.Len(t, store.audits, 1)
	assert.Equal(t, models.AuditActionTeacherAssign, store.audits[0].Action)

	_, err = svc.AssignTeacher(ctx, admin, section.ID, AssignTeacherRequest{TeacherID: student.ID})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.AssignTeacher(ctx, admin, "missing", AssignTeacherRequest{TeacherID: teacher.ID})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	items, page, err := svc.List(ctx, models.ClassSectionFilter{DepartmentCode: "CSE"})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, 20, page.PageSize)
}
