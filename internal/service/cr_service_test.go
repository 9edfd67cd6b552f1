package service

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/classhub-api/internal/models"
	appErrors "github.com/noah-isme/classhub-api/pkg/errors"
)

func newCRFixture(t *testing.T) (*memStore, *CRService, *MetricsService, models.Identity) {
	t.Helper()
	store := newMemStore()
	admin := store.addUser("a-1", models.RoleAdmin)
	store.addUser("s-1", models.RoleStudent)
	store.addUser("s-2", models.RoleStudent)
	store.addUser("s-3", models.RoleStudent)
	store.addSection("sec-1", nil)
	store.approve("s-1", "sec-1")
	store.approve("s-2", "sec-1")
	metrics := NewMetricsService()
	return store, NewCRService(memSections{store}, memUsers{store}, metrics, zap.NewNop()), metrics, admin
}

func countCRs(store *memStore, sectionID string) int {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.sections[sectionID].CRStudentID == nil {
		return 0
	}
	return 1
}

func TestCRPromoteSwapRoundTrip(t *testing.T) {
	store, svc, metrics, admin := newCRFixture(t)
	ctx := context.Background()

	section, err := svc.Promote(ctx, admin, "sec-1", "s-1")
	require.NoError(t, err)
	assert.True(t, section.IsCR("s-1"))

	section, err = svc.Promote(ctx, admin, "sec-1", "s-2")
	require.NoError(t, err)
	assert.True(t, section.IsCR("s-2"))
	assert.False(t, section.IsCR("s-1"))
	assert.Equal(t, 1, countCRs(store, "sec-1"))

	require.Len(t, store.audits, 2)
	assert.Equal(t, models.AuditActionCRPromote, store.audits[1].Action)
	assert.JSONEq(t, `{"cr_student_id":"s-1"}`, string(store.audits[1].OldValues))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.crChanges.WithLabelValues("promote")))
}

func TestCRPromoteRequiresApprovedEnrollment(t *testing.T) {
	store, svc, _, admin := newCRFixture(t)

	_, err := svc.Promote(context.Background(), admin, "sec-1", "s-3")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Equal(t, 0, countCRs(store, "sec-1"))

	_, err = svc.Promote(context.Background(), admin, "missing", "s-1")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestCRManagementIsAdminOnly(t *testing.T) {
	store, svc, _, _ := newCRFixture(t)
	student := store.users["s-1"].Identity()

	_, err := svc.Promote(context.Background(), student, "sec-1", "s-1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = svc.Demote(context.Background(), student, "sec-1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestCRDemote(t *testing.T) {
	store, svc, _, admin := newCRFixture(t)
	ctx := context.Background()

	section, err := svc.Demote(ctx, admin, "sec-1")
	require.NoError(t, err)
	assert.Nil(t, section.CRStudentID)
	assert.Empty(t, store.audits)

	_, err = svc.Promote(ctx, admin, "sec-1", "s-1")
	require.NoError(t, err)
	section, err = svc.Demote(ctx, admin, "sec-1")
	require.NoError(t, err)
	assert.Nil(t, section.CRStudentID)
	assert.Equal(t, 0, countCRs(store, "sec-1"))
	assert.Equal(t, models.AuditActionCRDemote, store.audits[len(store.audits)-1].Action)
}
