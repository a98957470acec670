package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/botecohq/boteco/internal/database/testutil"
	"github.com/botecohq/boteco/internal/models"
)

func TestAuditService_LogAndList(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	service, err := NewAuditService(db)
	require.NoError(t, err)

	ctx := context.Background()
	restaurantID := "rest-1"

	require.NoError(t, service.Log(ctx, AuditEntry{
		RestaurantID: &restaurantID,
		Action:       "iam.role.create",
		Resource:     "role-1",
		Result:       "success",
		Metadata:     map[string]any{"key": "host"},
	}))
	require.NoError(t, service.Log(ctx, AuditEntry{
		Action: "auth.login",
		Result: "failure",
	}))

	require.Error(t, service.Log(ctx, AuditEntry{Result: "success"}), "action is required")

	logs, total, err := service.List(ctx, AuditListOptions{Filters: AuditFilters{RestaurantID: restaurantID}})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "iam.role.create", logs[0].Action)
	require.JSONEq(t, `{"key":"host"}`, logs[0].Metadata)

	logs, total, err = service.List(ctx, AuditListOptions{Filters: AuditFilters{Result: "failure"}})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "auth.login", logs[0].Action)
}

func TestAuditService_CleanupOlderThan(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	service, err := NewAuditService(db)
	require.NoError(t, err)

	ctx := context.Background()

	old := models.AuditLog{Action: "iam.role.create", Result: "success"}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, db.Model(&models.AuditLog{}).Where("id = ?", old.ID).
		UpdateColumn("created_at", time.Now().AddDate(0, 0, -120)).Error)

	recent := models.AuditLog{Action: "iam.role.update", Result: "success"}
	require.NoError(t, db.Create(&recent).Error)

	removed, err := service.CleanupOlderThan(ctx, 90)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	_, err = service.CleanupOlderThan(ctx, 0)
	require.Error(t, err)
}
