package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockDependentsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *DependentsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	return db, mock, NewDependentsRepository(db, zap.NewNop())
}

func TestGetDependent_Success(t *testing.T) {
	db, mock, repo := setupMockDependentsDB(t)
	defer db.Close()

	dependentID := uuid.New().String()
	caregiverID := uuid.New().String()
	rows := sqlmock.NewRows([]string{"dependent_id", "name", "caregiver_id", "is_active", "created_at"}).
		AddRow(dependentID, "Somchai", caregiverID, true, time.Now())

	mock.ExpectQuery(`SELECT (.+) FROM dependents`).
		WithArgs(dependentID).
		WillReturnRows(rows)

	d, err := repo.GetDependent(context.Background(), dependentID)
	require.NoError(t, err)
	assert.Equal(t, "Somchai", d.Name)
	require.NotNil(t, d.CaregiverID)
	assert.Equal(t, caregiverID, *d.CaregiverID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDependent_NoCaregiver(t *testing.T) {
	db, mock, repo := setupMockDependentsDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"dependent_id", "name", "caregiver_id", "is_active", "created_at"}).
		AddRow("dep-1", "Malee", nil, true, time.Now())
	mock.ExpectQuery(`SELECT (.+) FROM dependents`).WithArgs("dep-1").WillReturnRows(rows)

	d, err := repo.GetDependent(context.Background(), "dep-1")
	require.NoError(t, err)
	assert.Nil(t, d.CaregiverID)
}

func TestGetDependent_NotFound(t *testing.T) {
	db, mock, repo := setupMockDependentsDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM dependents`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	d, err := repo.GetDependent(context.Background(), "missing")
	assert.Nil(t, d)
	assert.ErrorIs(t, err, models.ErrDependentNotFound)
}

func TestGetDependent_DBError(t *testing.T) {
	db, mock, repo := setupMockDependentsDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM dependents`).
		WithArgs("dep-1").
		WillReturnError(errors.New("connection refused"))

	_, err := repo.GetDependent(context.Background(), "dep-1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrDependentNotFound))
	assert.Contains(t, err.Error(), "failed to get dependent")
}

func TestGetAlertConfig_PartialRow(t *testing.T) {
	db, mock, repo := setupMockDependentsDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"heart_rate_min", "heart_rate_max", "max_temperature",
		"geofence_lat", "geofence_lng", "radius_lv1", "radius_lv2",
	}).AddRow(50, 120, nil, 13.7563, 100.5018, nil, 800)

	mock.ExpectQuery(`SELECT (.+) FROM alert_settings`).
		WithArgs("dep-1").
		WillReturnRows(rows)

	cfg, err := repo.GetAlertConfig(context.Background(), "dep-1")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 50, *cfg.HeartRateMin)
	assert.Equal(t, 120, *cfg.HeartRateMax)
	assert.Nil(t, cfg.MaxTemperature)
	assert.Equal(t, 13.7563, *cfg.GeofenceLat)
	assert.Nil(t, cfg.RadiusLv1)
	assert.Equal(t, 800, *cfg.RadiusLv2)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAlertConfig_NoRow(t *testing.T) {
	db, mock, repo := setupMockDependentsDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM alert_settings`).
		WithArgs("dep-1").
		WillReturnError(sql.ErrNoRows)

	cfg, err := repo.GetAlertConfig(context.Background(), "dep-1")
	assert.NoError(t, err)
	assert.Nil(t, cfg)
}
