package services

import (
	"strconv"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/distributor-server/internal/apperrors"
	"github.com/example/distributor-server/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Distributor{}, &models.Employee{}, &models.ResetToken{}))
	return db
}

func seedEmployee(t *testing.T, db *gorm.DB) *models.Employee {
	t.Helper()

	distributor := models.Distributor{Name: "sage", TinNumber: "abc_iad"}
	require.NoError(t, db.Create(&distributor).Error)

	email := "john@example.com"
	employee := models.Employee{
		FirstName:     "john",
		LastName:      "doe",
		PhoneNumber:   "0244444449",
		EmailAddress:  &email,
		DistributorID: distributor.ID,
	}
	require.NoError(t, db.Create(&employee).Error)
	return &employee
}

func TestIssueGeneratesSixDigitCode(t *testing.T) {
	db := newTestDB(t)
	employee := seedEmployee(t, db)
	svc := NewTokenService(db, 5*time.Minute)

	token, err := svc.Issue(employee.ID)
	require.NoError(t, err)
	require.Len(t, token.Token, 6)

	code, err := strconv.Atoi(token.Token)
	require.NoError(t, err)
	require.GreaterOrEqual(t, code, 100000)
	require.LessOrEqual(t, code, 999999)
}

func TestIssueSetsConfiguredExpiry(t *testing.T) {
	db := newTestDB(t)
	employee := seedEmployee(t, db)

	issuedAt := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	svc := NewTokenService(db, 5*time.Minute)
	svc.now = func() time.Time { return issuedAt }

	token, err := svc.Issue(employee.ID)
	require.NoError(t, err)
	require.Equal(t, issuedAt.Add(5*time.Minute), token.Expiration.UTC())
}

func TestIssueExpiresPreviousTokens(t *testing.T) {
	db := newTestDB(t)
	employee := seedEmployee(t, db)
	svc := NewTokenService(db, 5*time.Minute)

	first, err := svc.Issue(employee.ID)
	require.NoError(t, err)

	_, err = svc.Issue(employee.ID)
	require.NoError(t, err)

	_, err = svc.Confirm(first.ID, first.Token)
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindExpiredToken, appErr.Kind)
}

func TestResendMintsNewTokenForSameEmployee(t *testing.T) {
	db := newTestDB(t)
	employee := seedEmployee(t, db)
	svc := NewTokenService(db, 5*time.Minute)

	first, err := svc.Issue(employee.ID)
	require.NoError(t, err)

	second, owner, err := svc.Resend(first.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, employee.ID, owner.ID)
	require.Equal(t, employee.ID, second.EmployeeID)
}

func TestResendUnknownToken(t *testing.T) {
	db := newTestDB(t)
	seedEmployee(t, db)
	svc := NewTokenService(db, 5*time.Minute)

	_, _, err := svc.Resend(uuid.New())
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindNotFound, appErr.Kind)
	require.Equal(t, "token not found", appErr.Context)
}

func TestConfirmConsumesToken(t *testing.T) {
	db := newTestDB(t)
	employee := seedEmployee(t, db)
	svc := NewTokenService(db, 5*time.Minute)

	token, err := svc.Issue(employee.ID)
	require.NoError(t, err)

	owner, err := svc.Confirm(token.ID, token.Token)
	require.NoError(t, err)
	require.Equal(t, employee.ID, owner.ID)

	_, err = svc.Confirm(token.ID, token.Token)
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindBadRequest, appErr.Kind)
	require.Equal(t, "token already used", appErr.Context)
}

func TestConfirmWrongCode(t *testing.T) {
	db := newTestDB(t)
	employee := seedEmployee(t, db)
	svc := NewTokenService(db, 5*time.Minute)

	token, err := svc.Issue(employee.ID)
	require.NoError(t, err)

	wrong := "000000"
	if token.Token == wrong {
		wrong = "000001"
	}

	_, err = svc.Confirm(token.ID, wrong)
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, "Wrong token", appErr.Context)

	// A failed attempt does not consume the token.
	_, err = svc.Confirm(token.ID, token.Token)
	require.NoError(t, err)
}

func TestConfirmExpiredToken(t *testing.T) {
	db := newTestDB(t)
	employee := seedEmployee(t, db)

	svc := NewTokenService(db, 5*time.Minute)
	issuedAt := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issuedAt }

	token, err := svc.Issue(employee.ID)
	require.NoError(t, err)

	svc.now = func() time.Time { return issuedAt.Add(5*time.Minute + time.Second) }

	_, err = svc.Confirm(token.ID, token.Token)
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindExpiredToken, appErr.Kind)
	require.Equal(t, "token expired", appErr.Context)
}
