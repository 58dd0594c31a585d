package services

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/distributor-server/internal/apperrors"
	"github.com/example/distributor-server/internal/models"
)

// TokenService issues and validates single-use password-reset tokens.
// All expiry arithmetic is UTC-normalized.
type TokenService struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewTokenService constructs a TokenService with the configured token TTL.
func NewTokenService(db *gorm.DB, ttl time.Duration) *TokenService {
	return &TokenService{db: db, ttl: ttl, now: time.Now}
}

// Issue mints a new 6-digit reset token for an employee. Outstanding unused
// tokens for the same employee are expired first, so at most one token is
// valid at a time.
func (s *TokenService) Issue(employeeID uuid.UUID) (*models.ResetToken, error) {
	code, err := generateResetCode()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to generate reset code")
	}

	now := s.now().UTC()
	if err := s.db.Model(&models.ResetToken{}).
		Where("employee_id = ? AND used_at IS NULL", employeeID).
		Update("expiration", now).Error; err != nil {
		return nil, apperrors.Wrap(err, "failed to expire previous tokens")
	}

	token := models.ResetToken{
		Token:      code,
		Expiration: now.Add(s.ttl),
		EmployeeID: employeeID,
	}
	if err := s.db.Create(&token).Error; err != nil {
		return nil, apperrors.Wrap(err, "failed to create reset token")
	}

	return &token, nil
}

// Resend mints a brand-new token for the employee referenced by an existing
// token id. The old code is never retransmitted.
func (s *TokenService) Resend(tokenID uuid.UUID) (*models.ResetToken, *models.Employee, error) {
	var previous models.ResetToken
	if err := s.db.First(&previous, "id = ?", tokenID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperrors.NotFound("token not found")
		}
		return nil, nil, apperrors.Wrap(err, "failed to load reset token")
	}

	var employee models.Employee
	if err := s.db.First(&employee, "id = ?", previous.EmployeeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperrors.NotFound("user does not exist")
		}
		return nil, nil, apperrors.Wrap(err, "failed to load employee")
	}

	token, err := s.Issue(employee.ID)
	if err != nil {
		return nil, nil, err
	}

	return token, &employee, nil
}

// Confirm validates a supplied code against a stored token and consumes the
// token on success, returning the owning employee.
func (s *TokenService) Confirm(tokenID uuid.UUID, code string) (*models.Employee, error) {
	var token models.ResetToken
	if err := s.db.First(&token, "id = ?", tokenID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("token not found")
		}
		return nil, apperrors.Wrap(err, "failed to load reset token")
	}

	if token.UsedAt != nil {
		return nil, apperrors.BadRequest("token already used")
	}

	if token.Token != code {
		return nil, apperrors.BadRequest("Wrong token")
	}

	now := s.now().UTC()
	if now.After(token.Expiration.UTC()) {
		return nil, apperrors.ExpiredToken("token expired")
	}

	var employee models.Employee
	if err := s.db.First(&employee, "id = ?", token.EmployeeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("user does not exist")
		}
		return nil, apperrors.Wrap(err, "failed to load employee")
	}

	token.UsedAt = &now
	if err := s.db.Save(&token).Error; err != nil {
		return nil, apperrors.Wrap(err, "failed to consume reset token")
	}

	return &employee, nil
}

func generateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
