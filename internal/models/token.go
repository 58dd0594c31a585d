package models

import (
	"time"

	"github.com/google/uuid"
)

// ResetToken is a single-use 6-digit code authorizing a password reset.
type ResetToken struct {
	BaseModel
	Token      string     `gorm:"type:varchar(6);not null" json:"-"`
	Expiration time.Time  `gorm:"not null" json:"expiration"`
	EmployeeID uuid.UUID  `gorm:"type:uuid;not null" json:"employee_id"`
	UsedAt     *time.Time `json:"-"`
}
