package models

import "github.com/google/uuid"

// Employee represents a distributor employee account. Credentials are never
// stored locally; the Keycloak user referenced by AuthServiceID owns them.
type Employee struct {
	BaseModel
	FirstName           string       `json:"first_name"`
	LastName            string       `json:"last_name"`
	PhoneNumber         string       `gorm:"uniqueIndex" json:"phone_number"`
	EmailAddress        *string      `gorm:"uniqueIndex" json:"email_address"`
	DistributorID       uuid.UUID    `gorm:"type:uuid;not null" json:"distributor_id"`
	CreateSecondaryUser bool         `gorm:"default:false" json:"create_secondary_user"`
	CreateRetailer      bool         `gorm:"default:false" json:"create_retailer"`
	AuthServiceID       uuid.UUID    `gorm:"type:uuid" json:"-"`
	Tokens              []ResetToken `json:"-"`
}
