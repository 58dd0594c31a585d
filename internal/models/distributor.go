package models

// Distributor represents a distributor business with its employee accounts.
type Distributor struct {
	BaseModel
	Name      string     `gorm:"uniqueIndex;not null" json:"name"`
	TinNumber string     `gorm:"not null" json:"tin_number"`
	Location  string     `json:"location"`
	Employees []Employee `json:"employees,omitempty"`
}
