package models

// Credential stores the upstream token and executive identifier for this
// seat, the role device-local storage plays in the mobile dashboard. A
// single row is kept; saving replaces it.
type Credential struct {
	BaseModel

	ExecutiveID string `gorm:"type:varchar(64);not null" json:"executive_id"`
	Token       string `gorm:"type:text;not null" json:"-"`
	FullName    string `gorm:"type:varchar(255)" json:"full_name"`
	MobileNo    string `gorm:"type:varchar(32)" json:"mobile_no"`
}
