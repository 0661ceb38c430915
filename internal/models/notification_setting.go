package models

// NotificationSetting mirrors one per-category alert toggle locally so a
// restarted console keeps its gate state. The backend copy stays the source
// of truth; rows here are updated after each successful upstream persist.
type NotificationSetting struct {
	BaseModel

	Category string `gorm:"type:varchar(32);uniqueIndex" json:"category"`
	Enabled  bool   `gorm:"not null;default:true" json:"enabled"`
}
