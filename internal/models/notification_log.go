package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification log sources.
const (
	SourceLive    = "live"
	SourcePending = "pending"
)

// Notification log outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeClaimed  = "claimed" // assigned to another agent
)

// NotificationLog records every notification the console surfaced and how it
// was resolved, for shift review. It is an audit trail, not reconciliation
// state; the store is rebuilt from the backend's pending-items endpoint.
type NotificationLog struct {
	BaseModel

	ItemID   string         `gorm:"type:varchar(64);index:idx_notification_item" json:"item_id"`
	Category string         `gorm:"type:varchar(32);index:idx_notification_item" json:"category"`
	Source   string         `gorm:"type:varchar(16);not null" json:"source"`
	Payload  datatypes.JSON `json:"payload"`

	Outcome    string     `gorm:"type:varchar(16)" json:"outcome,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
