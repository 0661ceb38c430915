// Package journal records every notification the console surfaces and how it
// was resolved, for shift review.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/propdesk/agent-console/internal/category"
	"github.com/propdesk/agent-console/internal/models"
	"github.com/propdesk/agent-console/internal/reconcile"
)

// Entry is the API-friendly journal row.
type Entry struct {
	ID         string                 `json:"id"`
	ItemID     string                 `json:"item_id"`
	Category   category.Category      `json:"category"`
	Source     string                 `json:"source"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Outcome    string                 `json:"outcome,omitempty"`
	ResolvedAt *time.Time             `json:"resolved_at,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Service persists notification history.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs the journal service.
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, errors.New("journal: db is required")
	}
	return &Service{db: db, now: time.Now}, nil
}

// Record stores a surfaced notification.
func (s *Service) Record(ctx context.Context, item reconcile.Item) error {
	source := models.SourceLive
	if item.Pending {
		source = models.SourcePending
	}

	row := models.NotificationLog{
		ItemID:   item.ID,
		Category: string(item.Category),
		Source:   source,
	}

	if len(item.Fields) > 0 {
		data, err := json.Marshal(item.Fields)
		if err != nil {
			return fmt.Errorf("journal: marshal payload: %w", err)
		}
		row.Payload = datatypes.JSON(data)
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("journal: record notification: %w", err)
	}
	return nil
}

// MarkResolved stamps the item's unresolved rows with an outcome. Unknown
// items are ignored; the journal only reflects what it saw.
func (s *Service) MarkResolved(ctx context.Context, c category.Category, itemID, outcome string) error {
	now := s.now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.NotificationLog{}).
		Where("item_id = ? AND category = ? AND outcome = ?", itemID, string(c), "").
		Updates(map[string]interface{}{
			"outcome":     outcome,
			"resolved_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("journal: mark resolved: %w", result.Error)
	}
	return nil
}

// ListRecent returns journal rows ordered by recency.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var rows []models.NotificationLog
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("journal: list recent: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, mapEntry(row))
	}
	return entries, nil
}

func mapEntry(row models.NotificationLog) Entry {
	return Entry{
		ID:         row.ID,
		ItemID:     row.ItemID,
		Category:   category.Category(row.Category),
		Source:     row.Source,
		Payload:    decodeJSON(row.Payload),
		Outcome:    row.Outcome,
		ResolvedAt: row.ResolvedAt,
		CreatedAt:  row.CreatedAt,
	}
}

func decodeJSON(data datatypes.JSON) map[string]interface{} {
	if len(data) == 0 {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
