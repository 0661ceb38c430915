// Package credentials persists the upstream token and executive id for this
// seat, replacing the mobile dashboard's device-local storage.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/propdesk/agent-console/internal/models"
)

// ErrNotConfigured is returned when no credential row exists yet.
var ErrNotConfigured = errors.New("credentials: not configured")

// Store reads and writes the single credential row.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a credential store.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("credentials: db is required")
	}
	return &Store{db: db}, nil
}

// Load returns the stored credential.
func (s *Store) Load(ctx context.Context) (models.Credential, error) {
	var row models.Credential
	err := s.db.WithContext(ctx).Order("updated_at DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Credential{}, ErrNotConfigured
	}
	if err != nil {
		return models.Credential{}, fmt.Errorf("credentials: load: %w", err)
	}
	return row, nil
}

// Save replaces any stored credential with the supplied one.
func (s *Store) Save(ctx context.Context, cred models.Credential) error {
	cred.ExecutiveID = strings.TrimSpace(cred.ExecutiveID)
	cred.Token = strings.TrimSpace(cred.Token)
	if cred.ExecutiveID == "" {
		return errors.New("credentials: executive id is required")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.Credential{}).Error; err != nil {
			return fmt.Errorf("credentials: clear: %w", err)
		}
		if err := tx.Create(&cred).Error; err != nil {
			return fmt.Errorf("credentials: save: %w", err)
		}
		return nil
	})
}
