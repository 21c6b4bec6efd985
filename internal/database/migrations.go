package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/bsudfrance/bsf-server/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	return db.AutoMigrate(
		&models.Member{},
		&models.User{},
		&models.Session{},
		&models.Invitation{},
		&models.Event{},
		&models.EventInvite{},
		&models.EventRSVP{},
		&models.Recommendation{},
		&models.RecommendationStatusHistory{},
		&models.AuditLog{},
	)
}
