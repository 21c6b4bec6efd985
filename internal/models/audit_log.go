package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog records privileged actions. Rows are append-only: the application
// never updates or deletes them.
type AuditLog struct {
	ID           string         `gorm:"primaryKey;type:uuid" json:"id"`
	ActorUserID  *string        `gorm:"type:uuid;index" json:"actor_user_id"`
	Actor        *User          `gorm:"foreignKey:ActorUserID" json:"actor,omitempty"`
	Action       string         `gorm:"not null;index" json:"action"`
	TargetUserID *string        `gorm:"type:uuid;index" json:"target_user_id,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Metadata     datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
