package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Roles form a closed set; there is no custom-role machinery.
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleUser       = "USER"
)

// ValidRole reports whether the value belongs to the role enum.
func ValidRole(role string) bool {
	switch role {
	case RoleSuperAdmin, RoleAdmin, RoleUser:
		return true
	}
	return false
}

// User is a login-capable account, created only through invitation acceptance
// and always tied to exactly one directory Member.
type User struct {
	ID        string  `gorm:"primaryKey;type:uuid" json:"id"`
	AuthEmail string  `gorm:"uniqueIndex;not null" json:"auth_email"`
	Role      string  `gorm:"not null;default:USER" json:"role"`
	// PasswordHash is empty until the invitation carrying this account is accepted.
	PasswordHash string `gorm:"" json:"-"`

	MemberID *string `gorm:"type:uuid;uniqueIndex" json:"member_id"`
	Member   *Member `gorm:"foreignKey:MemberID" json:"member,omitempty"`

	IsActive        bool       `gorm:"default:true" json:"is_active"`
	DeactivatedAt   *time.Time `json:"-"`
	DeactivatedByID *string    `gorm:"type:uuid" json:"-"`

	FailedLoginCount int        `gorm:"default:0" json:"-"`
	LockedUntil      *time.Time `json:"-"`
	LastLoginAt      *time.Time `json:"last_login_at"`

	PasswordUpdatedAt *time.Time `json:"-"`
	EmailVerifiedAt   *time.Time `json:"-"`

	// NotificationPrefs holds the structured onboarding/notification record.
	NotificationPrefs datatypes.JSON `json:"-"`

	Sessions []Session `gorm:"foreignKey:UserID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// IsAdmin reports whether the user carries any administrative role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Role == RoleSuperAdmin
}

// Locked reports whether the account is under a login lockout at the given time.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}
