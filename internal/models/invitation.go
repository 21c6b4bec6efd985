package models

import "time"

// Invitation statuses derived from row state; nothing stores these strings.
const (
	InvitationPending  = "PENDING"
	InvitationAccepted = "ACCEPTED"
	InvitationExpired  = "EXPIRED"
)

// Invitation is a one-time activation credential. A resend supersedes the row
// by forcing its expiry and inserting a fresh one; rows are never re-keyed.
type Invitation struct {
	BaseModel

	Email    string  `gorm:"not null;index" json:"email"`
	MemberID *string `gorm:"type:uuid;index" json:"member_id,omitempty"`
	Member   *Member `gorm:"foreignKey:MemberID" json:"member,omitempty"`
	Role     string  `gorm:"not null;default:USER" json:"role"`

	TokenHash   string  `gorm:"uniqueIndex;not null" json:"-"`
	InvitedByID *string `gorm:"type:uuid" json:"invited_by,omitempty"`

	SentAt     time.Time  `gorm:"not null" json:"sent_at"`
	ExpireAt   time.Time  `gorm:"not null;index" json:"expire_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

// Status derives the lifecycle state at the given time.
func (i *Invitation) Status(now time.Time) string {
	switch {
	case i.AcceptedAt != nil:
		return InvitationAccepted
	case !i.ExpireAt.After(now):
		return InvitationExpired
	default:
		return InvitationPending
	}
}

// Redeemable reports whether the token can still be consumed.
func (i *Invitation) Redeemable(now time.Time) bool {
	return i.AcceptedAt == nil && i.ExpireAt.After(now)
}
