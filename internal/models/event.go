package models

import "time"

// Event status values. CANCELED is terminal.
const (
	EventPublished = "PUBLISHED"
	EventCanceled  = "CANCELED"
)

// Event audience values.
const (
	AudiencePublic   = "PUBLIC"
	AudienceSelected = "SELECTED"
)

// RSVP status values.
const (
	RSVPGoing    = "GOING"
	RSVPNotGoing = "NOT_GOING"
)

// Event is a scheduled activity with optional capacity and an audience policy.
type Event struct {
	BaseModel

	CreatedByUserID string `gorm:"type:uuid;not null;index" json:"created_by_user_id"`
	CreatedBy       *User  `gorm:"foreignKey:CreatedByUserID" json:"created_by,omitempty"`

	Title       string    `gorm:"not null" json:"title"`
	Type        *string   `json:"type,omitempty"`
	StartAt     time.Time `gorm:"not null;index" json:"start_at"`
	Location    string    `gorm:"not null" json:"location"`
	Description string    `gorm:"not null" json:"description"`

	// Capacity nil means unlimited attendance.
	Capacity *int `json:"capacity,omitempty"`

	Status     string     `gorm:"not null;default:PUBLISHED;index" json:"status"`
	CanceledAt *time.Time `json:"canceled_at,omitempty"`

	Audience string `gorm:"not null;default:PUBLIC" json:"audience"`

	Invites []EventInvite `gorm:"foreignKey:EventID" json:"invites,omitempty"`
	RSVPs   []EventRSVP   `gorm:"foreignKey:EventID" json:"rsvps,omitempty"`
}

// Canceled reports whether the event reached its terminal state.
func (e *Event) Canceled() bool {
	return e.Status == EventCanceled
}

// EventInvite marks a member as part of the allowed audience of a SELECTED event.
type EventInvite struct {
	BaseModel

	EventID  string `gorm:"type:uuid;not null;uniqueIndex:idx_event_invite_member" json:"event_id"`
	MemberID string `gorm:"type:uuid;not null;uniqueIndex:idx_event_invite_member" json:"member_id"`
	Member   *Member `gorm:"foreignKey:MemberID" json:"member,omitempty"`

	InvitedByUserID string `gorm:"type:uuid;not null" json:"invited_by_user_id"`
}

// EventRSVP is the single attendance record per (event, user); upserts mutate
// Status and RSVPAt in place.
type EventRSVP struct {
	BaseModel

	EventID string `gorm:"type:uuid;not null;uniqueIndex:idx_event_rsvp_user" json:"event_id"`
	UserID  string `gorm:"type:uuid;not null;uniqueIndex:idx_event_rsvp_user" json:"user_id"`
	User    *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`

	Status string    `gorm:"not null" json:"status"`
	RSVPAt time.Time `gorm:"not null" json:"rsvp_at"`
}
