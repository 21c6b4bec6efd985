package models

import "time"

// Recommendation statuses. The set is closed but transitions are free-form;
// authorization and audit are the only constraints.
const (
	RecommendationSent       = "SENT"
	RecommendationInProgress = "IN_PROGRESS"
	RecommendationValidated  = "VALIDATED"
	RecommendationAbandoned  = "ABANDONED"
)

// ValidRecommendationStatus reports whether the value belongs to the status enum.
func ValidRecommendationStatus(status string) bool {
	switch status {
	case RecommendationSent, RecommendationInProgress, RecommendationValidated, RecommendationAbandoned:
		return true
	}
	return false
}

// Recommendation is a referral from a user to a directory member, carrying
// contact details for the referred prospect and a tracked outcome.
type Recommendation struct {
	BaseModel

	SenderUserID string `gorm:"type:uuid;not null;index" json:"sender_user_id"`
	Sender       *User  `gorm:"foreignKey:SenderUserID" json:"sender,omitempty"`

	RecipientMemberID string  `gorm:"type:uuid;not null;index" json:"recipient_member_id"`
	Recipient         *Member `gorm:"foreignKey:RecipientMemberID" json:"recipient,omitempty"`

	ContactFirstname string  `gorm:"not null" json:"contact_firstname"`
	ContactLastname  string  `gorm:"not null" json:"contact_lastname"`
	ContactCompany   *string `json:"contact_company,omitempty"`
	ContactEmail     *string `json:"contact_email,omitempty"`
	ContactPhone     *string `json:"contact_phone,omitempty"`

	Text string `gorm:"not null" json:"text"`

	Status          string     `gorm:"not null;default:SENT;index" json:"status"`
	StatusUpdatedAt *time.Time `json:"status_updated_at,omitempty"`

	// Revenue fields are only meaningful when Status is VALIDATED.
	RevenueAmount   *float64 `json:"revenue_amount,omitempty"`
	RevenueCurrency *string  `json:"revenue_currency,omitempty"`

	FollowupDueAt *time.Time `json:"followup_due_at,omitempty"`

	History []RecommendationStatusHistory `gorm:"foreignKey:RecommendationID" json:"history,omitempty"`
}

// RecommendationStatusHistory is the append-only audit trail of transitions,
// one row per change including the implicit initial SENT.
type RecommendationStatusHistory struct {
	BaseModel

	RecommendationID string `gorm:"type:uuid;not null;index" json:"recommendation_id"`
	OldStatus        string `gorm:"not null" json:"old_status"`
	NewStatus        string `gorm:"not null" json:"new_status"`
	ChangedByUserID  string `gorm:"type:uuid;not null" json:"changed_by_user_id"`
}
