package models

// Member is a directory profile. Members exist independently of login
// capability; a Member may never receive an account.
type Member struct {
	BaseModel

	Firstname string  `gorm:"not null" json:"firstname"`
	Lastname  string  `gorm:"not null" json:"lastname"`
	Company   string  `gorm:"not null;index" json:"company"`
	Email     *string `gorm:"uniqueIndex" json:"email,omitempty"`
	Phone     string  `json:"phone,omitempty"`

	ConsentShareContact bool `gorm:"default:true" json:"consent_share_contact"`
	ConsentShareHobbies bool `gorm:"default:true" json:"consent_share_hobbies"`
}

// FullName renders the display name used in notifications.
func (m *Member) FullName() string {
	return m.Firstname + " " + m.Lastname
}
