package models

import "time"

// Profile is the competition-facing record for an authenticated user. Its ID
// equals the auth provider's subject, so a profile is created lazily on the
// first authenticated request rather than at sign-up.
type Profile struct {
	ID       string `gorm:"type:uuid;primaryKey"`
	Email    string `gorm:"uniqueIndex"`
	Username string

	TeamID *string `gorm:"type:uuid;index"`
	Team   *Team   `gorm:"foreignKey:TeamID"`

	CreatedAt  time.Time `gorm:"autoCreateTime"`
	LastSeenAt time.Time `gorm:"autoUpdateTime"`
}

func (p *Profile) InTeam() bool {
	return p.TeamID != nil && *p.TeamID != ""
}
