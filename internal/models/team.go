package models

import "time"

// TeamCapacity is the maximum number of members a team may have.
const TeamCapacity = 4

type Team struct {
	ID       string `gorm:"type:uuid;primaryKey"`
	Name     string `gorm:"uniqueIndex;not null"`
	JoinCode string `gorm:"uniqueIndex;size:8;not null"`

	// Score is a materialized projection over Submission and UnlockedHint,
	// updated in the same transaction as every fact insert.
	Score int `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
