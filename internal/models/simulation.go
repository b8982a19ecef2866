package models

import "time"

type SimulationType string

const (
	SimulationTypePractice SimulationType = "practice"
	SimulationTypeLive     SimulationType = "live"
)

// Simulation pairs a hidden character prompt with the flag that prompt is
// guarding. SystemPrompt and FlagCode must never leave the server except
// through the admin API.
type Simulation struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	Title       string `gorm:"not null"`
	Description string `gorm:"type:text"`

	SystemPrompt string `gorm:"type:text;not null" json:"-"`
	FlagCode     string `gorm:"not null" json:"-"`

	Type   SimulationType `gorm:"default:'practice'"`
	Points int            `gorm:"not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
