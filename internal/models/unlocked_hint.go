package models

import "time"

// UnlockedHint records that a team has paid for a hint. The composite primary
// key makes repeated unlocks structurally impossible; its existence is the
// source of truth for "already unlocked".
type UnlockedHint struct {
	TeamID       string `gorm:"type:uuid;primaryKey"`
	SimulationID string `gorm:"type:uuid;primaryKey"`
	HintIndex    int    `gorm:"primaryKey;autoIncrement:false"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}
