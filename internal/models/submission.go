package models

import (
	"fmt"
	"time"
)

// Submission is an immutable record of one flag attempt. The partial unique
// index admits at most one correct submission per (team, simulation); that row
// is the source of truth for "already solved".
type Submission struct {
	ID string `gorm:"type:uuid;primaryKey"`

	SimulationID string `gorm:"type:uuid;not null;index;uniqueIndex:idx_team_solve,where:is_correct"`
	TeamID       string `gorm:"type:uuid;not null;index;uniqueIndex:idx_team_solve,where:is_correct"`
	UserID       string `gorm:"type:uuid;not null"`

	SubmittedText string `gorm:"not null"`
	IsCorrect     bool

	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

func (s *Submission) String() string {
	return fmt.Sprintf(
		"Submission(sim=%s, team=%s, user=%s, correct=%v)",
		s.SimulationID,
		s.TeamID,
		s.UserID,
		s.IsCorrect,
	)
}
