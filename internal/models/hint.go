package models

// Hint indices and their fixed point costs.
const (
	MinHintIndex = 1
	MaxHintIndex = 3
)

// HintCost returns the fixed cost schedule for a hint index, or false for an
// index outside 1..3.
func HintCost(index int) (int, bool) {
	switch index {
	case 1:
		return 10, true
	case 2:
		return 25, true
	case 3:
		return 50, true
	default:
		return 0, false
	}
}

type Hint struct {
	SimulationID string `gorm:"type:uuid;primaryKey"`
	HintIndex    int    `gorm:"primaryKey;autoIncrement:false"`

	Content string `gorm:"type:text;not null"`
	Cost    int    `gorm:"not null"`
}
