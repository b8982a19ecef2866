// Package scoring owns the game's progression rules: flag verification,
// the hint unlock ledger, and the admin reset. Every mutation keeps the team
// score and the fact tables (submissions, unlocked hints) consistent within a
// single transaction, and repeated requests are idempotent no-ops rather than
// errors.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gauntlet-ctf/gauntlet/internal/models"
	"github.com/gauntlet-ctf/gauntlet/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrSimulationNotFound = errors.New("simulation not found")
	ErrHintNotFound       = errors.New("hint not configured for this simulation")
	ErrInvalidHintIndex   = errors.New("hint index must be between 1 and 3")
	ErrEmptyFlag          = errors.New("flag must not be empty")
)

type Engine struct {
	store *storage.Storage

	clampScoreAtZero bool
}

func NewEngine(store *storage.Storage, clampScoreAtZero bool) *Engine {
	return &Engine{
		store:            store,
		clampScoreAtZero: clampScoreAtZero,
	}
}

type SubmitResult struct {
	AlreadySolved bool `json:"alreadySolved"`
	Correct       bool `json:"correct"`
	PointsAwarded int  `json:"pointsAwarded"`
}

// FirstSolve reports whether this submission is the one that actually scored.
func (r *SubmitResult) FirstSolve() bool {
	return r.Correct && !r.AlreadySolved
}

type UnlockResult struct {
	AlreadyUnlocked bool   `json:"alreadyUnlocked"`
	HintText        string `json:"hint"`
	CostDeducted    int    `json:"costDeducted"`
}

// NormalizeFlag maps a flag to its canonical comparison form. Both the stored
// flag and the submitted one go through this, so "  Flag-X " matches
// "FLAG-X".
func NormalizeFlag(flag string) string {
	return strings.ToLower(strings.TrimSpace(flag))
}

// SubmitFlag verifies an attempt and awards the simulation's points to the
// team exactly once. A second correct submission, including one racing the
// first, takes the already-solved path and changes nothing.
func (e *Engine) SubmitFlag(ctx context.Context, simulationID, teamID, userID, flagText string) (*SubmitResult, error) {
	if strings.TrimSpace(flagText) == "" {
		return nil, ErrEmptyFlag
	}

	sim, err := e.store.GetSimulation(ctx, simulationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSimulationNotFound
		}
		return nil, fmt.Errorf("loading simulation: %w", err)
	}

	solved, err := e.store.HasCorrectSubmission(ctx, teamID, simulationID)
	if err != nil {
		return nil, fmt.Errorf("checking prior solve: %w", err)
	}
	if solved {
		return &SubmitResult{AlreadySolved: true, Correct: true}, nil
	}

	correct := NormalizeFlag(flagText) == NormalizeFlag(sim.FlagCode)
	result := &SubmitResult{Correct: correct}

	if err := e.store.Transaction(ctx, func(tx *storage.Storage) error {
		inserted, err := tx.InsertSubmission(ctx, &models.Submission{
			ID:            uuid.New().String(),
			SimulationID:  simulationID,
			TeamID:        teamID,
			UserID:        userID,
			SubmittedText: flagText,
			IsCorrect:     correct,
		})
		if err != nil {
			return err
		}

		if !correct {
			return nil
		}

		if !inserted {
			// Lost a race against another correct submission from the
			// same team; the winner already took the points.
			result.AlreadySolved = true
			return nil
		}

		result.PointsAwarded = sim.Points
		return tx.AddTeamScore(ctx, teamID, sim.Points, false)
	}); err != nil {
		return nil, fmt.Errorf("recording submission: %w", err)
	}

	return result, nil
}

// UnlockHint reveals hint content to a team, charging its fixed cost at most
// once. Re-requesting an unlocked hint re-serves the current content for free.
func (e *Engine) UnlockHint(ctx context.Context, simulationID, teamID string, hintIndex int) (*UnlockResult, error) {
	if hintIndex < models.MinHintIndex || hintIndex > models.MaxHintIndex {
		return nil, ErrInvalidHintIndex
	}

	hint, err := e.store.GetHint(ctx, simulationID, hintIndex)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHintNotFound
		}
		return nil, fmt.Errorf("loading hint: %w", err)
	}

	result := &UnlockResult{HintText: hint.Content}

	if err := e.store.Transaction(ctx, func(tx *storage.Storage) error {
		inserted, err := tx.InsertUnlockedHint(ctx, &models.UnlockedHint{
			TeamID:       teamID,
			SimulationID: simulationID,
			HintIndex:    hintIndex,
		})
		if err != nil {
			return err
		}

		if !inserted {
			result.AlreadyUnlocked = true
			return nil
		}

		result.CostDeducted = hint.Cost
		return tx.AddTeamScore(ctx, teamID, -hint.Cost, e.clampScoreAtZero)
	}); err != nil {
		return nil, fmt.Errorf("recording hint unlock: %w", err)
	}

	return result, nil
}

// ResetGame wipes all submissions and unlocked hints and zeroes every team's
// score in one transaction. Profiles, teams and simulations survive.
func (e *Engine) ResetGame(ctx context.Context) error {
	if err := e.store.Transaction(ctx, func(tx *storage.Storage) error {
		if err := tx.DeleteAllSubmissions(ctx); err != nil {
			return err
		}
		if err := tx.DeleteAllUnlockedHints(ctx); err != nil {
			return err
		}
		return tx.ZeroAllTeamScores(ctx)
	}); err != nil {
		return fmt.Errorf("resetting game: %w", err)
	}
	return nil
}

// RecomputeScore derives a team's score from the fact tables; the admin
// overview uses this as an integrity check against the stored counter. The
// two always match while clamping is off; with clamping on the floor applies
// per purchase, so the derived value is a lower bound.
func (e *Engine) RecomputeScore(ctx context.Context, teamID string) (int, error) {
	earned, err := e.store.SumSolvedPoints(ctx, teamID)
	if err != nil {
		return 0, err
	}
	spent, err := e.store.SumUnlockedHintCosts(ctx, teamID)
	if err != nil {
		return 0, err
	}

	score := earned - spent
	if e.clampScoreAtZero && score < 0 {
		score = 0
	}
	return score, nil
}
