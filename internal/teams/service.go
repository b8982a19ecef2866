// Package teams handles team membership: creation with the creator enrolled
// in the same transaction, joining by code with the capacity limit enforced
// under a row lock, leaving, and the leaderboard.
package teams

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/gauntlet-ctf/gauntlet/internal/models"
	"github.com/gauntlet-ctf/gauntlet/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrEmptyTeamName   = errors.New("team name must not be empty")
	ErrTeamNameTaken   = errors.New("team name already taken")
	ErrInvalidJoinCode = errors.New("invalid join code")
	ErrTeamFull        = errors.New("team is full")
	ErrAlreadyInTeam   = errors.New("already in a team")
	ErrNotInTeam       = errors.New("not in a team")
)

const (
	joinCodeLength  = 6
	joinCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewJoinCode returns a short random code teammates type in to join.
func NewJoinCode() string {
	var sb strings.Builder
	sb.Grow(joinCodeLength)
	for i := 0; i < joinCodeLength; i++ {
		sb.WriteByte(joinCodeCharset[rand.IntN(len(joinCodeCharset))])
	}
	return sb.String()
}

type Service struct {
	store *storage.Storage
}

func NewService(store *storage.Storage) *Service {
	return &Service{store: store}
}

// Create makes a new team and enrolls the creator as its first member. Both
// happen in one transaction: a team never exists without its creator on it.
func (s *Service) Create(ctx context.Context, userID, name string) (*models.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyTeamName
	}

	var team *models.Team
	if err := s.store.Transaction(ctx, func(tx *storage.Storage) error {
		profile, err := tx.GetProfile(ctx, userID)
		if err != nil {
			return err
		}
		if profile.InTeam() {
			return ErrAlreadyInTeam
		}

		taken, err := tx.TeamNameExists(ctx, name)
		if err != nil {
			return err
		}
		if taken {
			return ErrTeamNameTaken
		}

		team = &models.Team{
			ID:       uuid.New().String(),
			Name:     name,
			JoinCode: NewJoinCode(),
		}
		if err := tx.CreateTeam(ctx, team); err != nil {
			return err
		}

		return tx.SetProfileTeam(ctx, userID, &team.ID)
	}); err != nil {
		return nil, fmt.Errorf("creating team: %w", err)
	}

	return team, nil
}

// Join adds the user to the team behind a join code. The team row stays
// locked while the member count is checked, so the 4-member cap holds even
// for simultaneous joins.
func (s *Service) Join(ctx context.Context, userID, code string) (*models.Team, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrInvalidJoinCode
	}

	var team *models.Team
	if err := s.store.Transaction(ctx, func(tx *storage.Storage) error {
		profile, err := tx.GetProfile(ctx, userID)
		if err != nil {
			return err
		}
		if profile.InTeam() {
			return ErrAlreadyInTeam
		}

		team, err = tx.GetTeamByJoinCodeForUpdate(ctx, code)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidJoinCode
			}
			return err
		}

		count, err := tx.CountTeamMembers(ctx, team.ID)
		if err != nil {
			return err
		}
		if count >= models.TeamCapacity {
			return ErrTeamFull
		}

		return tx.SetProfileTeam(ctx, userID, &team.ID)
	}); err != nil {
		return nil, fmt.Errorf("joining team: %w", err)
	}

	return team, nil
}

// Leave detaches the user from their team. The team keeps its score and its
// solve history.
func (s *Service) Leave(ctx context.Context, userID string) error {
	if err := s.store.Transaction(ctx, func(tx *storage.Storage) error {
		profile, err := tx.GetProfile(ctx, userID)
		if err != nil {
			return err
		}
		if !profile.InTeam() {
			return ErrNotInTeam
		}
		return tx.SetProfileTeam(ctx, userID, nil)
	}); err != nil {
		return fmt.Errorf("leaving team: %w", err)
	}
	return nil
}

type LeaderboardEntry struct {
	TeamID  string `json:"teamId"`
	Name    string `json:"name"`
	Score   int    `json:"score"`
	Members int    `json:"members"`
}

// Leaderboard lists teams by score, ties broken by age (earlier team first).
func (s *Service) Leaderboard(ctx context.Context) ([]*LeaderboardEntry, error) {
	teamList, err := s.store.ListTeamsByScore(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]*LeaderboardEntry, 0, len(teamList))
	for _, team := range teamList {
		count, err := s.store.CountTeamMembers(ctx, team.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &LeaderboardEntry{
			TeamID:  team.ID,
			Name:    team.Name,
			Score:   team.Score,
			Members: int(count),
		})
	}

	return entries, nil
}
