package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/gauntlet-ctf/gauntlet/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrTeamNotFound = errors.New("team not found")

type Storage struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&models.Team{},
		&models.Profile{},
		&models.Simulation{},
		&models.Hint{},
		&models.Submission{},
		&models.UnlockedHint{},
	); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// Transaction runs fn against a Storage bound to one database transaction.
// Returning an error from fn rolls everything back.
func (s *Storage) Transaction(ctx context.Context, fn func(tx *Storage) error) error {
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Storage{db: tx})
	}); err != nil {
		return fmt.Errorf("in tx: %w", err)
	}
	return nil
}

func (s *Storage) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	if err := s.db.WithContext(ctx).Preload("Team").Where("id = ?", userID).First(&profile).Error; err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return &profile, nil
}

// GetOrCreateProfile inserts a profile for a freshly seen auth subject and
// returns the existing row otherwise. Safe under concurrent first requests.
func (s *Storage) GetOrCreateProfile(ctx context.Context, userID, email, username string) (*models.Profile, error) {
	profileToCreate := &models.Profile{
		ID:       userID,
		Email:    email,
		Username: username,
	}

	var profile models.Profile
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoNothing: true,
			}).
			Create(profileToCreate).
			Error; err != nil {
			return fmt.Errorf("creating profile: %w", err)
		}

		if err := tx.Preload("Team").Where("id = ?", userID).First(&profile).Error; err != nil {
			return fmt.Errorf("getting profile: %w", err)
		}

		return nil
	}); err != nil {
		return nil, fmt.Errorf("in tx: %w", err)
	}

	return &profile, nil
}

func (s *Storage) ListProfiles(ctx context.Context) ([]*models.Profile, error) {
	var result []*models.Profile
	if err := s.db.WithContext(ctx).Preload("Team").Order("created_at").Find(&result).Error; err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	return result, nil
}

func (s *Storage) SetProfileTeam(ctx context.Context, userID string, teamID *string) error {
	res := s.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", userID).
		Update("team_id", teamID)
	if res.Error != nil {
		return fmt.Errorf("updating profile team: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("updating profile team: %w", gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *Storage) CreateTeam(ctx context.Context, team *models.Team) error {
	if err := s.db.WithContext(ctx).Create(team).Error; err != nil {
		return fmt.Errorf("creating team: %w", err)
	}
	return nil
}

func (s *Storage) TeamNameExists(ctx context.Context, name string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Team{}).
		Where("name = ?", name).
		Count(&count).
		Error; err != nil {
		return false, fmt.Errorf("checking team name: %w", err)
	}
	return count > 0, nil
}

func (s *Storage) GetTeam(ctx context.Context, teamID string) (*models.Team, error) {
	var team models.Team
	if err := s.db.WithContext(ctx).Where("id = ?", teamID).First(&team).Error; err != nil {
		return nil, fmt.Errorf("getting team: %w", err)
	}
	return &team, nil
}

// GetTeamByJoinCodeForUpdate locks the team row for the rest of the enclosing
// transaction, serializing concurrent joins against the capacity check.
// SQLite has no row locks; its single-writer model covers the same ground.
func (s *Storage) GetTeamByJoinCodeForUpdate(ctx context.Context, code string) (*models.Team, error) {
	q := s.db.WithContext(ctx)
	if s.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var team models.Team
	if err := q.Where("join_code = ?", code).First(&team).Error; err != nil {
		return nil, fmt.Errorf("getting team by join code: %w", err)
	}
	return &team, nil
}

func (s *Storage) CountTeamMembers(ctx context.Context, teamID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("team_id = ?", teamID).
		Count(&count).
		Error; err != nil {
		return 0, fmt.Errorf("counting team members: %w", err)
	}
	return count, nil
}

func (s *Storage) ListTeamsByScore(ctx context.Context) ([]*models.Team, error) {
	var result []*models.Team
	if err := s.db.WithContext(ctx).
		Order("score DESC").
		Order("created_at ASC").
		Find(&result).
		Error; err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	return result, nil
}

// AddTeamScore applies a relative score delta so that concurrent updates
// never lose each other. With clamp set the result floors at zero.
func (s *Storage) AddTeamScore(ctx context.Context, teamID string, delta int, clamp bool) error {
	expr := gorm.Expr("score + ?", delta)
	if clamp {
		expr = gorm.Expr("CASE WHEN score + ? < 0 THEN 0 ELSE score + ? END", delta, delta)
	}

	res := s.db.WithContext(ctx).
		Model(&models.Team{}).
		Where("id = ?", teamID).
		Update("score", expr)
	if res.Error != nil {
		return fmt.Errorf("updating team score: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("updating team score: %w", ErrTeamNotFound)
	}
	return nil
}

func (s *Storage) ZeroAllTeamScores(ctx context.Context) error {
	if err := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Model(&models.Team{}).
		Update("score", 0).
		Error; err != nil {
		return fmt.Errorf("zeroing team scores: %w", err)
	}
	return nil
}

func (s *Storage) GetSimulation(ctx context.Context, simulationID string) (*models.Simulation, error) {
	var sim models.Simulation
	if err := s.db.WithContext(ctx).Where("id = ?", simulationID).First(&sim).Error; err != nil {
		return nil, fmt.Errorf("getting simulation: %w", err)
	}
	return &sim, nil
}

func (s *Storage) ListSimulations(ctx context.Context, simType models.SimulationType) ([]*models.Simulation, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if simType != "" {
		q = q.Where("type = ?", simType)
	}

	var result []*models.Simulation
	if err := q.Find(&result).Error; err != nil {
		return nil, fmt.Errorf("listing simulations: %w", err)
	}
	return result, nil
}

func (s *Storage) CreateSimulation(ctx context.Context, sim *models.Simulation) error {
	if err := s.db.WithContext(ctx).Create(sim).Error; err != nil {
		return fmt.Errorf("creating simulation: %w", err)
	}
	return nil
}

func (s *Storage) UpdateSimulation(ctx context.Context, sim *models.Simulation) error {
	res := s.db.WithContext(ctx).
		Model(&models.Simulation{}).
		Where("id = ?", sim.ID).
		Updates(map[string]any{
			"title":         sim.Title,
			"description":   sim.Description,
			"system_prompt": sim.SystemPrompt,
			"flag_code":     sim.FlagCode,
			"type":          sim.Type,
			"points":        sim.Points,
		})
	if res.Error != nil {
		return fmt.Errorf("updating simulation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("updating simulation: %w", gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *Storage) DeleteSimulation(ctx context.Context, simulationID string) error {
	res := s.db.WithContext(ctx).Where("id = ?", simulationID).Delete(&models.Simulation{})
	if res.Error != nil {
		return fmt.Errorf("deleting simulation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("deleting simulation: %w", gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *Storage) GetHint(ctx context.Context, simulationID string, hintIndex int) (*models.Hint, error) {
	var hint models.Hint
	if err := s.db.WithContext(ctx).
		Where("simulation_id = ? AND hint_index = ?", simulationID, hintIndex).
		First(&hint).
		Error; err != nil {
		return nil, fmt.Errorf("getting hint: %w", err)
	}
	return &hint, nil
}

func (s *Storage) ListHints(ctx context.Context, simulationID string) ([]*models.Hint, error) {
	var result []*models.Hint
	if err := s.db.WithContext(ctx).
		Where("simulation_id = ?", simulationID).
		Order("hint_index").
		Find(&result).
		Error; err != nil {
		return nil, fmt.Errorf("listing hints: %w", err)
	}
	return result, nil
}

func (s *Storage) ListAllHints(ctx context.Context) ([]*models.Hint, error) {
	var result []*models.Hint
	if err := s.db.WithContext(ctx).Order("simulation_id, hint_index").Find(&result).Error; err != nil {
		return nil, fmt.Errorf("listing hints: %w", err)
	}
	return result, nil
}

// ReplaceHints drops every hint of a simulation and inserts the given set.
// The admin editor always saves the full set, so the last writer wins.
func (s *Storage) ReplaceHints(ctx context.Context, simulationID string, hints []*models.Hint) error {
	if err := s.db.WithContext(ctx).
		Where("simulation_id = ?", simulationID).
		Delete(&models.Hint{}).
		Error; err != nil {
		return fmt.Errorf("deleting hints: %w", err)
	}
	if len(hints) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(hints).Error; err != nil {
		return fmt.Errorf("creating hints: %w", err)
	}
	return nil
}

func (s *Storage) DeleteHintsForSimulation(ctx context.Context, simulationID string) error {
	if err := s.db.WithContext(ctx).
		Where("simulation_id = ?", simulationID).
		Delete(&models.Hint{}).
		Error; err != nil {
		return fmt.Errorf("deleting hints: %w", err)
	}
	return nil
}

func (s *Storage) HasCorrectSubmission(ctx context.Context, teamID, simulationID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("team_id = ? AND simulation_id = ? AND is_correct", teamID, simulationID).
		Count(&count).
		Error; err != nil {
		return false, fmt.Errorf("checking correct submission: %w", err)
	}
	return count > 0, nil
}

// InsertSubmission records one attempt. Correct submissions go through the
// partial unique index on (team, simulation) with ON CONFLICT DO NOTHING, so
// the returned bool reports whether this call actually landed the solve.
func (s *Storage) InsertSubmission(ctx context.Context, sub *models.Submission) (bool, error) {
	q := s.db.WithContext(ctx)
	if sub.IsCorrect {
		q = q.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "simulation_id"},
				{Name: "team_id"},
			},
			TargetWhere: clause.Where{Exprs: []clause.Expression{
				gorm.Expr("is_correct"),
			}},
			DoNothing: true,
		})
	}

	res := q.Create(sub)
	if res.Error != nil {
		return false, fmt.Errorf("creating submission: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Storage) ListSolvedSimulationIDs(ctx context.Context, teamID string) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("team_id = ? AND is_correct", teamID).
		Pluck("simulation_id", &ids).
		Error; err != nil {
		return nil, fmt.Errorf("listing solved simulations: %w", err)
	}
	return ids, nil
}

func (s *Storage) DeleteAllSubmissions(ctx context.Context) error {
	if err := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.Submission{}).
		Error; err != nil {
		return fmt.Errorf("deleting submissions: %w", err)
	}
	return nil
}

func (s *Storage) GetUnlockedHint(ctx context.Context, teamID, simulationID string, hintIndex int) (*models.UnlockedHint, error) {
	var unlocked models.UnlockedHint
	if err := s.db.WithContext(ctx).
		Where("team_id = ? AND simulation_id = ? AND hint_index = ?", teamID, simulationID, hintIndex).
		First(&unlocked).
		Error; err != nil {
		return nil, fmt.Errorf("getting unlocked hint: %w", err)
	}
	return &unlocked, nil
}

func (s *Storage) ListUnlockedHints(ctx context.Context, teamID, simulationID string) ([]*models.UnlockedHint, error) {
	var result []*models.UnlockedHint
	if err := s.db.WithContext(ctx).
		Where("team_id = ? AND simulation_id = ?", teamID, simulationID).
		Order("hint_index").
		Find(&result).
		Error; err != nil {
		return nil, fmt.Errorf("listing unlocked hints: %w", err)
	}
	return result, nil
}

// InsertUnlockedHint reports whether the row landed; false means the hint was
// already paid for.
func (s *Storage) InsertUnlockedHint(ctx context.Context, unlocked *models.UnlockedHint) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "team_id"},
				{Name: "simulation_id"},
				{Name: "hint_index"},
			},
			DoNothing: true,
		}).
		Create(unlocked)
	if res.Error != nil {
		return false, fmt.Errorf("creating unlocked hint: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Storage) DeleteAllUnlockedHints(ctx context.Context) error {
	if err := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.UnlockedHint{}).
		Error; err != nil {
		return fmt.Errorf("deleting unlocked hints: %w", err)
	}
	return nil
}

// SumSolvedPoints recomputes the award side of a team's score from the fact
// tables.
func (s *Storage) SumSolvedPoints(ctx context.Context, teamID string) (int, error) {
	var total int
	if err := s.db.WithContext(ctx).
		Model(&models.Submission{}).
		Select("COALESCE(SUM(simulations.points), 0)").
		Joins("JOIN simulations ON simulations.id = submissions.simulation_id").
		Where("submissions.team_id = ? AND submissions.is_correct", teamID).
		Scan(&total).
		Error; err != nil {
		return 0, fmt.Errorf("summing solved points: %w", err)
	}
	return total, nil
}

// SumUnlockedHintCosts recomputes the spend side of a team's score.
func (s *Storage) SumUnlockedHintCosts(ctx context.Context, teamID string) (int, error) {
	var total int
	if err := s.db.WithContext(ctx).
		Model(&models.UnlockedHint{}).
		Select("COALESCE(SUM(hints.cost), 0)").
		Joins("JOIN hints ON hints.simulation_id = unlocked_hints.simulation_id AND hints.hint_index = unlocked_hints.hint_index").
		Where("unlocked_hints.team_id = ?", teamID).
		Scan(&total).
		Error; err != nil {
		return 0, fmt.Errorf("summing unlocked hint costs: %w", err)
	}
	return total, nil
}
