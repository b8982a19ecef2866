package api

import (
	"errors"
	"net/http"

	"github.com/gauntlet-ctf/gauntlet/internal/models"
	"github.com/gauntlet-ctf/gauntlet/internal/storage"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type simulationRequest struct {
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	SystemPrompt string                `json:"systemPrompt"`
	FlagCode     string                `json:"flagCode"`
	Type         models.SimulationType `json:"type"`
	Points       int                   `json:"points"`

	Hint1 string `json:"hint1"`
	Hint2 string `json:"hint2"`
	Hint3 string `json:"hint3"`
}

func (r *simulationRequest) validate() error {
	if r.Title == "" || r.SystemPrompt == "" || r.FlagCode == "" {
		return errors.New("title, systemPrompt and flagCode are required")
	}
	if r.Type != models.SimulationTypePractice && r.Type != models.SimulationTypeLive {
		return errors.New("type must be practice or live")
	}
	if r.Points <= 0 {
		return errors.New("points must be positive")
	}
	return nil
}

// hints builds the hint rows for the request, costs taken from the fixed
// schedule. Empty slots produce no row.
func (r *simulationRequest) hints(simulationID string) []*models.Hint {
	var hints []*models.Hint
	for i, content := range []string{r.Hint1, r.Hint2, r.Hint3} {
		if content == "" {
			continue
		}
		index := i + 1
		cost, _ := models.HintCost(index)
		hints = append(hints, &models.Hint{
			SimulationID: simulationID,
			HintIndex:    index,
			Content:      content,
			Cost:         cost,
		})
	}
	return hints
}

// adminSimulationView exposes the secrets the player view withholds.
type adminSimulationView struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	SystemPrompt string                `json:"systemPrompt"`
	FlagCode     string                `json:"flagCode"`
	Type         models.SimulationType `json:"type"`
	Points       int                   `json:"points"`
	Hints        []*models.Hint        `json:"hints"`
}

func (s *Service) HandleAdminOverview() echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		profiles, err := s.storage.ListProfiles(ctx)
		if err != nil {
			return s.respondError(c, err)
		}

		users := make([]echo.Map, 0, len(profiles))
		for _, p := range profiles {
			user := echo.Map{
				"id":       p.ID,
				"email":    p.Email,
				"username": p.Username,
				"teamName": "",
				"lastSeen": p.LastSeenAt,
			}
			if p.Team != nil {
				user["teamName"] = p.Team.Name
				user["teamScore"] = p.Team.Score
			}
			users = append(users, user)
		}

		sims, err := s.storage.ListSimulations(ctx, "")
		if err != nil {
			return s.respondError(c, err)
		}

		simViews := make([]*adminSimulationView, 0, len(sims))
		for _, sim := range sims {
			hints, err := s.storage.ListHints(ctx, sim.ID)
			if err != nil {
				return s.respondError(c, err)
			}
			simViews = append(simViews, &adminSimulationView{
				ID:           sim.ID,
				Title:        sim.Title,
				Description:  sim.Description,
				SystemPrompt: sim.SystemPrompt,
				FlagCode:     sim.FlagCode,
				Type:         sim.Type,
				Points:       sim.Points,
				Hints:        hints,
			})
		}

		teamList, err := s.storage.ListTeamsByScore(ctx)
		if err != nil {
			return s.respondError(c, err)
		}

		teamAudits := make([]echo.Map, 0, len(teamList))
		for _, team := range teamList {
			recomputed, err := s.engine.RecomputeScore(ctx, team.ID)
			if err != nil {
				return s.respondError(c, err)
			}
			teamAudits = append(teamAudits, echo.Map{
				"id":              team.ID,
				"name":            team.Name,
				"joinCode":        team.JoinCode,
				"score":           team.Score,
				"recomputedScore": recomputed,
			})
		}

		return c.JSON(http.StatusOK, echo.Map{
			"users":       users,
			"simulations": simViews,
			"teams":       teamAudits,
		})
	}
}

func (s *Service) HandleAdminCreateSimulation() echo.HandlerFunc {
	return func(c echo.Context) error {
		var req simulationRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
		}
		if err := req.validate(); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}

		sim := &models.Simulation{
			ID:           uuid.New().String(),
			Title:        req.Title,
			Description:  req.Description,
			SystemPrompt: req.SystemPrompt,
			FlagCode:     req.FlagCode,
			Type:         req.Type,
			Points:       req.Points,
		}

		if err := s.storage.Transaction(c.Request().Context(), func(tx *storage.Storage) error {
			if err := tx.CreateSimulation(c.Request().Context(), sim); err != nil {
				return err
			}
			return tx.ReplaceHints(c.Request().Context(), sim.ID, req.hints(sim.ID))
		}); err != nil {
			return s.respondError(c, err)
		}

		return c.JSON(http.StatusOK, echo.Map{"success": true, "id": sim.ID})
	}
}

// HandleAdminUpdateSimulation rewrites the simulation and replaces its whole
// hint set. Two admins editing at once means the last writer wins; the admin
// console is not built for concurrent editing.
func (s *Service) HandleAdminUpdateSimulation() echo.HandlerFunc {
	return func(c echo.Context) error {
		var req simulationRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
		}
		if err := req.validate(); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}

		simulationID := c.Param("id")
		sim := &models.Simulation{
			ID:           simulationID,
			Title:        req.Title,
			Description:  req.Description,
			SystemPrompt: req.SystemPrompt,
			FlagCode:     req.FlagCode,
			Type:         req.Type,
			Points:       req.Points,
		}

		if err := s.storage.Transaction(c.Request().Context(), func(tx *storage.Storage) error {
			if err := tx.UpdateSimulation(c.Request().Context(), sim); err != nil {
				return err
			}
			return tx.ReplaceHints(c.Request().Context(), simulationID, req.hints(simulationID))
		}); err != nil {
			return s.respondError(c, err)
		}

		return c.JSON(http.StatusOK, echo.Map{"success": true})
	}
}

func (s *Service) HandleAdminDeleteSimulation() echo.HandlerFunc {
	return func(c echo.Context) error {
		simulationID := c.Param("id")

		if err := s.storage.Transaction(c.Request().Context(), func(tx *storage.Storage) error {
			if err := tx.DeleteHintsForSimulation(c.Request().Context(), simulationID); err != nil {
				return err
			}
			return tx.DeleteSimulation(c.Request().Context(), simulationID)
		}); err != nil {
			return s.respondError(c, err)
		}

		return c.JSON(http.StatusOK, echo.Map{"success": true})
	}
}

func (s *Service) HandleAdminReset() echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := s.engine.ResetGame(c.Request().Context()); err != nil {
			return s.respondError(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"success": true})
	}
}
