package api

import (
	"net/http"
	"strconv"

	"github.com/gauntlet-ctf/gauntlet/internal/llm"
	"github.com/gauntlet-ctf/gauntlet/internal/models"
	"github.com/gauntlet-ctf/gauntlet/internal/teams"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type teamView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	JoinCode string `json:"joinCode"`
	Score    int    `json:"score"`
}

type hintView struct {
	Index    int    `json:"index"`
	Cost     int    `json:"cost"`
	Unlocked bool   `json:"unlocked"`
	Content  string `json:"content,omitempty"`
}

// simulationView is what players see: never the system prompt, never the
// flag.
type simulationView struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Type        models.SimulationType `json:"type"`
	Points      int                   `json:"points"`
	Solved      bool                  `json:"solved"`
	Hints       []hintView            `json:"hints"`
}

func newTeamView(team *models.Team) *teamView {
	return &teamView{
		ID:       team.ID,
		Name:     team.Name,
		JoinCode: team.JoinCode,
		Score:    team.Score,
	}
}

func (s *Service) HandleMe() echo.HandlerFunc {
	return func(c echo.Context) error {
		profile := currentProfile(c)

		resp := echo.Map{
			"id":       profile.ID,
			"email":    profile.Email,
			"username": profile.Username,
		}
		if profile.Team != nil {
			resp["team"] = newTeamView(profile.Team)
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func (s *Service) HandleCreateTeam() echo.HandlerFunc {
	return func(c echo.Context) error {
		var req struct {
			Name string `json:"name"`
		}
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
		}

		team, err := s.teams.Create(c.Request().Context(), currentProfile(c).ID, req.Name)
		if err != nil {
			return s.respondError(c, err)
		}

		return c.JSON(http.StatusOK, echo.Map{"success": true, "team": newTeamView(team)})
	}
}

func (s *Service) HandleJoinTeam() echo.HandlerFunc {
	return func(c echo.Context) error {
		var req struct {
			Code string `json:"code"`
		}
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
		}

		team, err := s.teams.Join(c.Request().Context(), currentProfile(c).ID, req.Code)
		if err != nil {
			return s.respondError(c, err)
		}

		return c.JSON(http.StatusOK, echo.Map{"success": true, "team": newTeamView(team)})
	}
}

func (s *Service) HandleLeaveTeam() echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := s.teams.Leave(c.Request().Context(), currentProfile(c).ID); err != nil {
			return s.respondError(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"success": true})
	}
}

func (s *Service) HandleLeaderboard() echo.HandlerFunc {
	return func(c echo.Context) error {
		entries, err := s.teams.Leaderboard(c.Request().Context())
		if err != nil {
			return s.respondError(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"teams": entries})
	}
}

func (s *Service) HandleListSimulations() echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		profile := currentProfile(c)

		sims, err := s.storage.ListSimulations(ctx, models.SimulationType(c.QueryParam("type")))
		if err != nil {
			return s.respondError(c, err)
		}

		solved := map[string]bool{}
		if profile.InTeam() {
			ids, err := s.storage.ListSolvedSimulationIDs(ctx, *profile.TeamID)
			if err != nil {
				return s.respondError(c, err)
			}
			for _, id := range ids {
				solved[id] = true
			}
		}

		views := make([]*simulationView, 0, len(sims))
		for _, sim := range sims {
			view, err := s.buildSimulationView(c, sim, solved[sim.ID])
			if err != nil {
				return s.respondError(c, err)
			}
			views = append(views, view)
		}

		return c.JSON(http.StatusOK, echo.Map{"simulations": views})
	}
}

func (s *Service) HandleGetSimulation() echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		profile := currentProfile(c)

		sim, err := s.storage.GetSimulation(ctx, c.Param("id"))
		if err != nil {
			return s.respondError(c, err)
		}

		solved := false
		if profile.InTeam() {
			solved, err = s.storage.HasCorrectSubmission(ctx, *profile.TeamID, sim.ID)
			if err != nil {
				return s.respondError(c, err)
			}
		}

		view, err := s.buildSimulationView(c, sim, solved)
		if err != nil {
			return s.respondError(c, err)
		}
		return c.JSON(http.StatusOK, view)
	}
}

func (s *Service) buildSimulationView(c echo.Context, sim *models.Simulation, solved bool) (*simulationView, error) {
	ctx := c.Request().Context()
	profile := currentProfile(c)

	hints, err := s.storage.ListHints(ctx, sim.ID)
	if err != nil {
		return nil, err
	}

	unlocked := map[int]bool{}
	if profile.InTeam() {
		rows, err := s.storage.ListUnlockedHints(ctx, *profile.TeamID, sim.ID)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			unlocked[row.HintIndex] = true
		}
	}

	view := &simulationView{
		ID:          sim.ID,
		Title:       sim.Title,
		Description: sim.Description,
		Type:        sim.Type,
		Points:      sim.Points,
		Solved:      solved,
		Hints:       make([]hintView, 0, len(hints)),
	}
	for _, hint := range hints {
		hv := hintView{
			Index:    hint.HintIndex,
			Cost:     hint.Cost,
			Unlocked: unlocked[hint.HintIndex],
		}
		if hv.Unlocked {
			hv.Content = hint.Content
		}
		view.Hints = append(view.Hints, hv)
	}

	return view, nil
}

func (s *Service) HandleChat() echo.HandlerFunc {
	return func(c echo.Context) error {
		var req struct {
			SimulationID string        `json:"simulationId"`
			Messages     []llm.Message `json:"messages"`
		}
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
		}
		if req.SimulationID == "" || len(req.Messages) == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "simulationId and messages are required"})
		}
		for _, msg := range req.Messages {
			if !llm.ValidRole(msg.Role) {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid message role"})
			}
		}

		ctx := c.Request().Context()

		// The system prompt is fetched server-side by id and handed straight
		// to the gateway. It never appears in any response.
		sim, err := s.storage.GetSimulation(ctx, req.SimulationID)
		if err != nil {
			return s.respondError(c, err)
		}

		content, err := s.chat.Complete(ctx, sim.SystemPrompt, req.Messages)
		if err != nil {
			return s.respondError(c, err)
		}

		return c.JSON(http.StatusOK, echo.Map{"content": content})
	}
}

func (s *Service) HandleSubmitFlag() echo.HandlerFunc {
	return func(c echo.Context) error {
		var req struct {
			SimulationID string `json:"simulationId"`
			Flag         string `json:"flag"`
		}
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
		}

		profile := currentProfile(c)
		if !profile.InTeam() {
			return s.respondError(c, teams.ErrNotInTeam)
		}

		ctx := c.Request().Context()
		result, err := s.engine.SubmitFlag(ctx, req.SimulationID, *profile.TeamID, profile.ID, req.Flag)
		if err != nil {
			return s.respondError(c, err)
		}

		if result.FirstSolve() {
			s.announceSolve(c, req.SimulationID, *profile.TeamID, result.PointsAwarded)
		}

		return c.JSON(http.StatusOK, result)
	}
}

func (s *Service) announceSolve(c echo.Context, simulationID, teamID string, points int) {
	if s.announcer == nil {
		return
	}

	ctx := c.Request().Context()
	team, err := s.storage.GetTeam(ctx, teamID)
	if err != nil {
		logrus.Errorf("failed to load team for announcement: %v", err)
		return
	}
	sim, err := s.storage.GetSimulation(ctx, simulationID)
	if err != nil {
		logrus.Errorf("failed to load simulation for announcement: %v", err)
		return
	}

	s.announcer.AnnounceSolve(team.Name, sim.Title, points)
}

func (s *Service) HandleUnlockHint() echo.HandlerFunc {
	return func(c echo.Context) error {
		profile := currentProfile(c)
		if !profile.InTeam() {
			return s.respondError(c, teams.ErrNotInTeam)
		}

		// A non-numeric index falls through as 0 and fails validation in the
		// engine before any storage access.
		index, _ := strconv.Atoi(c.Param("index"))

		result, err := s.engine.UnlockHint(c.Request().Context(), c.Param("id"), *profile.TeamID, index)
		if err != nil {
			return s.respondError(c, err)
		}

		return c.JSON(http.StatusOK, result)
	}
}
