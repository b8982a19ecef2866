package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gauntlet-ctf/gauntlet/internal/config"
	"github.com/gauntlet-ctf/gauntlet/internal/llm"
	"github.com/gauntlet-ctf/gauntlet/internal/notify"
	"github.com/gauntlet-ctf/gauntlet/internal/scoring"
	"github.com/gauntlet-ctf/gauntlet/internal/storage"
	"github.com/gauntlet-ctf/gauntlet/internal/teams"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ChatCompleter is the slice of the LLM client the chat handler needs.
type ChatCompleter interface {
	Complete(ctx context.Context, systemPrompt string, history []llm.Message) (string, error)
}

type Service struct {
	config    *config.Config
	storage   *storage.Storage
	engine    *scoring.Engine
	teams     *teams.Service
	chat      ChatCompleter
	announcer *notify.Announcer
}

func NewService(
	cfg *config.Config,
	store *storage.Storage,
	engine *scoring.Engine,
	teamService *teams.Service,
	chat ChatCompleter,
	announcer *notify.Announcer,
) *Service {
	return &Service{
		config:    cfg,
		storage:   store,
		engine:    engine,
		teams:     teamService,
		chat:      chat,
		announcer: announcer,
	}
}

// Register mounts all routes. Everything under /api requires a valid token;
// /api/admin additionally requires the allow-list.
func (s *Service) Register(e *echo.Echo) {
	g := e.Group("/api", s.WithAuth)

	g.GET("/me", s.HandleMe())
	g.GET("/leaderboard", s.HandleLeaderboard())

	g.POST("/teams", s.HandleCreateTeam())
	g.POST("/teams/join", s.HandleJoinTeam())
	g.POST("/teams/leave", s.HandleLeaveTeam())

	g.GET("/simulations", s.HandleListSimulations())
	g.GET("/simulations/:id", s.HandleGetSimulation())
	g.POST("/simulations/:id/hints/:index/unlock", s.HandleUnlockHint())

	g.POST("/chat", s.HandleChat())
	g.POST("/submit", s.HandleSubmitFlag())

	admin := g.Group("/admin", s.WithAdmin)
	admin.GET("/overview", s.HandleAdminOverview())
	admin.POST("/simulations", s.HandleAdminCreateSimulation())
	admin.PUT("/simulations/:id", s.HandleAdminUpdateSimulation())
	admin.DELETE("/simulations/:id", s.HandleAdminDeleteSimulation())
	admin.POST("/reset", s.HandleAdminReset())
}

// respondError maps engine and service errors onto the HTTP surface.
// Validation and authorization problems carry their message; anything
// unexpected is logged and reported generically.
func (s *Service) respondError(c echo.Context, err error) error {
	var upstream *llm.UpstreamError

	switch {
	case errors.Is(err, scoring.ErrEmptyFlag),
		errors.Is(err, scoring.ErrInvalidHintIndex),
		errors.Is(err, teams.ErrEmptyTeamName):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})

	case errors.Is(err, teams.ErrNotInTeam):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})

	case errors.Is(err, scoring.ErrSimulationNotFound),
		errors.Is(err, scoring.ErrHintNotFound),
		errors.Is(err, teams.ErrInvalidJoinCode),
		errors.Is(err, gorm.ErrRecordNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})

	case errors.Is(err, teams.ErrTeamNameTaken),
		errors.Is(err, teams.ErrTeamFull),
		errors.Is(err, teams.ErrAlreadyInTeam):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})

	case errors.As(err, &upstream):
		logrus.Errorf("upstream chat failure: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "model gateway error"})

	default:
		logrus.Errorf("internal error: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
