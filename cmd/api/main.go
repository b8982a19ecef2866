package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gauntlet-ctf/gauntlet/internal/api"
	"github.com/gauntlet-ctf/gauntlet/internal/config"
	"github.com/gauntlet-ctf/gauntlet/internal/llm"
	"github.com/gauntlet-ctf/gauntlet/internal/logging"
	"github.com/gauntlet-ctf/gauntlet/internal/notify"
	"github.com/gauntlet-ctf/gauntlet/internal/scoring"
	"github.com/gauntlet-ctf/gauntlet/internal/storage"
	"github.com/gauntlet-ctf/gauntlet/internal/teams"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/telebot.v4"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	setupConfig()
	logging.Init()

	cfg := config.New()

	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	store := storage.New(db)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	migrateCtx, migrateCancel := context.WithTimeout(ctx, 10*time.Second)
	defer migrateCancel()

	if err := store.Migrate(migrateCtx); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}

	engine := scoring.NewEngine(store, cfg.ClampScoreAtZero)
	teamService := teams.NewService(store)
	chatClient := llm.NewClient(
		cfg.OpenRouterBaseURL,
		cfg.OpenRouterAPIKey,
		cfg.OpenRouterModel,
		cfg.OpenRouterReferer,
		cfg.ChatTimeout,
	)

	var announcer *notify.Announcer
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		bot, err := telebot.NewBot(telebot.Settings{Token: cfg.TelegramToken})
		if err != nil {
			logrus.Fatalf("Failed to create bot: %v", err)
		}
		announcer = notify.NewAnnouncer(bot, cfg.TelegramChatID)
	}

	service := api.NewService(cfg, store, engine, teamService, chatClient, announcer)

	e := echo.New()
	e.HideBanner = true
	service.Register(e)

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil {
			logrus.Infof("server stopped: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Failed to shut down server: %v", err)
	}
}

func setupConfig() {
	config.SetupCommon()
	viper.BindEnv("telegram_token")
	viper.BindEnv("telegram_chat_id")
	viper.BindEnv("admin_emails")
}
