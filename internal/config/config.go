package config

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	PostgresDSN string `mapstructure:"postgres_dsn"`

	AuthJWTSecret string `mapstructure:"auth_jwt_secret"`
	AdminEmails   string `mapstructure:"admin_emails"`

	OpenRouterAPIKey  string        `mapstructure:"openrouter_api_key"`
	OpenRouterBaseURL string        `mapstructure:"openrouter_base_url"`
	OpenRouterModel   string        `mapstructure:"openrouter_model"`
	OpenRouterReferer string        `mapstructure:"openrouter_referer"`
	ChatTimeout       time.Duration `mapstructure:"chat_timeout"`

	// ClampScoreAtZero floors team scores at 0 when hint purchases would push
	// them negative. Off by default: a team may legitimately owe points.
	ClampScoreAtZero bool `mapstructure:"clamp_score_at_zero"`

	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID int64  `mapstructure:"telegram_chat_id"`
}

func New() *Config {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		logrus.Fatalf("unmarshalling config: %v", err)
	}
	return cfg
}

// AdminEmailList splits the comma-separated admin allow-list, trimming and
// lowercasing each entry.
func (c *Config) AdminEmailList() []string {
	var emails []string
	for _, e := range strings.Split(c.AdminEmails, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			emails = append(emails, e)
		}
	}
	return emails
}

func SetupCommon() {
	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("openrouter_base_url", "https://openrouter.ai/api")
	viper.SetDefault("openrouter_model", "meta-llama/llama-3.2-3b-instruct:free")
	viper.SetDefault("openrouter_referer", "http://localhost:8080")
	viper.SetDefault("chat_timeout", "60s")
	viper.SetDefault("clamp_score_at_zero", false)
	viper.SetEnvPrefix("GAUNTLET")

	viper.MustBindEnv("postgres_dsn")
	viper.MustBindEnv("auth_jwt_secret")
	viper.MustBindEnv("openrouter_api_key")
	viper.AutomaticEnv()
}
