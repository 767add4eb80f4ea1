package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config represents the bot configuration
type Config struct {
	BotToken         string        `env:"BOT_TOKEN"`
	AdminIDs         []int         `env:"ADMIN_IDS" env-separator:","`
	DBPath           string        `env:"DB_PATH" env-default:"./bot.db"`
	BroadcastWorkers int           `env:"BROADCAST_WORKERS" env-default:"10"`
	BroadcastDelay   time.Duration `env:"BROADCAST_DELAY" env-default:"0s"`
	SessionTTL       time.Duration `env:"SESSION_TTL" env-default:"30m"`
	Env              string        `env:"ENV" env-default:"local"`
	LogPath          string        `env:"LOG_PATH" env-default:"./bot.log"`
}

// LoadConfig loads configuration from a .env file (when present) and
// environment variables
func LoadConfig() (*Config, error) {
	config := &Config{}

	var err error
	if _, statErr := os.Stat(".env"); statErr == nil {
		err = cleanenv.ReadConfig(".env", config)
	} else {
		err = cleanenv.ReadEnv(config)
	}
	if err != nil {
		desc, _ := cleanenv.GetDescription(config, nil)
		return nil, fmt.Errorf("config: %w; %s", err, desc)
	}

	if config.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}
	if len(config.AdminIDs) == 0 {
		return nil, fmt.Errorf("ADMIN_IDS is required")
	}

	return config, nil
}

// IsAdmin checks if a telegram id belongs to an administrator
func (c *Config) IsAdmin(userID int) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
