package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Bot - settings of the bot player, read from the environment only.
type Bot struct {
	LogLevel  string        `env:"BOT_LOG_LEVEL" env-default:"info"`
	APIURL    string        `env:"BOT_API_URL" env-default:"http://localhost:9090"`
	FeedURL   string        `env:"BOT_FEED_URL" env-default:"ws://localhost:9091"`
	MatchID   string        `env:"BOT_MATCH_ID"`
	ThinkTime time.Duration `env:"BOT_THINK_TIME" env-default:"500ms"`
	Seed      int64         `env:"BOT_SEED" env-default:"1"`
}

func MustLoadBot() *Bot {
	config := &Bot{}

	if err := cleanenv.ReadEnv(config); err != nil {
		panic(fmt.Errorf("unable to load bot config: %w", err))
	}

	return config
}
