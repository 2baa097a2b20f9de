package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/joho/godotenv"

	"github.com/rocketscienceinc/kamisado-backend/internal/config"
	"github.com/rocketscienceinc/kamisado-backend/internal/entity"
	"github.com/rocketscienceinc/kamisado-backend/internal/kamisado"
	"github.com/rocketscienceinc/kamisado-backend/internal/service"
	"github.com/rocketscienceinc/kamisado-backend/internal/syncclient"
)

// main - a bot that joins BOT_MATCH_ID, or creates a match and waits for an opponent, and plays random legal moves.
func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(fmt.Errorf("failed to load .env file: %w", err))
	}

	conf := config.MustLoadBot()

	level := slog.LevelInfo
	if conf.LogLevel == "debug" {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, conf); err != nil {
		logger.Error("bot failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, conf *config.Bot) error {
	httpClient := &http.Client{}

	playerID, token, err := syncclient.GuestLogin(ctx, httpClient, conf.APIURL)
	if err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}

	api := syncclient.NewHTTPCoordinator(conf.APIURL, token, httpClient)

	var match *entity.Match
	if conf.MatchID == "" {
		match, err = api.CreateMatch(ctx, nil)
	} else {
		match, err = api.JoinMatch(ctx, conf.MatchID)
	}

	if err != nil {
		return fmt.Errorf("failed to enter match: %w", err)
	}

	logger.Info("bot entered match", "match_id", match.ID, "player_id", playerID, "status", match.Status)

	session := syncclient.NewSession(logger, func(context.Context) (syncclient.Rules, error) {
		return kamisado.New(), nil
	})
	session.Start(ctx)

	client := syncclient.NewClient(logger, session, api, playerID, clock.New(), syncclient.Config{})
	if err = client.SelectMatch(ctx, match.ID); err != nil {
		return fmt.Errorf("failed to select match: %w", err)
	}

	go func() {
		if runErr := client.Run(ctx, syncclient.NewWebsocketFeed(logger, conf.FeedURL, token, nil)); runErr != nil {
			logger.Error("feed stopped", "error", runErr)
		}
	}()

	final, err := service.NewBotService(logger, conf.Seed).Play(ctx, client, playerID, conf.ThinkTime)
	if err != nil {
		return err
	}

	winner := ""
	if final.Winner != nil {
		winner = *final.Winner
	}

	logger.Info("match over", "match_id", final.ID, "status", final.Status, "winner", winner, "won", winner == playerID)

	return nil
}
