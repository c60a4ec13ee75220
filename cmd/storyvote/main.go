package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/yukawat/storyvote/internal/activity"
	"github.com/yukawat/storyvote/internal/api"
	"github.com/yukawat/storyvote/internal/bot"
	"github.com/yukawat/storyvote/internal/config"
	"github.com/yukawat/storyvote/internal/history"
	"github.com/yukawat/storyvote/internal/session"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Session history is optional; without DATABASE_URL the bot runs
	// stateless.
	var store *history.Store
	if cfg.DatabaseURL != "" {
		store, err = history.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer store.Close()

		if err := store.RunMigrations(context.Background()); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Initialize Discord bot
	discordBot, err := bot.New(cfg.DiscordToken, cfg.ChannelID)
	if err != nil {
		log.Fatalf("Failed to create discord bot: %v", err)
	}

	// Initialize the session coordinator with the bot as its channel
	// notifier
	tracker := activity.NewTracker(cfg.ActiveDecay, cfg.MajorityRatio)
	sessionCfg := session.Config{
		Notifier:     discordBot,
		Tracker:      tracker,
		GameDir:      cfg.GameDir,
		Interpreter:  cfg.Interpreter,
		VoteInterval: cfg.VoteInterval,
		BufferLength: cfg.BufferLength,
	}
	if store != nil {
		sessionCfg.Recorder = store
	}
	coord := session.New(sessionCfg)
	discordBot.SetCoordinator(coord)

	// Initialize API server
	apiServer := api.New(cfg, coord, store)

	// Start the coordinator's output poll worker
	coord.Start()
	defer coord.Shutdown()

	// Start Discord bot
	if err := discordBot.Start(); err != nil {
		log.Fatalf("Failed to start discord bot: %v", err)
	}
	defer discordBot.Stop()

	// Start API server
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("API server error: %v", err)
		}
	}()

	// Wait for signal to stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
}
