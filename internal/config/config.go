package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Discord Bot
	DiscordToken string
	ChannelID    string

	// Game interpreter
	GameDir     string
	Interpreter string

	// Voting
	VoteInterval  time.Duration
	ActiveDecay   time.Duration
	MajorityRatio float64
	BufferLength  int

	// Session history (optional; empty disables the store)
	DatabaseURL string

	// Web Server
	WebBind string

	// Admin API
	JWTSecret     string
	AdminPassword string
}

func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:  os.Getenv("DISCORD_TOKEN"),
		ChannelID:     os.Getenv("CHANNEL_ID"),
		GameDir:       os.Getenv("GAME_DIR"),
		Interpreter:   getEnvDefault("INTERPRETER", "dfrotz"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		WebBind:       getEnvDefault("WEB_BIND", "0.0.0.0:3000"),
		JWTSecret:     getEnvDefault("JWT_SECRET", "dev-only-change-me"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}

	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is required")
	}
	if cfg.ChannelID == "" {
		return nil, fmt.Errorf("CHANNEL_ID is required")
	}
	if cfg.GameDir == "" {
		return nil, fmt.Errorf("GAME_DIR is required")
	}

	voteInterval, err := getEnvSeconds("VOTE_INTERVAL", 30)
	if err != nil {
		return nil, err
	}
	if voteInterval <= 0 {
		return nil, fmt.Errorf("VOTE_INTERVAL must be positive")
	}
	cfg.VoteInterval = voteInterval

	activeDecay, err := getEnvSeconds("ACTIVE_DECAY", 300)
	if err != nil {
		return nil, err
	}
	if activeDecay <= 0 {
		return nil, fmt.Errorf("ACTIVE_DECAY must be positive")
	}
	cfg.ActiveDecay = activeDecay

	ratio, err := getEnvFloat("MAJORITY_RATIO", 0.5)
	if err != nil {
		return nil, err
	}
	if ratio <= 0 || ratio > 1 {
		return nil, fmt.Errorf("MAJORITY_RATIO must be in (0, 1]")
	}
	cfg.MajorityRatio = ratio

	bufferLength, err := getEnvInt("BUFFER_LENGTH", 20)
	if err != nil {
		return nil, err
	}
	if bufferLength < 0 {
		return nil, fmt.Errorf("BUFFER_LENGTH must not be negative")
	}
	cfg.BufferLength = bufferLength

	return cfg, nil
}

func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvSeconds(key string, defaultValue int) (time.Duration, error) {
	n, err := getEnvInt(key, defaultValue)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
