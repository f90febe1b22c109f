package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

const (
	// CompletionPolicyRounds ends the session once the configured round count
	// has been played.
	CompletionPolicyRounds = "rounds"
	// CompletionPolicyStorytellers ends the session once every player has been
	// storyteller exactly once.
	CompletionPolicyStorytellers = "every-storyteller"
)

type Config struct {
	TotalRounds              int
	CompletionPolicy         string
	CorrectGuessPoints       int
	ThemeDurationSeconds     int
	SecretDurationSeconds    int
	ClueDurationSeconds      int
	GuessDurationSeconds     int
	ResolveDelaySeconds      int
	MaxPlayers               int
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeSeconds int
	DBConnMaxIdleTimeSeconds int
}

func Default() Config {
	return Config{
		TotalRounds:              6,
		CompletionPolicy:         CompletionPolicyRounds,
		CorrectGuessPoints:       100,
		ThemeDurationSeconds:     0,
		SecretDurationSeconds:    0,
		ClueDurationSeconds:      90,
		GuessDurationSeconds:     60,
		ResolveDelaySeconds:      5,
		MaxPlayers:               12,
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           10,
		DBConnMaxLifetimeSeconds: 300,
		DBConnMaxIdleTimeSeconds: 60,
	}
}

func Load() Config {
	cfg := Default()
	if raw := os.Getenv("TOTAL_ROUNDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.TotalRounds = value
		}
	}
	if raw := os.Getenv("COMPLETION_POLICY"); raw == CompletionPolicyRounds || raw == CompletionPolicyStorytellers {
		cfg.CompletionPolicy = raw
	}
	if raw := os.Getenv("CORRECT_GUESS_POINTS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.CorrectGuessPoints = value
		}
	}
	if raw := os.Getenv("THEME_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			cfg.ThemeDurationSeconds = value
		}
	}
	if raw := os.Getenv("SECRET_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			cfg.SecretDurationSeconds = value
		}
	}
	if raw := os.Getenv("CLUE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			cfg.ClueDurationSeconds = value
		}
	}
	if raw := os.Getenv("GUESS_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			cfg.GuessDurationSeconds = value
		}
	}
	// Unlike the phase timers, the resolve delay has no manual fallback; a
	// non-positive value would strand every session at round_resolved.
	if raw := os.Getenv("RESOLVE_DELAY_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.ResolveDelaySeconds = value
		}
	}
	if raw := os.Getenv("MAX_PLAYERS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.MaxPlayers = value
		}
	}
	if raw := os.Getenv("DB_MAX_OPEN_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxOpenConns = value
		}
	}
	if raw := os.Getenv("DB_MAX_IDLE_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxIdleConns = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_LIFETIME_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxLifetimeSeconds = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_IDLE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxIdleTimeSeconds = value
		}
	}
	return cfg
}
