package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"
	"go.uber.org/fx"
)

type Config struct {
	WorldAPIURL string
	WorldAPIKey string
	DBPath      string
	ServerPort  string
	LogLevel    string
	AppEnv      string

	Solo Solo
}

// Solo holds the queue and rating tunables.
type Solo struct {
	Enable                bool
	MinLevel              int
	PenaltyDuringMatch    int
	PenaltyBeforeStart    int
	StrictRoleTriad       bool
	ArenaTesting          bool
	ArenaPointsMultiplier float64
	StopGameIncomplete    bool
	DeserterOnAFK         bool
	DeserterOnLeave       bool
	BlockForbiddenTalents bool
	FilterTalents         bool
	TickInterval          time.Duration
	DeserterDuration      time.Duration
}

// MinPlayersPerTeam is 1 in testing mode so a single candidate per side can
// start a match.
func (s Solo) MinPlayersPerTeam() int {
	if s.ArenaTesting {
		return 1
	}
	return 3
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		WorldAPIURL: getEnv("WORLD_API_URL", ""),
		WorldAPIKey: getEnv("WORLD_API_KEY", ""),
		DBPath:      getEnv("DB_PATH", "solo3v3.db"),
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		AppEnv:      getEnv("APP_ENV", "development"),
		Solo:        LoadSolo(),
	}

	if cfg.WorldAPIURL == "" {
		return nil, fmt.Errorf("WORLD_API_URL is required")
	}
	if cfg.Solo.TickInterval <= 0 {
		return nil, fmt.Errorf("SOLO3V3_TICK_INTERVAL must be positive")
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Str("app_env", cfg.AppEnv).
		Bool("solo_enabled", cfg.Solo.Enable).
		Bool("strict_role_triad", cfg.Solo.StrictRoleTriad).
		Bool("arena_testing", cfg.Solo.ArenaTesting).
		Dur("tick_interval", cfg.Solo.TickInterval).
		Msg("configuration loaded")

	return cfg, nil
}

// LoadSolo reads the SOLO3V3_* keys, falling back to defaults for missing or
// malformed values.
func LoadSolo() Solo {
	return Solo{
		Enable:                getEnvBool("SOLO3V3_ENABLE", true),
		MinLevel:              getEnvInt("SOLO3V3_MIN_LEVEL", 80),
		PenaltyDuringMatch:    getEnvInt("SOLO3V3_PENALTY_LEAVE_DURING_MATCH", 24),
		PenaltyBeforeStart:    getEnvInt("SOLO3V3_PENALTY_LEAVE_BEFORE_START", 50),
		StrictRoleTriad:       getEnvBool("SOLO3V3_STRICT_ROLE_TRIAD", false),
		ArenaTesting:          getEnvBool("SOLO3V3_ARENA_TESTING", false),
		ArenaPointsMultiplier: getEnvFloat("SOLO3V3_ARENA_POINTS_MULTI", 0.88),
		StopGameIncomplete:    getEnvBool("SOLO3V3_STOP_GAME_INCOMPLETE", true),
		DeserterOnAFK:         getEnvBool("SOLO3V3_CAST_DESERTER_ON_AFK", true),
		DeserterOnLeave:       getEnvBool("SOLO3V3_CAST_DESERTER_ON_LEAVE", true),
		BlockForbiddenTalents: getEnvBool("SOLO3V3_BLOCK_FORBIDDEN_TALENTS", false),
		FilterTalents:         getEnvBool("SOLO3V3_FILTER_TALENTS", false),
		TickInterval:          getEnvDuration("SOLO3V3_TICK_INTERVAL", 5*time.Second),
		DeserterDuration:      getEnvDuration("DESERTER_DURATION", 15*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if os.Getenv(key) == "" {
		return fallback
	}
	v, err := cast.ToIntE(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	if os.Getenv(key) == "" {
		return fallback
	}
	v, err := cast.ToBoolE(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	if os.Getenv(key) == "" {
		return fallback
	}
	v, err := cast.ToFloat64E(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if os.Getenv(key) == "" {
		return fallback
	}
	v, err := cast.ToDurationE(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

var Module = fx.Provide(Load)
