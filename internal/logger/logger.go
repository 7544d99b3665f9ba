package logger

import (
	"os"

	"github.com/laasker/mod-arena-3v3-solo-queue/internal/config"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func New() zerolog.Logger {
	return SetLevel(zerolog.DebugLevel)
}

func SetLevel(level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Caller().
		Logger()

	logger = logger.Level(level)

	return logger
}

// FromConfig replaces the bootstrap logger once LOG_LEVEL is known.
func FromConfig(cfg *config.Config, base zerolog.Logger) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		base.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	return SetLevel(level).With().Str("env", cfg.AppEnv).Logger()
}

var Module = fx.Provide(New)
