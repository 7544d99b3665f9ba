package constants

import "time"

const (
	QueueDepthTTL   = 1 * time.Second
	DeserterSweep   = 1 * time.Minute
	LeaderboardSize = 50
	HistoryLimit    = 20
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// EphemeralTeamIDBase starts the id range reserved for per-match teams.
	EphemeralTeamIDBase int64 = 0xFFF00000
	TeamNameAttempts          = 100
	TeamNameMaxLength         = 24
	PlayersPerMatch           = 6
	DefaultBracket            = 80
	StartRating               = 0
	StartMatchmakerRating     = 1500
)
