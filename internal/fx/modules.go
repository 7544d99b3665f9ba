package fx

import (
	"database/sql"

	"github.com/laasker/mod-arena-3v3-solo-queue/internal/api"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/compositor"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/config"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/database"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/db"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/domain"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/invariant"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/ledger"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/logger"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/queue"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/repository"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/role"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/server"
	"github.com/laasker/mod-arena-3v3-solo-queue/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideQueries(sqlDB *sql.DB) *db.Queries {
	return db.New(sqlDB)
}

// ProvideGuard panics on invariant violations everywhere but production.
func ProvideGuard(cfg *config.Config, logger zerolog.Logger) *invariant.Guard {
	return invariant.New(cfg.AppEnv != "production", logger)
}

func ProvideClassifier() *role.TableClassifier {
	return role.NewClassifier(role.DefaultTable())
}

func ProvideCompositor(classifier *role.TableClassifier, guard *invariant.Guard, logger zerolog.Logger) compositor.Compositor {
	return compositor.New(classifier, guard, logger.With().Str("component", "compositor").Logger())
}

func ProvideLedger(teams *repository.TeamRepository, cfg *config.Config, guard *invariant.Guard, logger zerolog.Logger) *ledger.RatingLedger {
	return ledger.New(teams, ledger.Config{
		Category:              domain.CategorySolo3v3,
		PenaltyDuringMatch:    cfg.Solo.PenaltyDuringMatch,
		PenaltyBeforeStart:    cfg.Solo.PenaltyBeforeStart,
		ArenaPointsMultiplier: cfg.Solo.ArenaPointsMultiplier,
	}, guard, logger)
}

func ProvideOrchestrator(
	cfg *config.Config,
	registry *queue.Registry,
	comp compositor.Compositor,
	classifier *role.TableClassifier,
	world *api.WorldClient,
	teams *repository.TeamRepository,
	history *repository.RatingHistoryRepository,
	rating *ledger.RatingLedger,
	logger zerolog.Logger,
) *service.Orchestrator {
	return service.NewOrchestrator(service.Deps{
		Config:     cfg.Solo,
		Registry:   registry,
		Compositor: comp,
		Talents:    classifier,
		Directory:  world,
		Host:       world,
		Store:      teams,
		History:    history,
		Ledger:     rating,
	}, logger)
}

// Module wires the application. The logger is reconfigured from LOG_LEVEL
// inside the app scope; config loading itself logs with the bootstrap
// logger.
func Module(invokes ...fx.Option) fx.Option {
	app := []fx.Option{
		fx.Decorate(logger.FromConfig),
		fx.Provide(database.New),
		fx.Provide(ProvideQueries),
		// repos
		fx.Provide(repository.NewTeamRepository),
		fx.Provide(repository.NewRatingHistoryRepository),
		// api client
		fx.Provide(api.NewWorldClient),
		// queue + rating
		fx.Provide(queue.NewRegistry),
		fx.Provide(ProvideGuard),
		fx.Provide(ProvideClassifier),
		fx.Provide(ProvideCompositor),
		fx.Provide(ProvideLedger),
		// svc
		fx.Provide(ProvideOrchestrator),
		// server
		fx.Provide(server.NewArenaServer),
	}

	return fx.Options(
		logger.Module,
		config.Module,
		fx.Module("solo3v3", append(app, invokes...)...),
	)
}
