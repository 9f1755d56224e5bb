package api

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/FACorreiaa/statement-import/internal/domain/import/matcher"
	"github.com/FACorreiaa/statement-import/internal/domain/import/materializer"
	"github.com/FACorreiaa/statement-import/internal/domain/import/progress"
	importrepo "github.com/FACorreiaa/statement-import/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/statement-import/internal/domain/import/service"

	"github.com/FACorreiaa/statement-import/pkg/config"
	"github.com/FACorreiaa/statement-import/pkg/db"
)

// Options tune how dependencies are built.
type Options struct {
	// RunMigrations applies pending migrations after connecting.
	RunMigrations bool
	// Notifier receives progress events. When nil, or when NotifyPostgres
	// is set, events are also published with pg_notify on the configured
	// channel.
	Notifier       progress.Notifier
	NotifyPostgres bool
}

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	ImportRepo *importrepo.PostgresImportRepository

	// Services
	Notifier      progress.Notifier
	Matcher       *matcher.Matcher
	Materializer  *materializer.Materializer
	ImportService *importservice.ImportService
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger, opts Options) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize database
	if err := deps.initDatabase(opts.RunMigrations); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	// Initialize repositories
	if err := deps.initRepositories(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	// Initialize services
	if err := deps.initServices(opts); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and optionally runs migrations
func (d *Dependencies) initDatabase(runMigrations bool) error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        int32(d.Config.Import.MatchWorkers) + 4,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if runMigrations {
		if err := d.DB.RunMigrations(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		d.Logger.Info("database connected and migrations completed successfully")
	}
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	d.ImportRepo = importrepo.NewPostgresImportRepository(d.DB.Pool, d.Config.Import.HistoryLimit, d.Logger)

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices(opts Options) error {
	d.Notifier = opts.Notifier
	if opts.Notifier == nil || opts.NotifyPostgres {
		pg := progress.NewPgNotifier(d.DB.Pool, d.Config.Import.ProgressChannel, d.Logger)
		d.Notifier = progress.Multi(opts.Notifier, pg)
	}

	d.Matcher = matcher.New(d.ImportRepo, matcher.WithThreshold(d.Config.Import.SimilarityThreshold))
	d.Materializer = materializer.New(d.Logger)
	d.ImportService = importservice.NewImportService(
		d.Matcher,
		d.Materializer,
		d.ImportRepo,
		d.Notifier,
		d.Logger,
		importservice.WithMatchWorkers(d.Config.Import.MatchWorkers),
	)

	d.Logger.Info("services initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
