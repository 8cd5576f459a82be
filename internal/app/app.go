package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/healthtrack/healthtrack/internal/config"
	"github.com/healthtrack/healthtrack/internal/db"
	"github.com/healthtrack/healthtrack/internal/jobs"
	"github.com/healthtrack/healthtrack/internal/metrics"
	"github.com/healthtrack/healthtrack/internal/repository"
	"github.com/healthtrack/healthtrack/internal/service"
	"github.com/healthtrack/healthtrack/internal/storage"
	"github.com/healthtrack/healthtrack/internal/streak"
)

type App struct {
	Cfg           *config.Config
	DB            *sqlx.DB
	Metrics       *metrics.Metrics
	Verifier      service.IdentityVerifier
	EmailService  *service.EmailService
	StreakService *service.StreakService
	Breaker       *jobs.Breaker
	Archiver      *jobs.Archiver // nil when S3 is not configured
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(ctx, cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run database migrations
	err = db.RunMigrations(ctx, database.DB, cfg.DBDriver)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a, err := build(ctx, cfg, database)
	if err != nil {
		database.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg *config.Config, database *sqlx.DB) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	clock := streak.SystemClock{}
	tracker := streak.NewTracker(loc)

	// Repositories
	streakRepository := repository.NewStreakRepository(database)

	// Identity
	var verifier service.IdentityVerifier
	if cfg.OIDCIssuer != "" {
		verifier, err = service.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize identity provider: %w", err)
		}
	} else {
		verifier = service.NewJWTVerifier(cfg.JWTSecret)
	}

	// Services
	emailService := service.NewEmailService(
		cfg.ResendAPIKey,
		cfg.EmailFrom,
		cfg.AppURL,
		cfg.AppName,
		cfg.IsDevelopment(),
	)
	streakService := service.NewStreakService(streakRepository, tracker, clock, emailService, m)

	// Jobs
	breaker := jobs.NewBreaker(streakRepository, tracker, clock, m)

	var archiver *jobs.Archiver
	if cfg.ArchiveEnabled() {
		archiveStorage, err := storage.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		archiver, err = jobs.NewArchiver(streakRepository, archiveStorage, tracker, clock, cfg.HistoryRetentionDays, m)
		if err != nil {
			return nil, err
		}
	} else {
		slog.Info("history archive disabled (S3 not configured)")
	}

	return &App{
		Cfg:           cfg,
		DB:            database,
		Metrics:       m,
		Verifier:      verifier,
		EmailService:  emailService,
		StreakService: streakService,
		Breaker:       breaker,
		Archiver:      archiver,
	}, nil
}

// Jobs returns the maintenance jobs enabled by the configuration.
func (a *App) Jobs() []jobs.Job {
	list := []jobs.Job{a.Breaker}
	if a.Archiver != nil {
		list = append(list, a.Archiver)
	}
	return list
}

func (a *App) Close() error {
	if a.DB != nil {
		return db.Close(a.DB)
	}
	return nil
}
