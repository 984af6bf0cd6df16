// Package service wires the ingestion pipeline together and owns the
// process-level resources (database, Redis, FHIR subscription).
package service

import (
	"context"
	"database/sql"
	"fmt"

	"hemogram-alert/internal/analyzer"
	"hemogram-alert/internal/config"
	"hemogram-alert/internal/dedup"
	"hemogram-alert/internal/fhir"
	"hemogram-alert/internal/models"
	"hemogram-alert/internal/reference"
	"hemogram-alert/internal/repository"
	"hemogram-alert/internal/subscription"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// MonitorService is the composition root of the deviation monitor.
type MonitorService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger

	store        *repository.Store
	deduplicator dedup.Deduplicator
	parser       *fhir.Parser
	pipeline     *Pipeline
	subscription *subscription.Client

	subscriptionID string
}

// NewMonitorService connects the shared resources and builds every layer.
func NewMonitorService(cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &MonitorService{
		config: cfg,
		db:     db,
		logger: logger,
	}

	// The dedup cache is an explicit component owned here, never ambient
	// package state.
	switch cfg.Dedup.Backend {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		s.redisClient = redisClient
		s.deduplicator = dedup.NewRedisDeduplicator(redisClient, cfg.Dedup.KeyPrefix, cfg.Dedup.Window, logger)
	default:
		s.deduplicator = dedup.NewMemoryDeduplicator(cfg.Dedup.Window)
	}

	s.store = repository.NewStore(db, logger)
	s.parser = fhir.NewParser(logger)

	resolver := reference.NewResolver(models.ParseSex(cfg.Reference.UnknownSexBand))
	panelAnalyzer := analyzer.NewPanelAnalyzer(resolver, logger)

	s.pipeline = NewPipeline(s.parser, s.store, s.deduplicator, panelAnalyzer, logger)

	if cfg.FHIR.Subscribe {
		s.subscription = subscription.NewClient(cfg.FHIR.BaseURL, cfg.FHIR.CallbackURL, logger)
	}

	return s, nil
}

// Pipeline exposes the ingestion entry point to the transport glue.
func (s *MonitorService) Pipeline() *Pipeline {
	return s.pipeline
}

// Start registers the FHIR subscription when configured.
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info("Starting hemogram monitor",
		zap.String("dedup_backend", s.config.Dedup.Backend),
		zap.Duration("dedup_window", s.config.Dedup.Window),
		zap.String("unknown_sex_band", s.config.Reference.UnknownSexBand),
	)

	if s.subscription != nil {
		id, err := s.subscription.EnsureActive(ctx)
		if err != nil {
			return fmt.Errorf("failed to ensure FHIR subscription: %w", err)
		}
		s.subscriptionID = id
	}

	return nil
}

// Stop drains in-flight runs and closes the shared resources.
func (s *MonitorService) Stop() error {
	s.logger.Info("Stopping hemogram monitor")

	s.pipeline.Wait()

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Failed to close redis", zap.Error(err))
		}
	}
	return nil
}
