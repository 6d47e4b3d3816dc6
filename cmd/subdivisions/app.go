package main

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/subdivisions/config"
	"github.com/Ramsey-B/subdivisions/internal/repositories/commune"
	"github.com/Ramsey-B/subdivisions/internal/repositories/datapoint"
	"github.com/Ramsey-B/subdivisions/internal/repositories/departement"
	"github.com/Ramsey-B/subdivisions/internal/repositories/epci"
	"github.com/Ramsey-B/subdivisions/internal/repositories/region"
	"github.com/Ramsey-B/subdivisions/internal/repositories/vintage"
	"github.com/Ramsey-B/subdivisions/pkg/catalog"
	"github.com/Ramsey-B/subdivisions/pkg/database"
	"github.com/Ramsey-B/subdivisions/pkg/events"
	"github.com/Ramsey-B/subdivisions/pkg/extractor"
	"github.com/Ramsey-B/subdivisions/pkg/httpclient"
	"github.com/Ramsey-B/subdivisions/pkg/models"
	"github.com/Ramsey-B/subdivisions/pkg/reconcile"
	"github.com/Ramsey-B/subdivisions/pkg/redis"
	"github.com/Ramsey-B/subdivisions/pkg/tracing"
	"github.com/Ramsey-B/subdivisions/pkg/validation"
)

// app holds the configuration and the connections opened by a command.
type app struct {
	cfg    *config.Config
	logger ectologger.Logger

	db       database.DB
	redis    *redis.Client
	producer *events.Producer
	vintages *vintage.Repository
	engine   *reconcile.Engine

	closers []func() error
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// close runs the registered closers in reverse order.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) connectDatabase(ctx context.Context) error {
	db, err := database.Connect(ctx, a.cfg.DatabaseDriver, a.cfg.DatabaseDSN(), database.PoolConfig{
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}
	a.db = db
	a.onClose(db.Close)
	return nil
}

func (a *app) connectRedis() error {
	if !a.cfg.RedisEnabled {
		return nil
	}
	client, err := redis.NewClient(redis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	if err != nil {
		return err
	}
	a.redis = client
	a.onClose(client.Close)
	return nil
}

func (a *app) openProducer() {
	if !a.cfg.KafkaEnabled || a.producer != nil {
		return
	}
	a.producer = events.NewProducer(events.ProducerConfig{
		Brokers:      a.cfg.KafkaBrokers,
		Topic:        a.cfg.KafkaOutputTopic,
		BatchSize:    a.cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: a.cfg.KafkaRequiredAcks,
		Compression:  a.cfg.KafkaCompression,
	}, a.logger)
	a.onClose(a.producer.Close)
}

func (a *app) setupTracing(ctx context.Context) error {
	endpoint := ""
	if a.cfg.OTLPEnabled {
		endpoint = a.cfg.OTLPEndpoint
	}
	shutdown, err := tracing.Setup(ctx, tracing.ProviderConfig{
		ServiceName: a.cfg.AppName,
		Endpoint:    endpoint,
		Insecure:    a.cfg.OTLPInsecure,
	})
	if err != nil {
		return err
	}
	a.onClose(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(ctx)
	})
	return nil
}

// connect opens every connection the reconciliation commands need and builds the engine.
func (a *app) connect(ctx context.Context) error {
	if err := a.setupTracing(ctx); err != nil {
		return err
	}
	if err := a.connectDatabase(ctx); err != nil {
		return err
	}
	if err := a.connectRedis(); err != nil {
		return err
	}
	a.openProducer()
	return a.buildEngine()
}

func (a *app) buildEngine() error {
	sources, err := sourcesFromConfig(a.cfg)
	if err != nil {
		return err
	}

	fetcher := httpclient.NewClient(httpclient.Config{
		Timeout:         a.cfg.CatalogTimeout,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
		MaxResponseSize: a.cfg.CatalogMaxDownloadBytes,
	}, a.logger)
	lister := catalog.NewDataGouvLister(fetcher, a.cfg.CatalogBaseURL, a.logger)

	db := a.db
	a.vintages = vintage.NewRepository(db, a.logger)

	deps := reconcile.Deps{
		Resolver:  catalog.NewResolver(lister, a.logger),
		Extractor: extractor.NewExtractor(fetcher, a.logger),
		Vintages:  a.vintages,

		Regions:         region.NewRepository(db, a.logger),
		Departements:    departement.NewRepository(db, a.logger),
		Communes:        commune.NewRepository(db, a.logger),
		Epcis:           epci.NewRepository(db, a.logger),
		RegionData:      datapoint.NewRepository(db, models.LevelRegion, a.logger),
		DepartementData: datapoint.NewRepository(db, models.LevelDepartement, a.logger),

		Tx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return database.WithTransaction(ctx, db, fn)
		},
		Validator: validation.New(),
		Sources:   sources,
		ReferenceTables: reconcile.ReferenceTables{
			Regions:      a.cfg.EnrichmentRegionsFile,
			Departements: a.cfg.EnrichmentDepartementsFile,
		},
		Logger: a.logger,
	}
	if a.redis != nil {
		deps.Guard = redis.NewLocker(a.redis, a.cfg.AppName+":lock:", a.cfg.RedisLockTTL)
	}
	if a.producer != nil {
		deps.Publisher = events.NewEmitter(a.producer, a.logger)
	}

	a.engine = reconcile.NewEngine(deps)
	return nil
}

// sourcesFromConfig overrides the default dataset locations with the configured ones.
func sourcesFromConfig(cfg *config.Config) (reconcile.Sources, error) {
	sources := reconcile.DefaultSources()
	if cfg.COGDatasetID != "" {
		sources.COGDatasetID = cfg.COGDatasetID
	}
	if cfg.COGMinYear > 0 {
		sources.COGMinYear = cfg.COGMinYear
	}
	if cfg.BanaticDatasetID != "" {
		sources.BanaticDatasetID = cfg.BanaticDatasetID
	}
	if cfg.ColumnEpochYear > 0 {
		sources.ColumnEpochYear = cfg.ColumnEpochYear
	}

	if cfg.CommuneRegistryDataset != "" {
		pattern, err := regexp.Compile(cfg.CommuneRegistryPattern)
		if err != nil {
			return sources, fmt.Errorf("invalid COMMUNE_REGISTRY_TITLE_PATTERN: %w", err)
		}
		if pattern.SubexpIndex("year") < 0 {
			return sources, errors.New(`COMMUNE_REGISTRY_TITLE_PATTERN must capture a named group "year"`)
		}
		sources.CommuneRegistryDatasetID = cfg.CommuneRegistryDataset
		sources.CommuneRegistryPattern = pattern
	}
	return sources, nil
}
