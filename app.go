package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	"github.com/chedeval/progeval/internal/broadcast"
	"github.com/chedeval/progeval/internal/catalog/repository"
	catalogservice "github.com/chedeval/progeval/internal/catalog/service"
	"github.com/chedeval/progeval/internal/config"
	"github.com/chedeval/progeval/internal/database"
	"github.com/chedeval/progeval/internal/dbguard"
	evalrepo "github.com/chedeval/progeval/internal/evaluation/repository"
	evalservice "github.com/chedeval/progeval/internal/evaluation/service"
	"github.com/chedeval/progeval/internal/oidc"
	"github.com/chedeval/progeval/internal/reviewers"
	"github.com/chedeval/progeval/internal/sessions"
	"github.com/chedeval/progeval/internal/storage"
	"github.com/chedeval/progeval/internal/submissions"
	"github.com/chedeval/progeval/internal/tokens"
	"github.com/chedeval/progeval/pkg/logger"
	"github.com/chedeval/progeval/pkg/middleware"
)

const mongoAttempts = 5

// app holds the wired services shared by the router and readiness checks.
// Redis and Mongo are nil when not configured or unreachable.
type app struct {
	cfg   *config.Config
	db    *gorm.DB
	redis *redis.Client
	mongo *mongo.Client

	catalog    *catalogservice.Service
	evaluation *evalservice.Service
	reviewers  *reviewers.Service
	sessions   *sessions.Service
	blacklist  *sessions.Blacklist
	live       broadcast.Subscriber

	// verifier accepts reviewer access tokens and, when Keycloak is set up,
	// Keycloak ID tokens. idTokens is the Keycloak verifier alone.
	verifier middleware.Verifier
	idTokens middleware.Verifier
}

// migrator is implemented by the gorm repositories.
type migrator interface {
	Migrate(ctx context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, func(), error) {
	a := &app{cfg: cfg}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	db, err := database.OpenRelational(cfg.Database)
	if err != nil {
		return nil, cleanup, err
	}
	a.db = db
	closers = append(closers, func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	catalogRepo := repository.NewGormRepo(db)
	recordRepo := evalrepo.NewGormRepo(db)
	for _, m := range []migrator{catalogRepo, recordRepo} {
		if err := m.Migrate(ctx); err != nil {
			return nil, cleanup, fmt.Errorf("migrate: %w", err)
		}
	}

	guard := dbguard.New(&database.Pool{DB: db, MaxIdle: cfg.Database.MaxIdleConns}, cfg.Guard.ReadTimeout)
	a.catalog = catalogservice.New(catalogRepo, guard, catalogservice.Options{
		ReadTimeout:  cfg.Guard.ReadTimeout,
		WriteTimeout: cfg.Guard.WriteTimeout,
	})
	if cfg.Catalog.SeedFile != "" {
		seeded, err := a.catalog.SeedIfEmpty(ctx, cfg.Catalog.SeedFile)
		switch {
		case err != nil:
			logger.Warnf("catalog seed from %s failed: %v", cfg.Catalog.SeedFile, err)
		case seeded:
			logger.Infof("catalog seeded from %s", cfg.Catalog.SeedFile)
		}
	}

	if addr := cfg.Redis.Addr(); addr != "" {
		rc := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rc.Ping(pctx).Err()
		cancel()
		if err != nil {
			logger.Warnf("redis %s unreachable, continuing without it: %v", addr, err)
			_ = rc.Close()
		} else {
			a.redis = rc
			closers = append(closers, func() { _ = rc.Close() })
			logger.Infof("connected to redis at %s", addr)
		}
	}

	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, mongoAttempts)
		if err != nil {
			logger.Warnf("mongodb unreachable, using in-memory stores: %v", err)
		} else {
			a.mongo = client
			closers = append(closers, func() { _ = client.Disconnect(context.Background()) })
		}
	}

	var broker broadcast.Broker = broadcast.NewHub()
	if a.redis != nil {
		broker = broadcast.NewRedisBroker(a.redis)
	}
	a.live = broker

	deps := evalservice.Deps{
		Repo:     recordRepo,
		Guard:    guard,
		Catalog:  a.catalog,
		Notifier: broadcast.NewNotifier(broker, cfg.Broadcast.ChannelPrefix),
		Receipts: submissions.NewMemoryStore(),
	}
	if cfg.MinIO.Endpoint != "" {
		archive, err := storage.NewMinIOStorage(ctx, cfg.MinIO)
		if err != nil {
			logger.Warnf("minio unavailable, submissions will not be archived: %v", err)
		} else {
			deps.Archive = archive
		}
	}

	reviewerRepo := reviewers.Repository(reviewers.NewMemoryRepository())
	sessionRepo := sessions.Repository(sessions.NewMemoryRepository())
	if a.mongo != nil {
		mdb := a.mongo.Database(cfg.MongoDB.Database)
		if store, err := submissions.NewMongoStore(ctx, mdb.Collection("submissions")); err != nil {
			logger.Warnf("submission receipts kept in memory: %v", err)
		} else {
			deps.Receipts = store
		}
		if repo, err := reviewers.NewMongoRepository(ctx, mdb.Collection("reviewers")); err != nil {
			logger.Warnf("reviewers kept in memory: %v", err)
		} else {
			reviewerRepo = repo
		}
		if repo, err := sessions.NewMongoRepository(ctx, mdb.Collection("sessions")); err != nil {
			logger.Warnf("sessions kept in memory: %v", err)
		} else {
			sessionRepo = repo
		}
	}
	if a.redis != nil {
		sessionRepo = sessions.NewRedisRepository(a.redis, "")
	}

	a.evaluation = evalservice.New(deps, evalservice.Options{
		ReadTimeout:  cfg.Guard.ReadTimeout,
		WriteTimeout: cfg.Guard.WriteTimeout,
		URLExpiry:    cfg.MinIO.URLExpiry,
	})
	a.reviewers = reviewers.NewService(reviewerRepo)
	a.sessions = sessions.NewService(sessionRepo)
	a.blacklist = sessions.NewBlacklist(a.redis)

	var verifiers []middleware.Verifier
	if v := tokens.NewVerifier(cfg.JWT.Secret); v != nil {
		verifiers = append(verifiers, v)
	}
	kc, err := oidc.NewKeycloakVerifier(ctx, cfg.Keycloak)
	switch {
	case err != nil:
		logger.Warnf("keycloak verifier disabled: %v", err)
	case kc != nil:
		a.idTokens = kc
		verifiers = append(verifiers, kc)
	}
	a.verifier = middleware.FirstOf(verifiers...)

	return a, cleanup, nil
}
