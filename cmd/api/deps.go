package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/faceswap/pkg/config"
	"github.com/dmitrymomot/faceswap/pkg/httpserver"
	"github.com/dmitrymomot/faceswap/pkg/locker"
	"github.com/dmitrymomot/faceswap/pkg/logger"
	"github.com/dmitrymomot/faceswap/pkg/mongo"
	"github.com/dmitrymomot/faceswap/pkg/pg"
	"github.com/dmitrymomot/faceswap/pkg/redis"
	"github.com/dmitrymomot/faceswap/store/memstore"
	"github.com/dmitrymomot/faceswap/store/mongostore"
	"github.com/dmitrymomot/faceswap/store/pgstore"
	"github.com/dmitrymomot/faceswap/svc/billing"
	"github.com/dmitrymomot/faceswap/svc/billing/paddleprocessor"
	"github.com/dmitrymomot/faceswap/svc/billing/stripeprocessor"
	"github.com/dmitrymomot/faceswap/svc/identity"
)

var errUnknownBackend = errors.New("unknown backend")

type stores struct {
	users         identity.UserStore
	attempts      billing.AttemptStore
	subscriptions billing.SubscriptionStore
	checks        []httpserver.Check
	close         func()
}

func openStores(ctx context.Context, kind string, log *slog.Logger) (*stores, error) {
	switch strings.ToLower(kind) {
	case "mongo", "mongodb":
		cfg, err := config.Load[mongo.Config]()
		if err != nil {
			return nil, err
		}
		db, err := mongo.NewWithDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			_ = db.Client().Disconnect(context.Background())
			return nil, err
		}
		s := mongostore.New(db)
		log.Info("using mongodb store", logger.Component("store"), slog.String("database", cfg.Database))
		return &stores{
			users: s, attempts: s, subscriptions: s,
			checks: []httpserver.Check{{Name: "mongodb", Fn: mongo.Healthcheck(db.Client())}},
			close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = db.Client().Disconnect(ctx)
			},
		}, nil

	case "postgres", "pg":
		cfg, err := config.Load[pg.Config]()
		if err != nil {
			return nil, err
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := pgstore.Migrate(ctx, pool, cfg, log); err != nil {
			pool.Close()
			return nil, err
		}
		s := pgstore.New(pool)
		log.Info("using postgres store", logger.Component("store"))
		return &stores{
			users: s, attempts: s, subscriptions: s,
			checks: []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}},
			close:  pool.Close,
		}, nil

	case "memory":
		s := memstore.New()
		log.Warn("using in-memory store, data is lost on restart", logger.Component("store"))
		return &stores{users: s, attempts: s, subscriptions: s, close: func() {}}, nil

	default:
		return nil, fmt.Errorf("%w: store %q", errUnknownBackend, kind)
	}
}

type coordination struct {
	locker locker.Locker
	states identity.StateStore
	checks []httpserver.Check
	close  func()
}

// openCoordination returns the per-user locker and the OAuth state store.
// Without Redis both live in process memory, which only works for a single
// replica.
func openCoordination(ctx context.Context, useRedis bool, log *slog.Logger) (*coordination, error) {
	if !useRedis {
		log.Warn("redis disabled, locks and oauth state are process local", logger.Component("coordination"))
		return &coordination{
			locker: locker.NewMemory(),
			states: identity.NewMemoryStateStore(),
			close:  func() {},
		}, nil
	}

	cfg, err := config.Load[redis.Config]()
	if err != nil {
		return nil, err
	}
	client, err := redis.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &coordination{
		locker: locker.NewRedis(client, locker.WithKeyPrefix("faceswap:lock:")),
		states: identity.NewRedisStateStore(redis.NewStorage(client, "faceswap:oauth_state:")),
		checks: []httpserver.Check{{Name: "redis", Fn: redis.Healthcheck(client)}},
		close:  func() { _ = client.Close() },
	}, nil
}

// newCardProcessor returns nil when the selected processor has no
// credentials; card routes then answer 503.
func newCardProcessor(name string, log *slog.Logger) (billing.CardProcessor, error) {
	switch strings.ToLower(name) {
	case stripeprocessor.Name, "":
		cfg, err := config.Load[stripeprocessor.Config]()
		if err != nil {
			return nil, err
		}
		p, err := stripeprocessor.New(cfg)
		if errors.Is(err, stripeprocessor.ErrMissingSecretKey) {
			log.Warn("card payments disabled", logger.Processor(stripeprocessor.Name), logger.Error(err))
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return p, nil

	case paddleprocessor.Name:
		cfg, err := config.Load[paddleprocessor.Config]()
		if err != nil {
			return nil, err
		}
		p, err := paddleprocessor.New(cfg)
		if errors.Is(err, paddleprocessor.ErrMissingAPIKey) {
			log.Warn("card payments disabled", logger.Processor(paddleprocessor.Name), logger.Error(err))
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, fmt.Errorf("%w: card processor %q", errUnknownBackend, name)
	}
}

func newGoogleProvider(log *slog.Logger) (*identity.GoogleProvider, error) {
	cfg, err := config.Load[identity.GoogleConfig]()
	if err != nil {
		return nil, err
	}
	p, err := identity.NewGoogleProvider(cfg)
	if err != nil {
		return nil, err
	}
	log.Info("google login enabled", logger.Component("identity"))
	return p, nil
}
