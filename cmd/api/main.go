package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/dmitrymomot/faceswap/modules/api"
	"github.com/dmitrymomot/faceswap/modules/faceswap"
	"github.com/dmitrymomot/faceswap/pkg/config"
	"github.com/dmitrymomot/faceswap/pkg/httpserver"
	"github.com/dmitrymomot/faceswap/pkg/jwt"
	"github.com/dmitrymomot/faceswap/pkg/logger"
	"github.com/dmitrymomot/faceswap/pkg/metrics"
	"github.com/dmitrymomot/faceswap/pkg/ratelimiter"
	"github.com/dmitrymomot/faceswap/pkg/requestid"
	"github.com/dmitrymomot/faceswap/svc/billing"
	"github.com/dmitrymomot/faceswap/svc/entitlement"
	"github.com/dmitrymomot/faceswap/svc/identity"
	"github.com/dmitrymomot/faceswap/svc/swap"
)

// appConfig selects the backends.
type appConfig struct {
	Store        string `env:"APP_STORE" envDefault:"mongo"`
	RedisEnabled bool   `env:"REDIS_ENABLED" envDefault:"true"`
	MetricsName  string `env:"METRICS_NAMESPACE" envDefault:"faceswap"`
}

func main() {
	logCfg, err := config.Load[logger.Config]()
	if err != nil {
		slog.Error("load logger config", logger.Error(err))
		os.Exit(1)
	}
	log := logger.NewFromConfig(logCfg, logger.WithContextExtractors(requestid.LoggerExtractor()))

	if err := run(context.Background(), log); err != nil {
		log.Error("server stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger) error {
	appCfg, err := config.Load[appConfig]()
	if err != nil {
		return err
	}
	httpCfg, err := config.Load[httpserver.Config]()
	if err != nil {
		return err
	}
	jwtCfg, err := config.Load[jwt.Config]()
	if err != nil {
		return err
	}
	limits, err := config.Load[entitlement.Limits]()
	if err != nil {
		return err
	}
	billingCfg, err := config.Load[billing.Config]()
	if err != nil {
		return err
	}
	swapCfg, err := config.Load[faceswap.Config]()
	if err != nil {
		return err
	}
	rateCfg, err := config.Load[ratelimiter.Config]()
	if err != nil {
		return err
	}

	var stopHooks []httpserver.Option

	st, err := openStores(ctx, appCfg.Store, log)
	if err != nil {
		return err
	}
	stopHooks = append(stopHooks, httpserver.WithStopHook(st.close))

	coord, err := openCoordination(ctx, appCfg.RedisEnabled, log)
	if err != nil {
		st.close()
		return err
	}
	stopHooks = append(stopHooks, httpserver.WithStopHook(coord.close))

	processor, err := newCardProcessor(billingCfg.Processor, log)
	if err != nil {
		coord.close()
		st.close()
		return err
	}

	m := metrics.New(appCfg.MetricsName)

	tokens, err := jwt.NewFromString(jwtCfg.SigningKey, jwt.WithIssuer(jwtCfg.Issuer))
	if err != nil {
		return err
	}
	identityOpts := []identity.ServiceOption{
		identity.WithLogger(log),
		identity.WithStateStore(coord.states, 0),
		identity.WithTokenTTL(jwtCfg.AccessTTL, jwtCfg.RefreshTTL),
	}
	if google, err := newGoogleProvider(log); err == nil {
		identityOpts = append(identityOpts, identity.WithOAuthProvider(google))
	} else {
		log.Warn("google login disabled", logger.Error(err))
	}
	identitySvc := identity.NewService(st.users, tokens, identityOpts...)

	engine := entitlement.NewEngine(st.users, limits,
		entitlement.WithLogger(log),
		entitlement.WithRecorder(m),
	)
	swapSvc := swap.NewService(entitlement.NewMeter(engine, st.users, coord.locker), swap.Simulated{},
		swap.WithLogger(log),
	)

	billingOpts := []billing.ServiceOption{
		billing.WithLogger(log),
		billing.WithLimits(limits),
		billing.WithRecorder(m),
	}
	if processor != nil {
		billingOpts = append(billingOpts, billing.WithCardProcessor(processor))
	}
	billingSvc := billing.NewService(billingCfg, st.users, st.attempts, st.subscriptions, coord.locker, billingOpts...)

	authLimiter, err := ratelimiter.New(rateCfg)
	if err != nil {
		return err
	}

	router := api.NewRouter(api.Options{
		Logger:          log,
		Identity:        identitySvc,
		Billing:         billingSvc,
		Swap:            swapSvc,
		Faceswap:        swapCfg,
		Limits:          limits,
		AuthLimiter:     authLimiter,
		Metrics:         m,
		ReadinessChecks: append(st.checks, coord.checks...),
	})

	opts := append([]httpserver.Option{httpserver.WithLogger(log)}, stopHooks...)
	return httpserver.NewFromConfig(httpCfg, opts...).Run(ctx, router)
}
