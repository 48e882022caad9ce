package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/trevia/db/migrations"
	"github.com/dmitrymomot/trevia/modules/account"
	profilemod "github.com/dmitrymomot/trevia/modules/profile"
	"github.com/dmitrymomot/trevia/pkg/config"
	"github.com/dmitrymomot/trevia/pkg/cookie"
	"github.com/dmitrymomot/trevia/pkg/email"
	"github.com/dmitrymomot/trevia/pkg/environment"
	"github.com/dmitrymomot/trevia/pkg/httpserver"
	"github.com/dmitrymomot/trevia/pkg/logger"
	"github.com/dmitrymomot/trevia/pkg/metrics"
	"github.com/dmitrymomot/trevia/pkg/pg"
	"github.com/dmitrymomot/trevia/pkg/redis"
	"github.com/dmitrymomot/trevia/pkg/requestid"
	"github.com/dmitrymomot/trevia/pkg/session"
	"github.com/dmitrymomot/trevia/svc/auth"
	"github.com/dmitrymomot/trevia/svc/profile"
	"github.com/dmitrymomot/trevia/svc/routeguard"
)

type Config struct {
	Env  string `env:"APP_ENV" envDefault:"development"`
	Name string `env:"APP_NAME" envDefault:"trevia"`

	HTTP    httpserver.Config
	PG      pg.Config
	Redis   redis.Config
	Cookie  cookie.Config
	Session session.Config
	Email   email.Config
	Auth    auth.Config
	Guard   routeguard.Config
	Account account.Config
	Profile profilemod.Config
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return err
	}

	env := environment.Parse(cfg.Env)
	log := logger.New(
		logger.WithEnvironment(env, cfg.Name),
		logger.WithContextExtractors(requestid.LoggerExtractor(), environment.LoggerExtractor()),
	)
	m := metrics.New()

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, migrations.FS, cfg.PG, log); err != nil {
		return err
	}
	db := pg.OpenDB(pool)
	defer db.Close()

	checks := map[string]httpserver.Check{"postgres": pg.Healthcheck(pool)}

	cookies, err := cookie.NewFromConfig(cfg.Cookie)
	if err != nil {
		return err
	}
	sessionOpts := []session.Option{session.WithConfig(cfg.Session), session.WithCookieManager(cookies)}
	if cfg.Redis.Enabled() {
		rdb, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		sessionOpts = append(sessionOpts, session.WithStore(session.NewRedisStore(rdb)))
		checks["redis"] = redis.Healthcheck(rdb)
	} else {
		log.WarnContext(ctx, "REDIS_URL not set, sessions are kept in memory")
	}
	sessions := session.New(sessionOpts...)

	mailer, err := email.New(cfg.Email)
	if err != nil {
		return err
	}

	authSvc, err := auth.NewService(cfg.Auth, auth.NewPGStorage(db), sessions, mailer,
		auth.WithLogger(log),
		auth.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	guard, err := routeguard.New(cfg.Guard, routeguard.WithLogger(log), routeguard.WithMetrics(m))
	if err != nil {
		return err
	}

	passwords := account.NewPasswordService(cfg.Account, authSvc, sessions,
		account.WithLogger(log),
		account.WithMetrics(m),
	)
	profiles := profilemod.NewService(cfg.Profile, authSvc, sessions, profile.NewPGStore(db),
		profilemod.WithLogger(log),
		profilemod.WithMetrics(m),
	)

	r := chi.NewRouter()
	r.Use(
		requestid.Middleware,
		environment.Middleware(env),
		m.Instrument,
		guard.Middleware(authSvc, sessions.Token),
	)
	r.Get("/health", httpserver.HealthHandler(log, checks))
	r.Handle("/metrics", m.Handler())
	r.Mount("/auth", account.Router(account.RouterOptions{Password: passwords}))
	r.Mount("/api/profile", profiles.API())
	profiles.RegisterPages(r)

	srv := httpserver.New(cfg.HTTP,
		httpserver.WithLogger(log),
		httpserver.WithShutdownHook(func(context.Context) error {
			return errors.Join(authSvc.Close(), sessions.Close())
		}),
	)
	return srv.Run(ctx, r)
}
