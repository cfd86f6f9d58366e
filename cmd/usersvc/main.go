package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Miraines/MoonyAndStarry/users-service/internal/adapters/db/postgres"
	rediscache "github.com/Miraines/MoonyAndStarry/users-service/internal/adapters/db/redis"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/adapters/transport/http/handler"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/app/auth/service"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/app/jwt"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/app/password"
	usersvc "github.com/Miraines/MoonyAndStarry/users-service/internal/app/user/service"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/model"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/repo"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/infra/config"
	lg "github.com/Miraines/MoonyAndStarry/users-service/internal/infra/log"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/infra/metrics"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/infra/migrate"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/infra/server"
	"github.com/Miraines/MoonyAndStarry/users-service/internal/infra/session"
)

func main() {
	app := &cli.App{
		Name:  "usersvc",
		Usage: "user management service",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "apply or revert the database schema",
				Subcommands: []*cli.Command{
					{Name: "up", Action: func(c *cli.Context) error { return runMigrations(c, true) }},
					{Name: "down", Action: func(c *cli.Context) error { return runMigrations(c, false) }},
				},
			},
			{
				Name:  "create-superuser",
				Usage: "create an administrator account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"SUPERUSER_PASSWORD"}},
					&cli.StringFlag{Name: "email"},
				},
				Action: createSuperuser,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads config, builds the logger and opens the database.
func bootstrap() (*config.Config, *zap.Logger, *session.Manager, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	zapLog := lg.Must(cfg.LogLevel)

	m := session.NewManager(zapLog)
	err = m.Init(cfg.DatabaseURL,
		session.EngineOptions{
			Echo:            cfg.DBEcho,
			PoolPrePing:     cfg.DBPoolPrePing,
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
		},
		session.SessionOptions{PrepareStmt: cfg.DBPrepareStmt},
	)
	if err != nil {
		_ = zapLog.Sync()
		return nil, nil, nil, fmt.Errorf("init database: %w", err)
	}
	return cfg, zapLog, m, nil
}

// ensureSchema runs the versioned migrations on postgres and falls back to
// AutoMigrate on sqlite, which golang-migrate is not wired for here.
func ensureSchema(ctx context.Context, m *session.Manager) error {
	dialect, err := m.Dialect()
	if err != nil {
		return err
	}
	if dialect != "postgres" {
		return m.CreateAll(ctx)
	}
	sqlDB, err := m.SQLDB()
	if err != nil {
		return err
	}
	return migrate.Up(sqlDB)
}

func newHasher(cfg *config.Config) (*password.Hasher, error) {
	return password.New(cfg.PasswordHasher, cfg.PasswordPepper)
}

func serve(c *cli.Context) error {
	cfg, zapLog, m, err := bootstrap()
	if err != nil {
		return err
	}
	defer zapLog.Sync()
	defer m.Close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DBAutoMigrate {
		if err := ensureSchema(ctx, m); err != nil {
			zapLog.Error("schema setup failed", zap.Error(err))
			return err
		}
	}

	var cache repo.UserCache = rediscache.NoopUserCache{}
	checks := map[string]handler.Pinger{"database": m}
	if cfg.RedisAddress != "" {
		redisCli := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisCli.Close()
		rc := rediscache.NewRedisUserCache(redisCli, cfg.UserCacheTTL)
		cache = rc
		checks["redis"] = rc
	} else {
		zapLog.Info("REDIS_ADDRESS not set, user cache disabled")
	}

	hasher, err := newHasher(cfg)
	if err != nil {
		return err
	}
	tokens, err := jwt.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	validate := dto.NewValidator()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(reg)

	if zapLog.Core().Enabled(zap.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	h := handler.NewHandler(
		service.New(hasher, tokens, validate, zapLog),
		usersvc.New(cache, validate, zapLog),
		rec, checks, zapLog,
	)
	router := handler.NewRouter(handler.RouterConfig{
		APIPrefix:        cfg.APIPrefix,
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: cfg.AllowCredentials,
	}, h, m, reg, zapLog)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.StartHTTPServer(gctx, cfg.HTTPAddress, router, zapLog)
	})

	if err := g.Wait(); err != nil {
		zapLog.Error("server terminated", zap.Error(err))
		return err
	}
	zapLog.Info("shutdown complete")
	return nil
}

func runMigrations(c *cli.Context, up bool) error {
	_, zapLog, m, err := bootstrap()
	if err != nil {
		return err
	}
	defer zapLog.Sync()
	defer m.Close()

	dialect, err := m.Dialect()
	if err != nil {
		return err
	}
	if dialect != "postgres" {
		if up {
			err = m.CreateAll(c.Context)
		} else {
			err = m.DropAll(c.Context)
		}
		if err != nil {
			return err
		}
		zapLog.Info("schema synced", zap.String("dialect", dialect), zap.Bool("up", up))
		return nil
	}

	sqlDB, err := m.SQLDB()
	if err != nil {
		return err
	}
	if up {
		err = migrate.Up(sqlDB)
	} else {
		err = migrate.Down(sqlDB)
	}
	if err != nil {
		return err
	}
	zapLog.Info("migrations applied", zap.Bool("up", up))
	return nil
}

func createSuperuser(c *cli.Context) error {
	cfg, zapLog, m, err := bootstrap()
	if err != nil {
		return err
	}
	defer zapLog.Sync()
	defer m.Close()

	if cfg.DBAutoMigrate {
		if err := ensureSchema(c.Context, m); err != nil {
			return err
		}
	}

	hasher, err := newHasher(cfg)
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(c.String("password"))
	if err != nil {
		return err
	}

	user := &model.User{
		Username:       dto.NormalizeUsername(c.String("username")),
		HashedPassword: hash,
		IsSuperuser:    true,
		State:          model.StateActive,
	}
	if email := dto.NormalizeEmail(c.String("email")); email != "" {
		user.Email = &email
	}
	if err := dto.NewValidator().Var(user.Username, "username"); err != nil {
		return errors.New("username may contain only lowercase letters and digits")
	}

	err = m.Scoped(c.Context, func(ctx context.Context, s *session.Session) error {
		uow := postgres.NewUnitOfWork(s)
		if err := uow.Users().CreateUser(ctx, user); err != nil {
			return err
		}
		return uow.Commit()
	})
	if err != nil {
		return err
	}
	zapLog.Info("superuser created", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	return nil
}
