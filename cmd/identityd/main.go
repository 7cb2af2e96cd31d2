// Command identityd serves the identity HTTP API over redis sessions and a
// postgres or in-memory user store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/internal/httpapi"
	"github.com/MrEthical07/goIdentity/metrics/export/prometheus"
	"github.com/MrEthical07/goIdentity/storage/gormstore"
	"github.com/MrEthical07/goIdentity/storage/memstore"
	"github.com/redis/go-redis/v9"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("identityd exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: s.logLevel()}))
	slog.SetDefault(logger)

	cfg, err := goIdentity.LoadConfig(s.ConfigPath)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     s.RedisAddr,
		Password: s.RedisPassword,
		DB:       s.RedisDB,
	})
	defer rdb.Close()

	users, seeder, closeUsers, err := openUserStore(ctx, logger, s)
	if err != nil {
		return err
	}
	defer closeUsers()

	engine, err := goIdentity.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithMailer(logMailer{logger: logger}).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	if s.SeedEmail != "" {
		if err := seedUser(ctx, engine, users, seeder, s); err != nil {
			return err
		}
		logger.InfoContext(ctx, "seed user ready", "operation", "seed", "email", s.SeedEmail)
	}

	jar, err := s.Cookie.jar()
	if err != nil {
		return err
	}
	providers, err := s.OAuth2.providers()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: s.Addr,
		Handler: httpapi.NewRouter(httpapi.Options{
			Engine:       engine,
			Logger:       logger,
			Cookies:      jar,
			TrustProxy:   s.TrustProxy,
			Providers:    providers,
			Metrics:      prometheus.New(engine).Handler(),
			LoginAsRoles: s.LoginAsRoles,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("identityd listening", "addr", s.Addr, "mode", cfg.Mode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()
	logger.Info("identityd shutting down")
	return srv.Shutdown(shutdownCtx)
}

// roleSeeder is implemented by stores that can create roles and grants.
type roleSeeder interface {
	PutRole(ctx context.Context, role goIdentity.Role) error
	GrantRole(ctx context.Context, userID, index string) error
}

func openUserStore(ctx context.Context, logger *slog.Logger, s settings) (goIdentity.UserStore, roleSeeder, func(), error) {
	if s.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, users are kept in memory")
		store := memstore.New()
		return store, memSeeder{store}, func() {}, nil
	}

	db, err := gormstore.Connect(ctx, logger, s.DatabaseURL, s.DatabaseMaxConns)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := gormstore.Migrate(ctx, logger, db); err != nil {
		return nil, nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	store := gormstore.New(db)
	return store, store, closeDB, nil
}

type memSeeder struct {
	store *memstore.Store
}

func (m memSeeder) PutRole(_ context.Context, role goIdentity.Role) error {
	m.store.PutRole(role)
	return nil
}

func (m memSeeder) GrantRole(ctx context.Context, userID, index string) error {
	u, err := m.store.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	roles, err := m.store.FindRolesByIndex(ctx, []string{index})
	if err != nil {
		return err
	}
	u.Roles = append(u.Roles, roles...)
	m.store.PutUser(*u)
	return nil
}

// seedUser creates the configured account when its email is not taken.
func seedUser(ctx context.Context, engine *goIdentity.Engine, users goIdentity.UserStore, seeder roleSeeder, s settings) error {
	if s.SeedPassword == "" {
		return errors.New("IDENTITYD_SEED_PASSWORD is required with IDENTITYD_SEED_EMAIL")
	}
	if _, err := users.FindUserByEmail(ctx, s.SeedEmail); err == nil {
		return nil
	} else if !errors.Is(err, goIdentity.ErrNotFound) {
		return fmt.Errorf("look up seed user: %w", err)
	}

	hash, err := engine.Hasher().Hash(s.SeedPassword)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}
	u := &goIdentity.User{Email: s.SeedEmail, PasswordHash: hash}
	if err := users.SaveUser(ctx, u); err != nil {
		return fmt.Errorf("save seed user: %w", err)
	}
	for _, index := range s.SeedRoles {
		if err := seeder.PutRole(ctx, goIdentity.Role{ID: index, Index: index, Label: index}); err != nil {
			return fmt.Errorf("seed role %s: %w", index, err)
		}
		if err := seeder.GrantRole(ctx, u.ID, index); err != nil {
			return fmt.Errorf("grant role %s: %w", index, err)
		}
	}
	return nil
}
