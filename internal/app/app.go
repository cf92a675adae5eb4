package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"trunk-connector/internal/audit"
	"trunk-connector/internal/config"
	"trunk-connector/internal/connector"
	"trunk-connector/internal/media"
	"trunk-connector/internal/store"
	"trunk-connector/internal/telephony"
	"trunk-connector/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// App holds the process-wide dependencies shared by the API server and the CLI.
type App struct {
	Config      config.Config
	Log         *slog.Logger
	DB          *sql.DB
	Redis       *redis.Client
	NATS        *nats.Conn
	Coordinator *connector.Coordinator

	closers []func()
}

// Options tweak how Open wires dependencies.
type Options struct {
	// Migrate applies pending schema migrations before the store is used.
	Migrate bool
}

// Open connects Postgres, the optional Redis and NATS backends, and builds the Coordinator.
// Close must be called to release whatever was opened, including on error paths after Open returns.
func Open(ctx context.Context, cfg config.Config, log *slog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Log: log}

	if opts.Migrate {
		if err := MigrateUp(cfg); err != nil {
			return nil, err
		}
	}

	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, func() { _ = db.Close() })

	locker, err := a.openLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	events, err := a.openEvents()
	if err != nil {
		a.Close()
		return nil, err
	}

	coord, err := connector.NewCoordinator(connector.Deps{
		Carriers: telephony.NewTwilioFactory(telephony.TwilioOptions{DomainPrefix: cfg.Connector.TrunkDomainPrefix}),
		Media:    media.NewLiveKit(cfg.LiveKit.URL, cfg.LiveKit.APIKey, cfg.LiveKit.APISecret),
		Store:    store.NewPostgres(db, store.Base64Codec{}),
		Locker:   locker,
		Audit:    audit.NewService(audit.NewPostgresRepo(db)),
		Events:   events,
		Logger:   log,
	}, connector.OptionsFromConfig(cfg.LiveKit, cfg.Connector))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Coordinator = coord
	return a, nil
}

func (a *App) openLocker(ctx context.Context) (connector.Locker, error) {
	addr := a.Config.RedisAddr()
	if addr == "" {
		a.Log.Warn("REDIS_HOST not set; provisioning locks are process-local")
		return connector.NewLocalLocker(), nil
	}
	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: addr, Password: a.Config.Redis.Password})
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.Redis = rdb
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	return connector.NewRedisLocker(rdb, a.Config.Connector.LockTTL, a.Log)
}

func (a *App) openEvents() (connector.Publisher, error) {
	if a.Config.NATS.URL == "" {
		return nil, nil
	}
	nc, err := nats.Connect(a.Config.NATS.URL, nats.Name("trunk-connector"))
	if err != nil {
		return nil, fmt.Errorf("nats: %w", err)
	}
	a.NATS = nc
	a.closers = append(a.closers, func() { _ = nc.Drain() })
	return connector.NewNATSPublisher(nc, a.Config.NATS.Subject), nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// MigrateUp applies the embedded schema migrations on a dedicated connection.
func MigrateUp(cfg config.Config) error {
	m, err := store.NewMigrator(cfg.PostgresURL())
	if err != nil {
		return err
	}
	return errors.Join(m.Up(), m.Close())
}
