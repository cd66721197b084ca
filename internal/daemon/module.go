package daemon

import (
	"context"

	"github.com/google/uuid"
	"github.com/matheus3301/tutu/internal/api"
	"github.com/matheus3301/tutu/internal/auth"
	"github.com/matheus3301/tutu/internal/bus"
	"github.com/matheus3301/tutu/internal/config"
	"github.com/matheus3301/tutu/internal/lock"
	"github.com/matheus3301/tutu/internal/logging"
	"github.com/matheus3301/tutu/internal/outbox"
	"github.com/matheus3301/tutu/internal/profile"
	"github.com/matheus3301/tutu/internal/remote"
	"github.com/matheus3301/tutu/internal/socket"
	"github.com/matheus3301/tutu/internal/status"
	"github.com/matheus3301/tutu/internal/store"
	intsync "github.com/matheus3301/tutu/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default
	ConfigPath  string // optional override; empty = ~/.tutu/config.toml
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideRemote,
			provideHolder,
			provideSocket,
			provideSender,
			provideSyncEngine,
			provideService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideConfig(p Params, logger *zap.Logger) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = profile.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	logger.Info("config loaded",
		zap.String("path", path),
		zap.String("base_url", cfg.Server.BaseURL),
		zap.String("socket_url", cfg.Server.SocketURL),
	)
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// The lock is taken as a dependency so the database is never opened by a
// second daemon on the same profile.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRemote(cfg *config.Config, logger *zap.Logger) (*remote.Client, error) {
	return remote.New(cfg.Server.BaseURL, cfg.RequestTimeout(), logger)
}

func provideHolder(db *store.DB, rc *remote.Client, b *bus.Bus, logger *zap.Logger) *auth.Holder {
	return auth.NewHolder(db, rc, b, logger)
}

func provideSocket(cfg *config.Config, m *status.Machine, logger *zap.Logger) *socket.Socket {
	return socket.New(cfg.Server.SocketURL, m, logger)
}

func provideSender(rc *remote.Client, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(rc, b, logger)
}

func provideSyncEngine(cfg *config.Config, rc *remote.Client, sock *socket.Socket, sender *outbox.Sender, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(rc, sock, sender, b, logger,
		intsync.WithPageSize(cfg.Sync.PageSize),
		intsync.WithIDGenerator(uuid.NewString),
	)
}

func provideService(p Params, holder *auth.Holder, engine *intsync.Engine, logger *zap.Logger) *api.Service {
	return api.NewService(holder, engine, p.ProfileName, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, holder *auth.Holder, engine *intsync.Engine, sender *outbox.Sender, sock *socket.Socket, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			engine.Start(ctx)
			sender.Start(ctx)

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			s, ok := holder.Restore()
			if !ok {
				logger.Info("no saved session, login required")
				return nil
			}
			go func() {
				if err := engine.SyncFromServer(ctx, s); err != nil {
					logger.Error("initial sync failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			srv.Stop(stopCtx)
			cancel()
			sock.Disconnect()
			sender.Stop()
			engine.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
