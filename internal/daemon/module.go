package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/pawprox/pawchat/internal/api"
	"github.com/pawprox/pawchat/internal/auth"
	"github.com/pawprox/pawchat/internal/backend"
	"github.com/pawprox/pawchat/internal/bus"
	"github.com/pawprox/pawchat/internal/chat"
	"github.com/pawprox/pawchat/internal/config"
	"github.com/pawprox/pawchat/internal/contacts"
	"github.com/pawprox/pawchat/internal/conversation"
	"github.com/pawprox/pawchat/internal/lock"
	"github.com/pawprox/pawchat/internal/logging"
	"github.com/pawprox/pawchat/internal/profile"
	"github.com/pawprox/pawchat/internal/status"
	"github.com/pawprox/pawchat/internal/store"
	"github.com/pawprox/pawchat/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = load config.toml
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideIdentity,
			provideBackend,
			provideTransport,
			provideDirectory,
			provideConversation,
			provideController,
			provideControlService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, nil
	}
	return config.LoadOrDefault(profile.ConfigPath())
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName, cfg.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore depends on the lock so only the lock holder migrates.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
	db, result, err := store.OpenMigrated(dbPath)
	if err != nil {
		return nil, err
	}
	if result.Changed() {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("to", result.To))
	} else {
		logger.Debug("schema up to date", zap.Uint("version", result.To))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

// provideIdentity reads the profile's saved credential, falling back to a
// token in PAWCHAT_TOKEN.
func provideIdentity(p Params, db *store.DB, logger *zap.Logger) (auth.Identity, error) {
	id, err := db.GetCredential(p.ProfileName)
	if err == nil {
		logger.Info("identity loaded", zap.Int64("user_id", id.UserID))
		return id, nil
	}
	if !errors.Is(err, auth.ErrNoIdentity) {
		return auth.Identity{}, err
	}
	if token := config.EnvToken(); token != "" {
		id, err := auth.FromToken(token)
		if err != nil {
			return auth.Identity{}, fmt.Errorf("PAWCHAT_TOKEN: %w", err)
		}
		logger.Info("identity from environment", zap.Int64("user_id", id.UserID))
		return id, nil
	}
	return auth.Identity{}, fmt.Errorf("profile %q is not logged in (run pawchatctl login): %w", p.ProfileName, auth.ErrNoIdentity)
}

func provideBackend(cfg *config.Config, id auth.Identity, logger *zap.Logger) *backend.Client {
	return backend.New(cfg.APIURL, id.Token, cfg.RequestTimeout.Duration, logger)
}

func provideTransport(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *transport.Client {
	return transport.New(cfg.WSURL, b, logger)
}

func provideDirectory(api *backend.Client, id auth.Identity, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *contacts.Directory {
	return contacts.New(api, id.UserID, cfg.SearchDebounce.Duration, b, logger)
}

func provideConversation(api *backend.Client, id auth.Identity, b *bus.Bus, logger *zap.Logger) *conversation.Store {
	return conversation.New(id, api, b, logger)
}

func provideController(id auth.Identity, tr *transport.Client, dir *contacts.Directory, conv *conversation.Store, m *status.Machine, b *bus.Bus, logger *zap.Logger) *chat.Controller {
	return chat.New(id, tr, dir, conv, m, b, logger)
}

func provideControlService(p Params, ctrl *chat.Controller, b *bus.Bus, logger *zap.Logger) *api.ControlService {
	return api.NewControlService(p.ProfileName, ctrl, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, ctrl *chat.Controller, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := ctrl.Start(ctx); err != nil {
				return err
			}

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			ctrl.Close()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
