// Package daemon wires the chatsync daemon with fx.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/connectivity"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/profile"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/remote/memstore"
	"github.com/matheus3301/chatsync/internal/remote/mongostore"
	"github.com/matheus3301/chatsync/internal/remote/redisstore"
	"github.com/matheus3301/chatsync/internal/store"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = load from the config file
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideCache,
			provideRemote,
			provideFeed,
			provideMetrics,
			provideManager,
			provideConversationService,
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
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName, cfg.Log.Level)
}

func (p Params) socketPath() string {
	if p.SocketPath != "" {
		return p.SocketPath
	}
	return profile.SocketPath(p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(lc fx.Lifecycle, p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.LockPath(p.ProfileName), lock.Owner{
		Profile: p.ProfileName,
		Socket:  p.socketPath(),
	})
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired", zap.Int("pid", l.Owner().PID))
	lc.Append(fx.StopHook(func() {
		if err := l.Release(); err != nil {
			logger.Warn("error releasing lock", zap.Error(err))
		}
	}))
	return l, nil
}

// provideStore depends on the lock so that two daemons never share cache.db.
func provideStore(lc fx.Lifecycle, p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.CacheDBPath(p.ProfileName)
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
		logger.Info("cache schema migrated", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("cache schema up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", db.Path()))
	lc.Append(fx.StopHook(db.Close))
	return db, nil
}

func provideCache(lc fx.Lifecycle, p Params, cfg *config.Config, db *store.DB, logger *zap.Logger) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case config.CachePebble:
		ps, err := cache.OpenPebble(profile.PebbleDir(p.ProfileName), logger)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.StopHook(ps.Close))
		logger.Info("cache backend pebble", zap.String("path", profile.PebbleDir(p.ProfileName)))
		return cache.New(ps), nil
	default:
		logger.Info("cache backend sqlite")
		return cache.New(db), nil
	}
}

func provideRemote(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (remote.Store, error) {
	switch cfg.Remote.Backend {
	case config.BackendMongo:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s, err := mongostore.Open(ctx, mongostore.Config{
			URI:        cfg.Remote.Mongo.URI,
			Database:   cfg.Remote.Mongo.Database,
			Collection: cfg.Remote.Mongo.Collection,
		}, logger)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.StopHook(s.Close))
		return s, nil
	case config.BackendRedis:
		s := redisstore.New(redisstore.Config{
			Addr:     cfg.Remote.Redis.Addr,
			Password: cfg.Remote.Redis.Password,
			DB:       cfg.Remote.Redis.DB,
			Prefix:   cfg.Remote.Redis.Prefix,
			Block:    cfg.Remote.Redis.Block.Duration,
		}, logger)
		lc.Append(fx.StopHook(s.Close))
		return s, nil
	case config.BackendMemory, "":
		s := memstore.New()
		lc.Append(fx.StopHook(s.Close))
		return s, nil
	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.Remote.Backend)
	}
}

func provideFeed(b *bus.Bus) *connectivity.Feed {
	return connectivity.NewFeed(connectivity.NewTracker(b))
}

func provideMetrics() *metrics.Metrics {
	return metrics.New()
}

func provideManager(r remote.Store, c cache.Cache, feed *connectivity.Feed, b *bus.Bus, db *store.DB, logger *zap.Logger, m *metrics.Metrics) *intsync.Manager {
	return intsync.NewManager(intsync.ManagerConfig{
		Remote:   r,
		Cache:    c,
		Source:   feed,
		Bus:      b,
		Registry: db,
		Logger:   logger,
		Metrics:  m,
	})
}

func provideConversationService(p Params, cfg *config.Config, mgr *intsync.Manager, feed *connectivity.Feed, b *bus.Bus) *api.ConversationService {
	return api.NewConversationService(p.ProfileName, cfg.Remote.Backend, mgr, feed, b)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, srv *Server, svc *api.ConversationService, mgr *intsync.Manager, r remote.Store, feed *connectivity.Feed, m *metrics.Metrics, logger *zap.Logger) {
	var (
		prober     *connectivity.Prober
		metricsSrv *http.Server
	)
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Reopen the conversations that were open at the last shutdown.
			if err := mgr.Restore(); err != nil {
				logger.Warn("restore conversations failed", zap.Error(err))
			}

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if addr := cfg.Metrics.Addr; addr != "" {
				ln, err := net.Listen("tcp", addr)
				if err != nil {
					return fmt.Errorf("listen metrics: %w", err)
				}
				mux := http.NewServeMux()
				mux.Handle("/metrics", m.Handler())
				metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server error", zap.Error(err))
					}
				}()
				logger.Info("metrics server started", zap.String("addr", ln.Addr().String()))
			}

			if cfg.Connectivity.Probe {
				prober = connectivity.NewProber(r, feed, cfg.Connectivity.Interval.Duration, cfg.Connectivity.Timeout.Duration, logger)
				prober.Start(context.Background())
			} else {
				logger.Info("connectivity probe disabled, waiting for SetConnectivity")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if prober != nil {
				prober.Stop()
			}
			svc.Shutdown()
			srv.Stop(ctx)
			mgr.Shutdown()
			if metricsSrv != nil {
				_ = metricsSrv.Shutdown(ctx)
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
