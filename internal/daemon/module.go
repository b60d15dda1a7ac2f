package daemon

import (
	"context"
	"fmt"

	"github.com/matheus3301/leadchat/internal/api"
	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/config"
	"github.com/matheus3301/leadchat/internal/dispatch"
	"github.com/matheus3301/leadchat/internal/inbox"
	"github.com/matheus3301/leadchat/internal/lock"
	"github.com/matheus3301/leadchat/internal/logging"
	"github.com/matheus3301/leadchat/internal/metrics"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/session"
	"github.com/matheus3301/leadchat/internal/status"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// localOwner is the owner id of a locally paired session with no configured owner.
const localOwner = "local"

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	OwnerID     string // overrides config owner_id when set
	SocketPath  string // optional override for testing; empty = use default
	Config      *config.Config
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
			provideMetrics,
			provideLock,
			provideBackend,
			provideInbox,
			provideSessionService,
			provideConversationService,
			provideMessageService,
			provideBroadcastService,
			provideMetricsServer,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg := p.Config
	if cfg == nil {
		loaded, err := config.LoadOrDefault(session.ConfigPath())
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if p.OwnerID != "" {
		cfg.OwnerID = p.OwnerID
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, cfg.OwnerID)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideMetrics() *metrics.Metrics {
	return metrics.New()
}

func provideLock(p Params, cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName), cfg.OwnerID)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired", zap.String("path", l.Path()))
	return l, nil
}

func provideInbox(cfg *config.Config, be *Backend, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *inbox.Inbox {
	return inbox.New(be.Provider, be.Push, b, logger, m, inbox.Options{
		PageSize: cfg.History.PageSize,
		Location: cfg.Location(),
		DefaultTiming: dispatch.Timing{
			Interval:                 cfg.Dispatch.Interval,
			BigInterval:              cfg.Dispatch.BigInterval,
			MessagesUntilBigInterval: cfg.Dispatch.MessagesUntilBigInterval,
		},
	})
}

func provideSessionService(p Params, cfg *config.Config, m *status.Machine, be *Backend, in *inbox.Inbox) *api.SessionService {
	// A nil *wa.Adapter stored in the interface would not compare equal to nil.
	var pairing api.Pairing
	if be.Adapter != nil {
		pairing = be.Adapter
	}
	return api.NewSessionService(p.SessionName, cfg.Provider.Kind, m, pairing, in, be.DB)
}

func provideConversationService(in *inbox.Inbox, b *bus.Bus, logger *zap.Logger) *api.ConversationService {
	return api.NewConversationService(in, b, logger)
}

func provideMessageService(in *inbox.Inbox, be *Backend) *api.MessageService {
	return api.NewMessageService(in, be.DB)
}

func provideBroadcastService(in *inbox.Inbox, be *Backend) *api.BroadcastService {
	return api.NewBroadcastService(in, be.DB)
}

func provideMetricsServer(cfg *config.Config, m *metrics.Metrics, machine *status.Machine, logger *zap.Logger) *metrics.Server {
	return metrics.NewServer(cfg.MetricsAddr, m, func() (string, bool) {
		return string(machine.Current()), machine.IsReady()
	}, logger)
}

func ownerFor(cfg *config.Config) string {
	if cfg.OwnerID != "" {
		return cfg.OwnerID
	}
	return localOwner
}

func registerLifecycle(
	lc fx.Lifecycle,
	cfg *config.Config,
	srv *Server,
	lk *lock.Lock,
	be *Backend,
	in *inbox.Inbox,
	ms *metrics.Server,
	machine *status.Machine,
	logger *zap.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			be.Start(ctx)

			sess := provider.Session{OwnerID: ownerFor(cfg), Token: cfg.Provider.Token}
			if err := in.Open(ctx, sess); err != nil {
				// The list is reloaded when the provider reports ready.
				logger.Warn("initial conversation load failed", zap.Error(err))
			}

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			if err := ms.Start(); err != nil {
				return fmt.Errorf("start metrics server: %w", err)
			}

			be.Connect(machine)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			srv.Stop(stopCtx)
			if err := ms.Stop(stopCtx); err != nil {
				logger.Warn("error stopping metrics server", zap.Error(err))
			}
			in.Close()
			be.Stop()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
