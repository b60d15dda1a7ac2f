package daemon

import (
	"context"
	"fmt"

	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/config"
	"github.com/matheus3301/leadchat/internal/metrics"
	"github.com/matheus3301/leadchat/internal/outbox"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/provider/remote"
	"github.com/matheus3301/leadchat/internal/session"
	"github.com/matheus3301/leadchat/internal/status"
	"github.com/matheus3301/leadchat/internal/store"
	intsync "github.com/matheus3301/leadchat/internal/sync"
	"github.com/matheus3301/leadchat/internal/wa"
	"go.uber.org/zap"
)

// Backend is the selected messaging provider plus the local machinery it
// needs. Adapter and DB are nil for the remote provider.
type Backend struct {
	Provider provider.Provider
	Push     provider.PushSource
	Adapter  *wa.Adapter
	DB       *store.DB

	engine    *intsync.Engine
	runner    *outbox.Runner
	directory *wa.DirectorySync
	logger    *zap.Logger
}

func provideBackend(p Params, cfg *config.Config, b *bus.Bus, machine *status.Machine, m *metrics.Metrics, logger *zap.Logger) (*Backend, error) {
	switch cfg.Provider.Kind {
	case config.ProviderRemote:
		return newRemoteBackend(cfg, machine, m, logger)
	case config.ProviderWhatsApp:
		return newLocalBackend(p.SessionName, b, machine, m, logger)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Provider.Kind)
	}
}

func newRemoteBackend(cfg *config.Config, machine *status.Machine, m *metrics.Metrics, logger *zap.Logger) (*Backend, error) {
	client, err := remote.New(remote.Options{
		BaseURL: cfg.Provider.BaseURL,
		PushURL: cfg.Provider.PushURL,
		Timeout: cfg.Provider.Timeout.Duration,
		Machine: machine,
		Metrics: m,
		Logger:  logger.Named("remote"),
	})
	if err != nil {
		return nil, err
	}
	logger.Info("using remote provider", zap.String("base_url", cfg.Provider.BaseURL))
	return &Backend{Provider: client, Push: client, logger: logger}, nil
}

func newLocalBackend(sessionName string, b *bus.Bus, machine *status.Machine, m *metrics.Metrics, logger *zap.Logger) (*Backend, error) {
	dbPath := session.MirrorDBPath(sessionName)
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

	adapter, err := wa.NewAdapter(context.Background(), session.DeviceDBPath(sessionName), b, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	engine := intsync.NewEngine(db, b, logger)
	prov := wa.NewProvider(db, adapter, engine, b, logger)
	runner := outbox.NewRunner(db, prov, b, m, logger)
	prov.SetQueue(runner)

	handler := wa.NewEventHandler(b, machine, adapter, logger)
	adapter.RegisterEventHandler(handler.Handle)

	return &Backend{
		Provider:  prov,
		Push:      prov,
		Adapter:   adapter,
		DB:        db,
		engine:    engine,
		runner:    runner,
		directory: wa.NewDirectorySync(db, adapter, intsync.NewReconciler(db, logger), b, logger),
		logger:    logger,
	}, nil
}

// Start runs the local ingestion and outbox loops. It is a no-op for the
// remote provider, whose push loop starts with the inbox subscription.
func (be *Backend) Start(ctx context.Context) {
	if be.engine != nil {
		be.engine.Start(ctx)
	}
	if be.directory != nil {
		be.directory.Start(ctx)
	}
	if be.runner != nil {
		be.runner.Start(ctx)
	}
}

// Connect starts the local WhatsApp connection when the device is paired,
// otherwise parks the session in AuthRequired.
func (be *Backend) Connect(machine *status.Machine) {
	if be.Adapter == nil {
		return
	}
	if !be.Adapter.IsLoggedIn() {
		be.logger.Info("no credentials found, auth required")
		_ = machine.Transition(status.AuthRequired)
		return
	}
	_ = machine.Transition(status.Connecting)
	go func() {
		if err := be.Adapter.Connect(); err != nil {
			be.logger.Error("auto-connect failed", zap.Error(err))
			_ = machine.Transition(status.Error)
		}
	}()
}

// Stop tears the loops down in reverse start order.
func (be *Backend) Stop() {
	if be.runner != nil {
		be.runner.Stop()
	}
	if be.directory != nil {
		be.directory.Stop()
	}
	if be.engine != nil {
		be.engine.Stop()
	}
	if be.Adapter != nil {
		be.Adapter.Disconnect()
	}
	if be.DB != nil {
		if err := be.DB.Close(); err != nil {
			be.logger.Warn("error closing store", zap.Error(err))
		}
	}
}
