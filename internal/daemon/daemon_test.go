package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/leadchat/internal/api"
	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/config"
	"github.com/matheus3301/leadchat/internal/metrics"
	"github.com/matheus3301/leadchat/internal/status"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// TestFxModuleWiring verifies the fx dependency graph resolves without errors.
func TestFxModuleWiring(t *testing.T) {
	p := Params{SessionName: "fxtest", SocketPath: "/tmp/unused.sock", Config: config.Defaults()}
	if err := fx.ValidateApp(Module(p)); err != nil {
		t.Fatalf("ValidateApp() error = %v", err)
	}
}

// TestServerServesStatus starts the gRPC server on a temp socket and queries it.
func TestServerServesStatus(t *testing.T) {
	// Use /tmp for short socket paths (macOS 104-char limit).
	tmpDir, err := os.MkdirTemp("/tmp", "leadchat-srv-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	socketPath := filepath.Join(tmpDir, "d.sock")

	machine := status.NewMachine(nil)
	_ = machine.Transition(status.AuthRequired)

	srv, err := NewServer(
		Params{SessionName: "srvtest", SocketPath: socketPath},
		zap.NewNop(),
		api.NewSessionService("srvtest", config.ProviderWhatsApp, machine, nil, nil, nil),
		api.NewConversationService(nil, nil, nil),
		api.NewMessageService(nil, nil),
		api.NewBroadcastService(nil, nil),
	)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("socket not created at %s: %v", socketPath, err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket permission = %o, want 0600", perm)
	}
	go func() { _ = srv.Start() }()

	client, err := api.Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if resp.Session != "srvtest" || resp.Provider != config.ProviderWhatsApp {
		t.Errorf("Status() = %+v", resp)
	}
	if resp.State != string(status.AuthRequired) {
		t.Errorf("state = %q, want %q", resp.State, status.AuthRequired)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	srv.Stop(stopCtx)
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket still present after Stop: %v", err)
	}
}

func TestProvideConfig(t *testing.T) {
	cfg := config.Defaults()
	got, err := provideConfig(Params{Config: cfg, OwnerID: "U7"})
	if err != nil {
		t.Fatal(err)
	}
	if got.OwnerID != "U7" || ownerFor(got) != "U7" {
		t.Errorf("OwnerID = %q, want U7", got.OwnerID)
	}
	if ownerFor(config.Defaults()) != localOwner {
		t.Errorf("ownerFor(defaults) = %q, want %q", ownerFor(config.Defaults()), localOwner)
	}

	remoteCfg := config.Defaults()
	remoteCfg.Provider.Kind = config.ProviderRemote
	if _, err := provideConfig(Params{Config: remoteCfg}); err == nil {
		t.Error("provideConfig() accepted a remote provider without base url")
	}
}

func TestRemoteBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.Provider.Kind = config.ProviderRemote
	cfg.Provider.BaseURL = "http://crm.local/api"
	cfg.OwnerID = "U1"

	machine := status.NewMachine(nil)
	be, err := provideBackend(Params{SessionName: "r"}, cfg, bus.New(), machine, metrics.New(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if be.Provider == nil || be.Push == nil {
		t.Fatal("remote backend has no provider")
	}
	if be.Adapter != nil || be.DB != nil {
		t.Error("remote backend must not open local stores")
	}
	be.Connect(machine)
	if machine.Current() != status.Booting {
		t.Errorf("state = %s, want Booting until the push stream connects", machine.Current())
	}
	be.Stop()
}

// TestLocalBackendRequiresAuth verifies an unpaired device parks the session
// in AuthRequired instead of staying in Booting.
func TestLocalBackendRequiresAuth(t *testing.T) {
	t.Setenv("LEADCHAT_HOME", t.TempDir())
	if err := os.MkdirAll(filepath.Join(os.Getenv("LEADCHAT_HOME"), "sessions", "local"), 0700); err != nil {
		t.Fatal(err)
	}

	b := bus.New()
	machine := status.NewMachine(b)
	be, err := provideBackend(Params{SessionName: "local"}, config.Defaults(), b, machine, metrics.New(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	be.Start(ctx)
	defer be.Stop()

	if be.Adapter == nil || be.DB == nil {
		t.Fatal("local backend must open the device and mirror stores")
	}
	be.Connect(machine)
	if machine.Current() != status.AuthRequired {
		t.Errorf("state = %s, want %s", machine.Current(), status.AuthRequired)
	}
}
