package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.leadchat, or $LEADCHAT_HOME when set.
func BaseDir() string {
	if dir := os.Getenv("LEADCHAT_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".leadchat")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// SocketPath returns the UDS socket path for a session.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// LockPath returns the lock file path for a session.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// DeviceDBPath returns the whatsmeow device store path used by the local provider.
func DeviceDBPath(name string) string {
	return filepath.Join(Dir(name), "device.db")
}

// MirrorDBPath returns the local provider's message mirror path.
func MirrorDBPath(name string) string {
	return filepath.Join(Dir(name), "mirror.db")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "leadchatd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
