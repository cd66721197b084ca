package profile

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.tutu, or $TUTU_HOME when set.
func BaseDir() string {
	if dir := os.Getenv("TUTU_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tutu")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// SocketPath returns the UDS socket path for a profile's daemon.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// DBPath returns the profile's SQLite database, which holds the saved session.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "tutu.db")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "tutud.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with owner-only permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
