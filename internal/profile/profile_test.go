package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matheus3301/tutu/internal/config"
)

func TestPaths(t *testing.T) {
	base := t.TempDir()
	t.Setenv("TUTU_HOME", base)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"dir", Dir("main"), filepath.Join(base, "profiles", "main")},
		{"socket", SocketPath("work"), filepath.Join(base, "profiles", "work", "daemon.sock")},
		{"db", DBPath("work"), filepath.Join(base, "profiles", "work", "tutu.db")},
		{"log", LogPath("work"), filepath.Join(base, "profiles", "work", "logs", "tutud.log")},
		{"config", ConfigPath(), filepath.Join(base, "config.toml")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv("TUTU_HOME", t.TempDir())

	if err := EnsureDir("test"); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	info, err := os.Stat(LogDir("test"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("log dir is not a directory")
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("log dir permission = %o, want 0700", perm)
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with numbers", "work123", false},
		{"valid with hyphen", "my-profile", false},
		{"valid with underscore", "my_profile", false},
		{"valid max length", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"space", "my profile", true},
		{"dot", "my.profile", true},
		{"too long", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", true},
		{"slash", "my/profile", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	t.Setenv("TUTU_HOME", t.TempDir())

	if got := Resolve("flag"); got != "flag" {
		t.Errorf("Resolve(flag) = %q, want flag", got)
	}
	if got := Resolve(""); got != DefaultName {
		t.Errorf("Resolve() without config = %q, want %q", got, DefaultName)
	}

	if err := config.Save(ConfigPath(), &config.Config{DefaultProfile: "work"}); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "work" {
		t.Errorf("Resolve() with config = %q, want work", got)
	}
}
