package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("QNOTE_CONFIG_PATH", "/custom/qnote.toml")
		t.Setenv("QNOTE_HOME", "/custom/qnote")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/custom/qnote.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/custom/qnote.toml")
		}
		if defaults["base_dir"] != "/custom/qnote" {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], "/custom/qnote")
		}
		if defaults["log_dir"] != "/custom/qnote/log" {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], "/custom/qnote/log")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("QNOTE_CONFIG_PATH", "")
		t.Setenv("QNOTE_HOME", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "qnote.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "qnote")
		if defaults["base_dir"] != wantBase {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], wantBase)
		}
	})
}
