package config

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := NewConfig("/home/user/.local/share/qnote")
	original.Recycle.KeepDays = 7
	original.Calendar.UTCOffsetMinutes = -300
	original.Metrics.TextfilePath = "/var/lib/node_exporter/qnote.prom"

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.DataRoot != original.DataRoot {
		t.Errorf("DataRoot = %q, want %q", got.DataRoot, original.DataRoot)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Calendar != original.Calendar {
		t.Errorf("Calendar = %+v, want %+v", got.Calendar, original.Calendar)
	}
	if got.Recycle.KeepDays != 7 {
		t.Errorf("Recycle.KeepDays = %d, want 7", got.Recycle.KeepDays)
	}
	if got.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want sqlite", got.Database.Type)
	}
	if got.Encryption != original.Encryption {
		t.Errorf("Encryption = %+v, want %+v", got.Encryption, original.Encryption)
	}
	if got.Log != original.Log {
		t.Errorf("Log = %+v, want %+v", got.Log, original.Log)
	}
	if got.Metrics.TextfilePath != original.Metrics.TextfilePath {
		t.Errorf("Metrics.TextfilePath = %q, want %q", got.Metrics.TextfilePath, original.Metrics.TextfilePath)
	}
}

func TestManager_Read_Defaults(t *testing.T) {
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(`data_root = "/srv/qnote"` + "\n"))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if cfg.Calendar.UTCOffsetMinutes != DefaultUTCOffsetMinutes {
		t.Errorf("UTCOffsetMinutes = %d, want %d", cfg.Calendar.UTCOffsetMinutes, DefaultUTCOffsetMinutes)
	}
	if cfg.Calendar.CutoffHour != DefaultCutoffHour {
		t.Errorf("CutoffHour = %d, want %d", cfg.Calendar.CutoffHour, DefaultCutoffHour)
	}
	if cfg.Recycle.KeepDays != DefaultKeepDays {
		t.Errorf("KeepDays = %d, want %d", cfg.Recycle.KeepDays, DefaultKeepDays)
	}
	if cfg.Log.MaxSizeMB == 0 {
		t.Error("Log.MaxSizeMB not defaulted")
	}
}

func TestManager_Read_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "invalid toml", input: "data_root = "},
		{name: "unknown key", input: "data_roots = \"/x\"\n"},
		{name: "wrong type", input: "[recycle]\nkeep_days = \"thirty\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Manager{}
			if _, err := m.Read(strings.NewReader(tt.input)); err == nil {
				t.Error("Read() error = nil, want error")
			}
		})
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/qnote")

	if cfg.DataRoot != "/data/qnote/data" {
		t.Errorf("DataRoot = %q, want %q", cfg.DataRoot, "/data/qnote/data")
	}
	if cfg.LogDir != "/data/qnote/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/qnote/log")
	}
	if cfg.Encryption.PublicKeyPath != "/data/qnote/keys/qnote.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q", cfg.Encryption.PublicKeyPath)
	}
	if cfg.Encryption.PrivateKeyPath != "/data/qnote/keys/qnote.key" {
		t.Errorf("Encryption.PrivateKeyPath = %q", cfg.Encryption.PrivateKeyPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{name: "missing data root", modify: func(c *Config) { c.DataRoot = "" }},
		{name: "relative data root", modify: func(c *Config) { c.DataRoot = "data" }},
		{name: "negative keep days", modify: func(c *Config) { c.Recycle.KeepDays = -1 }},
		{name: "keep days beyond day range", modify: func(c *Config) { c.Recycle.KeepDays = 3_000_000_000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("/data/qnote")
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() error = nil, want error")
			}
		})
	}
}

func TestConfig_Validate_MaxKeepDays(t *testing.T) {
	cfg := NewConfig("/data/qnote")
	cfg.Recycle.KeepDays = math.MaxInt32
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil for keep_days = MaxInt32", err)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "nested", "qnote.toml")

		if err := Init(path, NewConfig(dir)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.DataRoot != filepath.Join(dir, "data") {
			t.Errorf("DataRoot = %q", got.DataRoot)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "qnote.toml")
		if err := os.WriteFile(path, []byte("# mine\n"), 0644); err != nil {
			t.Fatal(err)
		}

		if err := Init(path, NewConfig(dir)); err == nil {
			t.Fatal("Init() error = nil, want error for existing file")
		}

		data, _ := os.ReadFile(path)
		if string(data) != "# mine\n" {
			t.Error("existing config file was modified")
		}
	})
}

func TestReadFromFile_Missing(t *testing.T) {
	if _, err := ReadFromFile(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("ReadFromFile() error = nil, want error")
	}
}
