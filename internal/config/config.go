package config

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for qnote.
type Config struct {
	DataRoot   string           `toml:"data_root"`
	LogDir     string           `toml:"log_dir"`
	Calendar   CalendarConfig   `toml:"calendar"`
	Recycle    RecycleConfig    `toml:"recycle"`
	Database   DatabaseConfig   `toml:"database"`
	Encryption EncryptionConfig `toml:"encryption"`
	Log        LogConfig        `toml:"log"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// CalendarConfig defines how instants map to logical days.
type CalendarConfig struct {
	UTCOffsetMinutes int `toml:"utc_offset_minutes"` // east positive, default 480 (UTC+8)
	CutoffHour       int `toml:"cutoff_hour"`        // local hour a new day starts, default 3
}

// RecycleConfig controls the recycle bin retention window.
type RecycleConfig struct {
	KeepDays int `toml:"keep_days"` // recycled assets younger than this are never purged
}

// DatabaseConfig represents configuration for the record database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite; defaults to the data root
}

// EncryptionConfig holds paths to the age key pair used for database backups.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// LogConfig holds log file rotation settings.
type LogConfig struct {
	MaxSizeMB  int  `toml:"max_size_mb"`
	MaxBackups int  `toml:"max_backups"`
	MaxAgeDays int  `toml:"max_age_days"`
	Compress   bool `toml:"compress"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	TextfilePath string `toml:"textfile_path,omitempty"` // empty disables the export
}

const (
	DefaultUTCOffsetMinutes = 8 * 60
	DefaultCutoffHour       = 3
	DefaultKeepDays         = 30
)

// NewConfig creates a Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	return &Config{
		DataRoot: filepath.Join(baseDir, "data"),
		LogDir:   filepath.Join(baseDir, "log"),
		Calendar: CalendarConfig{
			UTCOffsetMinutes: DefaultUTCOffsetMinutes,
			CutoffHour:       DefaultCutoffHour,
		},
		Recycle:  RecycleConfig{KeepDays: DefaultKeepDays},
		Database: DatabaseConfig{Type: "sqlite"},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "qnote.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "qnote.key"),
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 90,
			Compress:   true,
		},
	}
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.DataRoot == "" {
		return fmt.Errorf("data_root is required")
	}
	if !filepath.IsAbs(c.DataRoot) {
		return fmt.Errorf("data_root must be an absolute path: %s", c.DataRoot)
	}
	if c.Recycle.KeepDays < 0 {
		return fmt.Errorf("recycle.keep_days must not be negative: %d", c.Recycle.KeepDays)
	}
	if c.Recycle.KeepDays > math.MaxInt32 {
		return fmt.Errorf("recycle.keep_days too large: %d (max %d)", c.Recycle.KeepDays, math.MaxInt32)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader. Keys that are absent keep
// the values of NewConfig("") for the calendar, recycle and log sections.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	defaults := NewConfig("")
	cfg := Config{
		Calendar: defaults.Calendar,
		Recycle:  defaults.Recycle,
		Log:      defaults.Log,
	}
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to a new config file at path. An existing file is never
// overwritten.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
