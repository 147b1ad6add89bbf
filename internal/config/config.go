package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Toolchain ToolchainConfig `toml:"toolchain"`
	Jobs      JobsConfig      `toml:"jobs"`
	Retention RetentionConfig `toml:"retention"`
	Database  DatabaseConfig  `toml:"database"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// ToolchainConfig names the simulator and formal tool binaries. Plain
// names resolve through PATH; absolute paths pin a specific install.
type ToolchainConfig struct {
	Vlog    string `toml:"vlog"`
	Vopt    string `toml:"vopt"`
	Vsim    string `toml:"vsim"`
	Qverify string `toml:"qverify"`

	LicenseCheckCommand string   `toml:"license_check_command"`
	LicenseCheckArgs    []string `toml:"license_check_args"`
}

// JobsConfig holds execution settings
type JobsConfig struct {
	WorkspaceRoot          string `toml:"workspace_root"`
	ProjectsRoot           string `toml:"projects_root"`
	DefaultTimeoutSecs     int    `toml:"default_timeout_secs"`
	StderrTailLines        int    `toml:"stderr_tail_lines"`
	LicensePollInterval string `toml:"license_poll_interval"`
	DispatchTick        string `toml:"dispatch_tick"`
}

// RetentionConfig controls cleanup of finished job workspaces
type RetentionConfig struct {
	Schedule  string `toml:"schedule"` // cron expression
	MaxAgeHrs int    `toml:"max_age_hours"`
}

// DatabaseConfig holds persistence settings
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8470,
		},
		Toolchain: ToolchainConfig{
			Vlog:                "vlog",
			Vopt:                "vopt",
			Vsim:                "vsim",
			Qverify:             "qverify",
			LicenseCheckCommand: "lmutil",
			LicenseCheckArgs:    []string{"lmstat", "-a"},
		},
		Jobs: JobsConfig{
			WorkspaceRoot:          filepath.Join(home, ".questad", "workspaces"),
			ProjectsRoot:           "",
			DefaultTimeoutSecs:     3600,
			StderrTailLines:        20,
			LicensePollInterval: "30s",
			DispatchTick:        "5s",
		},
		Retention: RetentionConfig{
			Schedule:  "0 3 * * *",
			MaxAgeHrs: 168,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(home, ".questad", "questad.db"),
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.Jobs.WorkspaceRoot = ExpandPath(cfg.Jobs.WorkspaceRoot)
	cfg.Jobs.ProjectsRoot = ExpandPath(cfg.Jobs.ProjectsRoot)
	cfg.Database.Path = ExpandPath(cfg.Database.Path)

	return cfg, nil
}

// LicensePollDuration parses the configured poll interval, falling back to
// the default on a bad value.
func (c *Config) LicensePollDuration() time.Duration {
	return parseDuration(c.Jobs.LicensePollInterval, 30*time.Second)
}

// DispatchTickDuration parses the configured dispatch retry interval.
func (c *Config) DispatchTickDuration() time.Duration {
	return parseDuration(c.Jobs.DispatchTick, 5*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "questad", "config.toml")
}
