package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8470 {
		t.Errorf("Server.Port = %d, want 8470", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Toolchain.Vsim != "vsim" {
		t.Errorf("Toolchain.Vsim = %q, want vsim", cfg.Toolchain.Vsim)
	}
	if cfg.Toolchain.LicenseCheckCommand != "lmutil" {
		t.Errorf("LicenseCheckCommand = %q, want lmutil", cfg.Toolchain.LicenseCheckCommand)
	}
	if cfg.Jobs.DefaultTimeoutSecs != 3600 {
		t.Errorf("DefaultTimeoutSecs = %d, want 3600", cfg.Jobs.DefaultTimeoutSecs)
	}
	if cfg.Retention.MaxAgeHrs != 168 {
		t.Errorf("Retention.MaxAgeHrs = %d, want 168", cfg.Retention.MaxAgeHrs)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[server]
port = 9000

[toolchain]
qverify = "/opt/questa/bin/qverify"
license_check_command = "lmstat"
license_check_args = ["-c", "1717@licsrv"]

[jobs]
projects_root = "/srv/projects"
default_timeout_secs = 900
license_poll_interval = "10s"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want default 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Toolchain.Qverify != "/opt/questa/bin/qverify" {
		t.Errorf("Qverify = %q", cfg.Toolchain.Qverify)
	}
	if cfg.Toolchain.Vlog != "vlog" {
		t.Errorf("Vlog = %q, want default vlog", cfg.Toolchain.Vlog)
	}
	if len(cfg.Toolchain.LicenseCheckArgs) != 2 || cfg.Toolchain.LicenseCheckArgs[1] != "1717@licsrv" {
		t.Errorf("LicenseCheckArgs = %v", cfg.Toolchain.LicenseCheckArgs)
	}
	if cfg.Jobs.ProjectsRoot != "/srv/projects" {
		t.Errorf("ProjectsRoot = %q, want /srv/projects", cfg.Jobs.ProjectsRoot)
	}
	if cfg.Jobs.DefaultTimeoutSecs != 900 {
		t.Errorf("DefaultTimeoutSecs = %d, want 900", cfg.Jobs.DefaultTimeoutSecs)
	}
	if got := cfg.LicensePollDuration(); got != 10*time.Second {
		t.Errorf("LicensePollInterval() = %v, want 10s", got)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8470 {
		t.Errorf("Server.Port = %d, want default 8470", cfg.Server.Port)
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := Default()
	cfg.Jobs.LicensePollInterval = "not-a-duration"
	cfg.Jobs.DispatchTick = "-5s"

	if got := cfg.LicensePollDuration(); got != 30*time.Second {
		t.Errorf("LicensePollInterval() = %v, want 30s fallback", got)
	}
	if got := cfg.DispatchTickDuration(); got != 5*time.Second {
		t.Errorf("DispatchTick() = %v, want 5s fallback", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		got := ExpandPath(tt.input)
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
