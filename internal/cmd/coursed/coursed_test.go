package coursed

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseConfigDefaults(t *testing.T) {
	t.Setenv("COURSE_LOG_LEVEL", "")
	os.Unsetenv("COURSE_LOG_LEVEL")

	cfg, err := ParseConfig(flag.NewFlagSet("coursed", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.ConfigPath != defaultConfigPath {
		t.Errorf("expected config path %q, got %q", defaultConfigPath, cfg.ConfigPath)
	}
	if cfg.CoursePath != "" {
		t.Errorf("expected empty course path, got %q", cfg.CoursePath)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected log level info, got %q", cfg.LogLevel)
	}
	if cfg.Env == nil {
		t.Fatal("expected env to be parsed")
	}
}

func TestParseConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("COURSE_LOG_LEVEL", "warn")
	t.Setenv("COURSE_MQTT_URL", "tcp://broker:1883")

	cfg, err := ParseConfig(flag.NewFlagSet("coursed", flag.ContinueOnError), []string{
		"-config", "/etc/coursed.yaml",
		"-course", "courses/module1-trial.yaml",
		"-log-level", "debug",
	})
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.ConfigPath != "/etc/coursed.yaml" {
		t.Errorf("unexpected config path %q", cfg.ConfigPath)
	}
	if cfg.CoursePath != "courses/module1-trial.yaml" {
		t.Errorf("unexpected course path %q", cfg.CoursePath)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected flag to win, got %q", cfg.LogLevel)
	}
	if cfg.Env.MQTTURL != "tcp://broker:1883" {
		t.Errorf("expected env MQTT URL, got %q", cfg.Env.MQTTURL)
	}
}

func TestParseConfigUnknownFlag(t *testing.T) {
	fs := flag.NewFlagSet("coursed", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if _, err := ParseConfig(fs, []string{"-bogus"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestParseConfigBadEnv(t *testing.T) {
	t.Setenv("COURSE_HTTP_PORT", "not-a-port")
	if _, err := ParseConfig(flag.NewFlagSet("coursed", flag.ContinueOnError), nil); err == nil {
		t.Fatal("expected error for invalid COURSE_HTTP_PORT")
	}
}

func TestNewLoggerLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := NewLogger(tt.in).GetLevel(); got != tt.want {
			t.Errorf("NewLogger(%q) level = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRunFailsOnMissingConfig(t *testing.T) {
	cfg := Config{
		ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"),
		LogLevel:   "error",
	}
	if err := Run(t.Context(), cfg); err == nil {
		t.Fatal("expected error for missing service config")
	}
}
