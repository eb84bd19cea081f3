package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	tmp := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	v, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := v.GetString("logging.level"); got != "info" {
		t.Errorf("logging.level = %q, want %q", got, "info")
	}
	if got := v.GetString("database.path"); got != "edgesentry.db" {
		t.Errorf("database.path = %q, want %q", got, "edgesentry.db")
	}
	if got := v.GetString("modules.telemetry.listen"); got != ":9090" {
		t.Errorf("modules.telemetry.listen = %q, want %q", got, ":9090")
	}
}

func TestLoad_ExplicitFile(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "edgesentry.yaml")
	content := []byte("logging:\n  level: debug\nmodules:\n  engine:\n    window_size: 20\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	v, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := v.GetString("logging.level"); got != "debug" {
		t.Errorf("logging.level = %q, want %q", got, "debug")
	}
	if got := v.GetInt("modules.engine.window_size"); got != 20 {
		t.Errorf("modules.engine.window_size = %d, want 20", got)
	}
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestViperConfig_SubAndTypes(t *testing.T) {
	v := viper.New()
	v.Set("modules.engine.window_size", 10)
	v.Set("modules.engine.bandwidth_save_target", 0.7)
	v.Set("modules.engine.boost_duration", "30m")
	v.Set("modules.engine.enabled", true)

	cfg := New(v).Sub("modules.engine")
	if got := cfg.GetInt("window_size"); got != 10 {
		t.Errorf("GetInt = %d, want 10", got)
	}
	if got := cfg.GetFloat64("bandwidth_save_target"); got != 0.7 {
		t.Errorf("GetFloat64 = %v, want 0.7", got)
	}
	if got := cfg.GetDuration("boost_duration"); got != 30*time.Minute {
		t.Errorf("GetDuration = %v, want 30m", got)
	}
	if !cfg.GetBool("enabled") {
		t.Error("GetBool = false, want true")
	}
	if !cfg.IsSet("window_size") {
		t.Error("IsSet(window_size) = false, want true")
	}
}

func TestViperConfig_SubMissingSection(t *testing.T) {
	cfg := New(viper.New()).Sub("modules.absent")
	if cfg == nil {
		t.Fatal("Sub returned nil for missing section")
	}
	if cfg.IsSet("anything") {
		t.Error("missing section should expose no keys")
	}
}
