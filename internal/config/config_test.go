package config

import (
	"os"
	"path/filepath"
	"testing"

	"shiftscale/internal/types"
)

func TestLoadEnvFileKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\n\nSHIFTSCALE_TEST_A=\"quoted value\"\nexport SHIFTSCALE_TEST_B=plain\nSHIFTSCALE_TEST_C=from-file\nnot a pair\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SHIFTSCALE_TEST_A", "")
	t.Setenv("SHIFTSCALE_TEST_B", "")
	t.Setenv("SHIFTSCALE_TEST_C", "from-env")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("SHIFTSCALE_TEST_A"); got != "quoted value" {
		t.Errorf("A = %q", got)
	}
	if got := os.Getenv("SHIFTSCALE_TEST_B"); got != "plain" {
		t.Errorf("B = %q", got)
	}
	if got := os.Getenv("SHIFTSCALE_TEST_C"); got != "from-env" {
		t.Errorf("C = %q, existing env should win", got)
	}
}

func TestLoadEnvFileMissing(t *testing.T) {
	err := LoadEnvFile(filepath.Join(t.TempDir(), "absent"))
	if !os.IsNotExist(err) {
		t.Fatalf("LoadEnvFile(missing) = %v, want not-exist", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("SHIFTSCALE_LAYERS", "a.shp, b.shp;;c.shp")
	t.Setenv("SHIFTSCALE_SYSTEM", "svy21")
	t.Setenv("SHIFTSCALE_TARGET_SYSTEM", "geodetic")
	t.Setenv("SHIFTSCALE_AUTOSAVE", "yes")
	t.Setenv("SHIFTSCALE_ORACLE_TABLES", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Layers) != 3 || cfg.Layers[1] != "b.shp" {
		t.Errorf("Layers = %v", cfg.Layers)
	}
	if cfg.System != types.SystemSVY21 || cfg.TargetSystem != types.SystemGeodetic {
		t.Errorf("systems = %v/%v", cfg.System, cfg.TargetSystem)
	}
	if !cfg.AutoSave {
		t.Errorf("AutoSave = false")
	}
}

func TestLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	if got := LogLevel(); got != "info" {
		t.Errorf("LogLevel() = %q, want default info", got)
	}
	t.Setenv("LOG_LEVEL", "debug")
	if got := LogLevel(); got != "debug" {
		t.Errorf("LogLevel() = %q, want debug", got)
	}
}

func TestLoadRejectsUnknownSystem(t *testing.T) {
	t.Setenv("SHIFTSCALE_SYSTEM", "utm")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown system")
	}
}

func TestConfigureLogging(t *testing.T) {
	if err := ConfigureLogging("debug"); err != nil {
		t.Fatalf("ConfigureLogging(debug): %v", err)
	}
	if err := ConfigureLogging("loud"); err == nil {
		t.Fatalf("expected error for bad level")
	}
	_ = ConfigureLogging("info")
}
