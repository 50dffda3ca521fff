package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/albmarin/umongo/config"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9090
  read_timeout: 15s

store:
  driver: "sqlite"
  dsn: ":memory:"

schemas:
  dir: "./testdata/schemas"
  watch: true

logging:
  level: "debug"
  format: "console"
`

	cfg := writeAndLoad(t, content)

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %s, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout = %v, want 15s", cfg.Server.ReadTimeout)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %s, want sqlite", cfg.Store.Driver)
	}
	if cfg.Store.DSN != ":memory:" {
		t.Errorf("Store.DSN = %s, want :memory:", cfg.Store.DSN)
	}
	if cfg.Schemas.Dir != "./testdata/schemas" {
		t.Errorf("Schemas.Dir = %s, want ./testdata/schemas", cfg.Schemas.Dir)
	}
	if !cfg.Schemas.Watch {
		t.Error("Schemas.Watch = false, want true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s, want debug", cfg.Logging.Level)
	}
}

func TestLoad_Defaults(t *testing.T) {
	content := `
schemas:
  dir: "./schemas"
`

	cfg := writeAndLoad(t, content)

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Host = %s, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("default Store.Driver = %s, want sqlite", cfg.Store.Driver)
	}
	if cfg.Store.DSN != "umongo.db" {
		t.Errorf("default Store.DSN = %s, want umongo.db", cfg.Store.DSN)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default Logging.Level = %s, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("default Logging.Format = %s, want json", cfg.Logging.Format)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("default Metrics.Path = %s, want /metrics", cfg.Metrics.Path)
	}
}

func TestLoad_InvalidDriver(t *testing.T) {
	content := `
store:
  driver: "postgres"
schemas:
  dir: "./schemas"
`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err == nil {
		t.Fatal("Load() accepted an unknown store driver")
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	content := `
schemas:
  dir: "./schemas"
logging:
  level: "verbose"
`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err == nil {
		t.Fatal("Load() accepted an unknown log level")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_SCHEMA_DIR", "/var/lib/umongo/schemas")

	content := `
schemas:
  dir: "${TEST_SCHEMA_DIR}"
`

	cfg := writeAndLoad(t, content)

	if cfg.Schemas.Dir != "/var/lib/umongo/schemas" {
		t.Errorf("Schemas.Dir = %s, want /var/lib/umongo/schemas", cfg.Schemas.Dir)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("UMONGO_SERVER_PORT", "9999")
	t.Setenv("UMONGO_STORE_DRIVER", "memory")

	content := `
server:
  port: 8080
store:
  driver: "sqlite"
schemas:
  dir: "./schemas"
`

	cfg := writeAndLoad(t, content)

	if cfg.Server.Port != 9999 {
		t.Errorf("Port = %d, want env override 9999", cfg.Server.Port)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("Store.Driver = %s, want env override memory", cfg.Store.Driver)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("UMONGO_SCHEMAS_DIR", "./schemas")
	t.Setenv("UMONGO_STORE_DRIVER", "memory")
	t.Setenv("UMONGO_LOG_FORMAT", "console")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Schemas.Dir != "./schemas" {
		t.Errorf("Schemas.Dir = %s, want ./schemas", cfg.Schemas.Dir)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("Store.Driver = %s, want memory", cfg.Store.Driver)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Logging.Format = %s, want console", cfg.Logging.Format)
	}
}

func TestLoadWithFallback_NoConfig(t *testing.T) {
	if _, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("LoadWithFallback() succeeded with no file and no env")
	}
}

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return cfg
}
