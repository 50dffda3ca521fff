package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albmarin/umongo/config"
)

const userTemplate = `
name: User
collection: user
fields:
  - name: email
    type: email
    required: true
    unique: true
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "user.yaml"), []byte(userTemplate), 0o644))

	return &config.Config{
		Server:  config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Store:   config.StoreConfig{Driver: "memory"},
		Schemas: config.SchemasConfig{Dir: dir},
		Logging: config.LoggingConfig{Level: "error", Format: "json"},
	}
}

func TestNewWiresServices(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)
	defer a.Shutdown()

	require.NotNil(t, a.Schemas)
	require.NotNil(t, a.Documents)
	require.NotNil(t, a.HTTPServer)
	assert.Nil(t, a.Metrics, "metrics disabled by default")

	_, err = a.Schemas.Instance().ImplementationFor("User")
	assert.NoError(t, err)

	out, err := a.Documents.Create(context.Background(), "user", map[string]any{"email": "a@b.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, out["id"])
}

func TestNewFailsOnBrokenSchemas(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schemas.Dir = t.TempDir()

	_, err := New(cfg)
	assert.Error(t, err, "empty schema directory fails startup")
}

func TestNewSqliteStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = "sqlite"
	cfg.Store.DSN = filepath.Join(t.TempDir(), "docs.db")

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Shutdown()

	out, err := a.Documents.Create(context.Background(), "user", map[string]any{"email": "a@b.com"})
	require.NoError(t, err)

	got, err := a.Documents.Get(context.Background(), "user", out["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", got["email"])
}
