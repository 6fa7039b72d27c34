package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "USD", cfg.Pivot)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 32, cfg.Store.IndexInterval)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Ingestion.AppendTimeout)
	assert.Equal(t, []string{"fiat", "crypto"}, cfg.Ingestion.Providers)
	assert.Equal(t, time.Duration(0), cfg.Conversion.MaxStaleness)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "pricestore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pivot: eur
store:
  data_dir: /var/lib/pricestore
  index_interval: 16
conversion:
  max_staleness: 72h
ingestion:
  endpoints:
    - asset: XAU
      url: https://metals.example.com/latest?base={pivot}
      response_path: rates.XAU
      convention: asset_per_pivot
      headers:
        X-Client: pricestore
`), 0o600))
	t.Setenv("PRICESTORE_SERVER_PORT", "9090")
	t.Setenv("PRICESTORE_INGESTION_PROVIDERS", "mock")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "EUR", cfg.Pivot)
	assert.Equal(t, "/var/lib/pricestore", cfg.Store.DataDir)
	assert.Equal(t, 16, cfg.Store.IndexInterval)
	assert.Equal(t, 72*time.Hour, cfg.Conversion.MaxStaleness)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"mock"}, cfg.Ingestion.Providers)
	require.Len(t, cfg.Ingestion.Endpoints, 1)
	ep := cfg.Ingestion.Endpoints[0]
	assert.Equal(t, "XAU", ep.Asset)
	assert.Equal(t, "rates.XAU", ep.ResponsePath)
	assert.Equal(t, "asset_per_pivot", ep.Convention)
	assert.Equal(t, "pricestore", ep.Headers["x-client"])
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PRICESTORE_STORE_DATA_DIR=/tmp/from-dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("PRICESTORE_STORE_DATA_DIR") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-dotenv", cfg.Store.DataDir)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	chdirTemp(t)
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Pivot:     "USD",
			Store:     StoreConfig{DataDir: "./data", IndexInterval: 32},
			Database:  DatabaseConfig{Driver: "sqlite", Path: "./ledger.db"},
			Ingestion: IngestionConfig{AppendTimeout: time.Second, Providers: []string{"fiat"}},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no pivot", func(c *Config) { c.Pivot = "" }},
		{"no data dir", func(c *Config) { c.Store.DataDir = "" }},
		{"zero interval", func(c *Config) { c.Store.IndexInterval = 0 }},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres without host", func(c *Config) { c.Database = DatabaseConfig{Driver: "postgres"} }},
		{"enabled without interval", func(c *Config) { c.Ingestion.Enabled = true }},
		{"no append timeout", func(c *Config) { c.Ingestion.AppendTimeout = 0 }},
		{"unknown provider", func(c *Config) { c.Ingestion.Providers = []string{"ecb"} }},
		{"negative staleness", func(c *Config) { c.Conversion.MaxStaleness = -time.Hour }},
		{"endpoint without url", func(c *Config) { c.Ingestion.Endpoints = []EndpointConfig{{Asset: "XAU"}} }},
		{"endpoint bad convention", func(c *Config) {
			c.Ingestion.Endpoints = []EndpointConfig{{Asset: "XAU", URL: "http://x", Convention: "upside_down"}}
		}},
		{"endpoint bad auth", func(c *Config) {
			c.Ingestion.Endpoints = []EndpointConfig{{Asset: "XAU", URL: "http://x", AuthType: "basic"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
