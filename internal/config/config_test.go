package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("testdata/does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8000", cfg.App.Addr())
	assert.Equal(t, "API-DEV", cfg.App.Title())
	assert.Equal(t, "pessoa", cfg.Database.Table)
	assert.Equal(t, "INFO", cfg.Log.Level)
	assert.False(t, cfg.App.CORSAllowCredentials)
	assert.Equal(t, 10*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, 200, cfg.Log.RotationMB)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("MODE", "prod")
	t.Setenv("PROJECT_NAME", "sorteio")
	t.Setenv("DB_TABLE", "sorteio.pessoa")
	t.Setenv("DB_QUERY_TIMEOUT", "3s")
	t.Setenv("LOG_ROTATION_MB", "50")

	cfg, err := Load("testdata/does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.App.Addr())
	assert.Equal(t, "SORTEIO", cfg.App.Title())
	assert.True(t, cfg.App.IsProd())
	assert.Equal(t, "sorteio.pessoa", cfg.Database.Table)
	assert.Equal(t, 3*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, 50, cfg.Log.RotationMB)
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	_, err := Load("testdata/does-not-exist.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestAPIKeyIsSHA256OfToken(t *testing.T) {
	app := App{SecurityToken: "secret"}
	assert.Equal(t, "2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b", app.APIKey())
}

func TestDatabaseURL(t *testing.T) {
	d := Database{
		Driver:   "postgres",
		User:     "sorteio",
		Password: "p@ss",
		Host:     "db",
		Port:     "5432",
		Name:     "sorteio",
		SSLMode:  "disable",
	}
	assert.Equal(t, "postgres://sorteio:p%40ss@db:5432/sorteio?sslmode=disable", d.URL())

	d.OverrideURL = "postgres://override"
	assert.Equal(t, "postgres://override", d.URL())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"GET", "POST"}, SplitList(" GET, POST ,,"))
	assert.Nil(t, SplitList(""))
}
