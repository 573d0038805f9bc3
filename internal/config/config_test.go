package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 1024, cfg.Compiler.CacheSize)
	assert.Equal(t, 5, cfg.Compiler.Suggestions)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Compiler.VocabularyPath)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, 500, cfg.Events.BufferSize)
	assert.Equal(t, 7, cfg.Events.RetentionDays)
}

func TestDSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", User: "u", Password: "p", Host: "db", Port: 5432, Name: "rules"}
	assert.Equal(t, "postgres://u:p@db:5432/rules?sslmode=disable", pg.DSN())
	assert.False(t, pg.IsSQLite())

	lite := DatabaseConfig{Driver: "sqlite", Path: "/var/data", Name: "rules"}
	assert.Equal(t, "/var/data/rules.db", lite.DSN())
	assert.True(t, lite.IsSQLite())
}

func TestLoad_WithoutConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, 8080, cfg.Server.Port)
}
