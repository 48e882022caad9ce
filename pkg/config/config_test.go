package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/trevia/pkg/config"
)

type guardConfig struct {
	PublicPath string        `env:"TEST_PUBLIC_PATH" envDefault:"/"`
	Prefixes   []string      `env:"TEST_PREFIXES" envDefault:"/auth/" envSeparator:","`
	Timeout    time.Duration `env:"TEST_TIMEOUT" envDefault:"5s"`
}

type requiredConfig struct {
	Secret string `env:"TEST_REQUIRED_SECRET,required"`
}

func TestLoad(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)
	t.Setenv("TEST_PREFIXES", "/auth/,/oauth/")

	var cfg guardConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "/", cfg.PublicPath)
	assert.Equal(t, []string{"/auth/", "/oauth/"}, cfg.Prefixes)
	assert.Equal(t, 5*time.Second, cfg.Timeout)

	t.Setenv("TEST_PUBLIC_PATH", "/welcome")
	var cached guardConfig
	require.NoError(t, config.Load(&cached))
	assert.Equal(t, "/", cached.PublicPath, "second load must come from cache")

	config.Reset()
	var fresh guardConfig
	require.NoError(t, config.Load(&fresh))
	assert.Equal(t, "/welcome", fresh.PublicPath)
}

func TestLoadErrors(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)

	var cfg requiredConfig
	err := config.Load(&cfg)
	require.ErrorIs(t, err, config.ErrParsingConfig)

	require.ErrorIs(t, config.Load[requiredConfig](nil), config.ErrNilPointer)
	assert.Panics(t, func() { config.MustLoad(&cfg) })
}
