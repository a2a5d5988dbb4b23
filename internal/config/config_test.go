package config_test

import (
	"testing"

	"github.com/karloscodes/cartridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/config"
)

// The config must keep satisfying cartridge's interfaces; the server,
// logger and DB manager all consume it through them.
var _ cartridge.Config = (*config.Config)(nil)

func TestGetConfigDefaults(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)
	t.Setenv("UDTWEB_ENV", "test")

	cfg := config.GetConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "udtweb", cfg.AppName)
	assert.Equal(t, config.Test, cfg.Environment)
	assert.Equal(t, 60, cfg.AggregationIntervalSeconds)
	assert.Equal(t, 300, cfg.PersistIntervalSeconds)
	assert.Equal(t, 3, cfg.FlushMaxRetries)
	assert.Equal(t, 30, cfg.ReportTimeoutSeconds)
	assert.Equal(t, 180, cfg.RetentionDays)
	assert.Equal(t, "unitedtacticaldefense.com", cfg.SiteHost)
	assert.True(t, cfg.IsTest())
}

func TestGetConfigEnvOverrides(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)
	t.Setenv("UDTWEB_ENV", "test")
	t.Setenv("UDTWEB_RETENTION_DAYS", "30")
	t.Setenv("UDTWEB_AGGREGATION_INTERVAL_SECONDS", "15")
	t.Setenv("UDTWEB_SITE_HOST", "staging.unitedtacticaldefense.com")

	cfg := config.GetConfig()
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, 15, cfg.AggregationIntervalSeconds)
	assert.Equal(t, "staging.unitedtacticaldefense.com", cfg.SiteHost)
}

func TestConnectionPoolDefaultsByEnvironment(t *testing.T) {
	cfg := &config.Config{Environment: config.Test}
	assert.Equal(t, 1, cfg.GetMaxOpenConns())
	assert.Equal(t, 1, cfg.GetMaxIdleConns())

	cfg = &config.Config{Environment: config.Production}
	assert.Equal(t, 10, cfg.GetMaxOpenConns())

	cfg = &config.Config{Environment: config.Production, DatabaseMaxOpenConns: 25}
	assert.Equal(t, 25, cfg.GetMaxOpenConns())
}

func TestGetConfigIsSingleton(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)
	t.Setenv("UDTWEB_ENV", "test")

	first := config.GetConfig()
	second := config.GetConfig()
	assert.Same(t, first, second)
}
