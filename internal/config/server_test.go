package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/slatrack")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 0.25, cfg.WarningFraction)
	assert.Equal(t, time.Minute, cfg.EvaluationInterval)
	assert.Equal(t, 200, cfg.PageSize)
	assert.True(t, cfg.RateLimitEnabled)
}

func TestLoadServerConfig_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/slatrack")
	t.Setenv("ENV", "staging")
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("SLA_WARNING_FRACTION", "0.5")
	t.Setenv("SLA_EVALUATION_INTERVAL", "30s")
	t.Setenv("SLA_PAGE_SIZE", "50")
	t.Setenv("RATE_LIMIT_ENABLED", "false")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)

	assert.Equal(t, EnvStaging, cfg.Environment)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 0.5, cfg.WarningFraction)
	assert.Equal(t, 30*time.Second, cfg.EvaluationInterval)
	assert.Equal(t, 50, cfg.PageSize)
	assert.False(t, cfg.RateLimitEnabled)
}

func TestLoadServerConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing database url", map[string]string{}},
		{"warning fraction out of range", map[string]string{
			"DATABASE_URL":         "postgres://localhost/slatrack",
			"SLA_WARNING_FRACTION": "1.5",
		}},
		{"interval too short", map[string]string{
			"DATABASE_URL":            "postgres://localhost/slatrack",
			"SLA_EVALUATION_INTERVAL": "100ms",
		}},
		{"production without admin token", map[string]string{
			"DATABASE_URL": "postgres://localhost/slatrack",
			"ENV":          "production",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadServerConfig()
			assert.Error(t, err)
		})
	}
}
